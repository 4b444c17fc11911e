package main

import "github.com/kamusis/gemhub/cmd"

func main() {
	cmd.Execute()
}
