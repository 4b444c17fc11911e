// Package search finds packages in the canonical index by keyword.
package search

// Doc is the searchable view of the latest version of one package.
type Doc struct {
	Name        string
	Version     string
	Platform    string
	Summary     string
	Description string
	Authors     string
	Licenses    string
}

// Result is one matched package.
type Result struct {
	Doc   Doc
	Score float64
	Why   string
}
