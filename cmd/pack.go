package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kamusis/gemhub/internal/gemfile"
)

var packCmd = &cobra.Command{
	Use:   "pack <gemspec.yaml> <dir>",
	Short: "Build a gem archive from a YAML gemspec and a directory",
	Long: `Build a gem archive in the format gemhub ingests.

The gemspec is YAML in the same layout as a gem's metadata.gz; every regular
file under <dir> becomes the payload and the spec's file list.

Example:
  gemhub pack mylib.yaml ./mylib -o mylib-1.0.0.gem`,
	Args: cobra.ExactArgs(2),
	RunE: runPack,
}

var flagPackOut string

func init() {
	packCmd.Flags().StringVarP(&flagPackOut, "output", "o", "", "Output file (default <name>-<version>.gem)")
	rootCmd.AddCommand(packCmd)
}

func runPack(cmd *cobra.Command, args []string) error {
	spec, err := gemfile.ReadSpecFile(args[0])
	if err != nil {
		return err
	}
	payload, files, err := gemfile.PackDir(args[1], spec.Date)
	if err != nil {
		return fmt.Errorf("cannot pack %s: %w", args[1], err)
	}
	spec.Files = files

	out := flagPackOut
	if out == "" {
		out = spec.OriginalName() + ".gem"
	}
	if err := gemfile.WriteFile(out, spec, payload); err != nil {
		return err
	}
	newPrinter(cmd).ok(spec.Name, fmt.Sprintf("%s written (%d file(s))", out, len(files)))
	return nil
}
