package cmd

import (
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every package with its current version",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	svc, _, err := openService(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	list, err := svc.Packages(cmd.Context())
	if err != nil {
		return err
	}

	p := newPrinter(cmd)
	if len(list) == 0 {
		p.miss("", "no packages yet (run 'gemhub ingest <file.gem>')")
		return nil
	}
	for _, s := range list {
		p.printf("%-32s %-16s %d version(s)\n", s.Name, s.CurrentVersion, s.Versions)
	}
	p.printf("\n%d package(s)\n", len(list))
	return nil
}
