package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Regenerate the derived index artifacts",
	Long: `Regenerate specs.<tag>.gz, latest_specs.<tag>.gz and index_manifest.json
from the canonical index. Ingest does this after every archive; run it by hand
after restoring a snapshot from backup.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, _ []string) error {
	svc, _, err := openService(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	m, err := svc.Rebuild(cmd.Context())
	if err != nil {
		return err
	}
	p := newPrinter(cmd)
	p.ok(m.SpecsFile, fmt.Sprintf("%d spec(s)", m.Specs))
	p.ok(m.LatestFile, fmt.Sprintf("%d spec(s)", m.Latest))
	p.info("", fmt.Sprintf("generated at %s in %s", m.GeneratedAt, svc.Index().DerivedDir()))
	return nil
}
