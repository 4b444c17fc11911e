package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamusis/gemhub/internal/catalog"
)

var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a package, its versions and current dependencies",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var flagShowJSON bool

func init() {
	showCmd.Flags().BoolVar(&flagShowJSON, "json", false, "Print the package as JSON")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	svc, _, err := openService(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	pkg, err := svc.Package(cmd.Context(), args[0])
	if errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("package %q not found", args[0])
	}
	if err != nil {
		return err
	}

	if flagShowJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(pkg)
	}

	p := newPrinter(cmd)
	p.section(pkg.String())
	cur := pkg.CurrentVersion()
	if cur != nil {
		p.printf("  %s\n", cur.Description)
		p.printf("  Authors:  %s\n", cur.Authors)
	}
	if pkg.Linkset != nil && pkg.Linkset.Home != "" {
		p.printf("  Homepage: %s\n", pkg.Linkset.Home)
	}

	p.printf("\n")
	p.group("Versions")
	for i := len(pkg.Versions) - 1; i >= 0; i-- {
		v := pkg.Versions[i]
		p.info(v.Number, fmt.Sprintf("#%d  published %s  %d bytes", v.Position, formatDate(v.CreatedAt), v.Size))
	}

	p.printf("\n")
	p.group("Dependencies")
	deps := pkg.CurrentDependencies()
	if len(deps) == 0 {
		p.skip("", "none")
	}
	for _, d := range deps {
		p.info(d.Type, fmt.Sprintf("%s %s", d.Name, d.Requirements))
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.UTC().Format("2006-01-02")
}
