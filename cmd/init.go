package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamusis/gemhub/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config file and an empty repository",
	Long: `Initialize gemhub.

Writes ~/.gemhub/gemhub.yaml (or the file named by --config / $GEMHUB_CONFIG)
when it does not exist, a ~/.gemhub/.env template, and the repository
directories under the configured root:

  gems/          stored archives
  quick/CBOR.1/  per-version quick-lookup files
  index/         canonical snapshot and derived spec lists
  locks/         writer lock files
  catalog.db     package records`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	p := newPrinter(cmd)

	// ── 1. Write the config file if missing ───────────────────────────────────
	cfgPath := flagConfig
	if cfgPath == "" {
		var err error
		if cfgPath, err = config.ConfigPath(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg, err := config.DefaultConfig()
		if err != nil {
			return err
		}
		if flagRoot != "" {
			if cfg.Root, err = config.ExpandPath(flagRoot); err != nil {
				return err
			}
		}
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		p.ok("", fmt.Sprintf("Config written: %s", cfgPath))
	} else {
		p.skip("", fmt.Sprintf("Config already exists: %s", cfgPath))
	}

	if err := config.EnsureDotEnvTemplate(); err != nil {
		p.warn("", fmt.Sprintf("dotenv template not written: %v", err))
	}

	// ── 2. Create the repository ──────────────────────────────────────────────
	svc, cfg, err := openService(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer svc.Close()
	p.ok("", fmt.Sprintf("Repository ready: %s", cfg.Root))

	// ── 3. Derived artifacts exist from the start ─────────────────────────────
	m, err := svc.Rebuild(cmd.Context())
	if err != nil {
		return err
	}
	p.ok("", fmt.Sprintf("Index artifacts written: %s, %s (%d specs)", m.SpecsFile, m.LatestFile, m.Specs))
	return nil
}
