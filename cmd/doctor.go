package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamusis/gemhub/internal/config"
	"github.com/kamusis/gemhub/internal/index"
	"github.com/kamusis/gemhub/internal/ingest"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the repository for drift between records, index and artifacts",
	Long: `Check that gemhub's config loads and that the repository is consistent:
every recorded version has a stored archive and an index entry, and every
index entry has a quick-lookup file and a record.

With --fix, missing index entries are restored from stored archives, missing
quick-lookup files are re-emitted and the derived artifacts rebuilt.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var flagDoctorFix bool

func init() {
	doctorCmd.Flags().BoolVar(&flagDoctorFix, "fix", false, "Repair what can be repaired")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	p := newPrinter(cmd)
	allOK := true
	failD := func(format string, args ...any) {
		p.fail("", fmt.Sprintf(format, args...))
		allOK = false
	}

	p.section("gemhub doctor")
	p.printf("\n")

	// ── Check 1: config ───────────────────────────────────────────────────────
	p.group("Config")
	cfgPath := flagConfig
	if cfgPath == "" {
		cfgPath, _ = config.ConfigPath()
	}
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		p.warn("", fmt.Sprintf("%s not found — using defaults (run 'gemhub init')", cfgPath))
	} else {
		p.ok("", cfgPath)
	}
	cfg, err := loadConfig()
	if err != nil {
		failD("%v", err)
		return fmt.Errorf("doctor found issues")
	}
	p.ok("", fmt.Sprintf("root: %s", cfg.Root))
	p.printf("\n")

	// ── Check 2: repository layout ────────────────────────────────────────────
	p.group("Repository")
	layout := cfg.Layout()
	for _, dir := range layout.Dirs() {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			failD("%s missing — run 'gemhub init'", dir)
		}
	}
	if !allOK {
		return fmt.Errorf("doctor found issues")
	}
	p.ok("", "directories present")
	p.printf("\n")

	svc, _, err := openService(cmd.Context(), cmd)
	if err != nil {
		failD("%v", err)
		return fmt.Errorf("doctor found issues")
	}
	defer svc.Close()

	// ── Check 3: consistency ──────────────────────────────────────────────────
	p.group("Consistency")
	var r *ingest.RepairReport
	if flagDoctorFix {
		r, err = svc.Repair(cmd.Context())
	} else {
		r, err = svc.Check(cmd.Context())
	}
	if err != nil {
		failD("%v", err)
		return fmt.Errorf("doctor found issues")
	}
	p.ok("", fmt.Sprintf("%d package(s), %d version(s), %d index entries", r.Packages, r.Versions, r.Entries))
	report := func(names []string, what, hint string, fixed []string) {
		done := make(map[string]bool, len(fixed))
		for _, n := range fixed {
			done[n] = true
		}
		for _, n := range names {
			if done[n] {
				p.info(n, what+" — repaired")
				continue
			}
			p.warn(n, what+hint)
			allOK = false
		}
	}
	indexHint := " (run 'gemhub doctor --fix')"
	if flagDoctorFix {
		indexHint = " (stored archive missing, re-ingest the original file)"
	}
	report(r.Unindexed, "recorded but not in the index", indexHint, r.Reindexed)
	report(r.MissingQuick, "quick-lookup file missing", " (run 'gemhub doctor --fix')", r.Reemitted)
	report(r.MissingArchives, "stored archive missing", " (re-ingest the original file)", nil)
	report(r.Unrecorded, "in the index but not recorded", "", nil)
	p.printf("\n")

	// ── Check 4: derived artifacts ────────────────────────────────────────────
	p.group("Derived artifacts")
	entries := r.Entries + len(r.Reindexed)
	if m, err := index.ReadManifest(svc.Index().DerivedDir()); err != nil {
		p.warn("", fmt.Sprintf("%v (run 'gemhub rebuild')", err))
		allOK = false
	} else if m.Specs != entries {
		p.warn(index.ManifestFile, fmt.Sprintf("lists %d spec(s), index has %d (run 'gemhub rebuild')", m.Specs, entries))
		allOK = false
	} else {
		p.ok(index.ManifestFile, fmt.Sprintf("generated %s", m.GeneratedAt))
	}
	p.printf("\n")

	// ── Summary ───────────────────────────────────────────────────────────────
	p.printf("===================\n")
	if allOK {
		p.printf("✓  All checks passed.\n")
		return nil
	}
	fmt.Fprintln(p.err, "✗  One or more checks failed. See details above.")
	return fmt.Errorf("doctor found issues")
}
