package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kamusis/gemhub/internal/catalog"
	"github.com/kamusis/gemhub/internal/config"
	"github.com/kamusis/gemhub/internal/gemfile"
	"github.com/kamusis/gemhub/internal/gemspec"
	"github.com/kamusis/gemhub/internal/quick"
)

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	flagConfig, flagRoot, flagLogLevel = "", "", ""
	flagBatch, flagRetries = false, 0
	flagShowJSON, flagDoctorFix, flagPackOut = false, false, ""
	flagSearchK = 10

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

// setupHome isolates the config lookup and returns the repository root.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{config.EnvConfig, config.EnvRoot, config.EnvLogLevel, config.EnvLockTimeout} {
		t.Setenv(k, "")
	}
	return filepath.Join(home, "repo")
}

func writeTestGem(t *testing.T, name, version string) string {
	t.Helper()
	spec := gemspec.Specification{
		Name:     name,
		Version:  version,
		Authors:  []string{"Ann"},
		Summary:  "test gem " + name,
		Homepage: "https://example.org/" + name,
		Date:     time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
		Dependencies: []gemspec.Dependency{{
			Name:         "otherlib",
			Type:         gemspec.Runtime,
			Requirements: []gemspec.Requirement{{Op: "~>", Version: "2.0"}},
		}},
	}
	path := filepath.Join(t.TempDir(), spec.OriginalName()+".gem")
	if err := gemfile.WriteFile(path, spec, nil); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLIWorkflow(t *testing.T) {
	root := setupHome(t)

	if _, _, err := runCLI(t, "init", "--root", root); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, dir := range config.NewLayout(root).Dirs() {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("init did not create %s", dir)
		}
	}

	out, _, err := runCLI(t, "ingest", writeTestGem(t, "mylib", "1.0.0"), writeTestGem(t, "mylib", "1.1.0"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !strings.Contains(out, "2 ingested / 0 failed") {
		t.Errorf("ingest output:\n%s", out)
	}

	out, _, err = runCLI(t, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "mylib") || !strings.Contains(out, "1.1.0") {
		t.Errorf("list output:\n%s", out)
	}

	out, _, err = runCLI(t, "search", "test", "gem")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, "mylib") || !strings.Contains(out, "1.1.0") {
		t.Errorf("search output:\n%s", out)
	}

	out, _, err = runCLI(t, "show", "mylib")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "mylib (1.1.0)") || !strings.Contains(out, "otherlib ~> 2.0") {
		t.Errorf("show output:\n%s", out)
	}

	out, _, err = runCLI(t, "show", "--json", "mylib")
	if err != nil {
		t.Fatalf("show --json: %v", err)
	}
	var pkg catalog.Package
	if err := json.Unmarshal([]byte(out), &pkg); err != nil {
		t.Fatalf("show --json output is not JSON: %v\n%s", err, out)
	}
	if len(pkg.Versions) != 2 || pkg.Versions[1].Number != "1.1.0" {
		t.Errorf("json package = %+v", pkg)
	}

	if _, _, err := runCLI(t, "show", "nope"); err == nil {
		t.Error("show of a missing package succeeded")
	}

	if _, _, err := runCLI(t, "doctor"); err != nil {
		t.Fatalf("doctor on a healthy repository: %v", err)
	}

	artifact := quick.New(config.NewLayout(root).Quick).Path("mylib-1.0.0")
	if err := os.Remove(artifact); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, "doctor"); err == nil {
		t.Error("doctor missed a deleted quick-lookup file")
	}
	if _, _, err := runCLI(t, "doctor", "--fix"); err != nil {
		t.Fatalf("doctor --fix: %v", err)
	}
	if _, err := os.Stat(artifact); err != nil {
		t.Errorf("doctor --fix did not restore %s", artifact)
	}
}

func TestCLIIngestBatchAndFailures(t *testing.T) {
	root := setupHome(t)
	if _, _, err := runCLI(t, "init", "--root", root); err != nil {
		t.Fatal(err)
	}

	junk := filepath.Join(t.TempDir(), "junk.gem")
	if err := os.WriteFile(junk, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, errOut, err := runCLI(t, "ingest", "--batch", writeTestGem(t, "a", "1.0"), junk, writeTestGem(t, "b", "1.0"))
	if err == nil {
		t.Fatal("expected an error for the junk archive")
	}
	if !strings.Contains(out, "2 ingested / 1 failed") || !strings.Contains(out, "batch committed: 2") {
		t.Errorf("output:\n%s", out)
	}
	if !strings.Contains(errOut, junk) {
		t.Errorf("stderr does not name the failed file:\n%s", errOut)
	}
	if _, err := os.Stat(config.NewLayout(root).Snapshot); err != nil {
		t.Errorf("batch commit did not write the snapshot: %v", err)
	}
}

func TestCLIPack(t *testing.T) {
	setupHome(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(filepath.Join(src, "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "lib", "packed.rb"), []byte("module Packed; end\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	specPath := filepath.Join(dir, "packed.yaml")
	yml := `--- !ruby/object:Gem::Specification
name: packed
version: !ruby/object:Gem::Version
  version: 0.1.0
authors:
- Ann
summary: packed gem
date: 2024-01-02 00:00:00.000000000 Z
`
	if err := os.WriteFile(specPath, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "packed.gem")
	if _, _, err := runCLI(t, "pack", specPath, src, "-o", out); err != nil {
		t.Fatalf("pack: %v", err)
	}
	spec, err := gemfile.Parse(out)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if spec.OriginalName() != "packed-0.1.0" || len(spec.Files) != 1 || spec.Files[0] != "lib/packed.rb" {
		t.Errorf("spec = %+v", spec)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Version:    dev") {
		t.Errorf("output:\n%s", out)
	}
}

func TestCLIDoctorFixReportsOnlyRepairedEntries(t *testing.T) {
	root := setupHome(t)
	if _, _, err := runCLI(t, "init", "--root", root); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, "ingest", writeTestGem(t, "mylib", "1.0.0"), writeTestGem(t, "mylib", "1.1.0")); err != nil {
		t.Fatal(err)
	}
	layout := config.NewLayout(root)
	if err := os.Remove(layout.Snapshot); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(layout.Gems, "mylib-1.1.0.gem")); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, "doctor", "--fix")
	if err == nil {
		t.Fatal("doctor --fix passed with an unrecoverable entry")
	}
	var repaired, unrepaired int
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "recorded but not in the index") {
			continue
		}
		switch {
		case strings.Contains(line, "[mylib-1.0.0]") && strings.Contains(line, "repaired"):
			repaired++
		case strings.Contains(line, "[mylib-1.1.0]") && !strings.Contains(line, "repaired"):
			unrepaired++
		default:
			t.Errorf("unexpected line: %s", line)
		}
	}
	if repaired != 1 || unrepaired != 1 {
		t.Errorf("repaired = %d, unrepaired = %d\n%s", repaired, unrepaired, out)
	}
	if strings.Contains(out, "[mylib-1.0.0] quick-lookup file missing") {
		t.Errorf("reindexed entry listed twice:\n%s", out)
	}
}
