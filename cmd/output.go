package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ── Unified output helpers ────────────────────────────────────────────────────
// All commands print through a printer so icons and indentation stay
// consistent, and so tests can capture the output.
//
// Icon semantics:
//   ✓  success / healthy
//   ✗  error / failure          (written to the error stream)
//   ⚠  warning
//   ○  skipped / not applicable
//   -  not found / missing
//   ~  neutral info / state change

type printer struct {
	out io.Writer
	err io.Writer
}

func newPrinter(cmd *cobra.Command) *printer {
	return &printer{out: cmd.OutOrStdout(), err: cmd.ErrOrStderr()}
}

// section prints a top-level section header, e.g. "=== Ingest ===".
func (p *printer) section(title string) {
	fmt.Fprintf(p.out, "\n=== %s ===\n", title)
}

// group prints a bracketed group title, e.g. "[ Index ]".
func (p *printer) group(title string) {
	fmt.Fprintf(p.out, "[ %s ]\n", title)
}

func (p *printer) line(w io.Writer, icon, name, msg string) {
	if name == "" {
		fmt.Fprintf(w, "  %s  %s\n", icon, msg)
	} else {
		fmt.Fprintf(w, "  %s  [%s] %s\n", icon, name, msg)
	}
}

// ok prints a success line.
//   name = "" → "  ✓  msg"
//   name set  → "  ✓  [name] msg"
func (p *printer) ok(name, msg string)   { p.line(p.out, "✓", name, msg) }
func (p *printer) fail(name, msg string) { p.line(p.err, "✗", name, msg) }
func (p *printer) warn(name, msg string) { p.line(p.out, "⚠", name, msg) }
func (p *printer) skip(name, msg string) { p.line(p.out, "○", name, msg) }
func (p *printer) miss(name, msg string) { p.line(p.out, "-", name, msg) }
func (p *printer) info(name, msg string) { p.line(p.out, "~", name, msg) }

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}
