package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/cenk/backoff"
	"github.com/spf13/cobra"

	"github.com/kamusis/gemhub/internal/catalog"
	"github.com/kamusis/gemhub/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.gem>...",
	Short: "Add gem archives to the repository",
	Long: `Ingest one or more gem archives.

Each archive is parsed, recorded, stored under gems/, merged into the canonical
index and published as a quick-lookup file. Transient failures (a busy lock or a
failed write) are retried.

With --batch the canonical snapshot is written once, after the last archive,
instead of once per archive.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var (
	flagBatch   bool
	flagRetries uint64
)

func init() {
	ingestCmd.Flags().BoolVar(&flagBatch, "batch", false, "Write the canonical snapshot once at the end")
	ingestCmd.Flags().Uint64Var(&flagRetries, "retries", 3, "Retries for transient failures")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	p := newPrinter(cmd)
	p.section("Ingest")

	var batch *ingest.Batch
	do := func(ctx context.Context, path string) (*catalog.Package, error) {
		return svc.Ingest(ctx, path, false)
	}
	if flagBatch {
		batch = svc.BeginBatch()
		do = batch.Ingest
	}

	var failed int
	for _, path := range args {
		pkg, err := withRetry(ctx, flagRetries, func() (*catalog.Package, error) {
			return do(ctx, path)
		})
		if err != nil {
			p.fail(path, err.Error())
			failed++
			continue
		}
		p.ok(pkg.Name, fmt.Sprintf("%s ingested (%d version(s))", pkg.CurrentVersion().Number, len(pkg.Versions)))
	}

	if batch != nil && batch.Len() > 0 {
		_, err := withRetry(ctx, flagRetries, func() (struct{}, error) {
			return struct{}{}, batch.Commit(ctx)
		})
		if err != nil {
			return fmt.Errorf("cannot commit batch: %w", err)
		}
		p.info("", fmt.Sprintf("batch committed: %d archive(s)", batch.Len()))
	}

	p.printf("\n  %d ingested / %d failed\n", len(args)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d archive(s) could not be ingested", failed)
	}
	return nil
}

// withRetry calls fn until it succeeds, fails permanently or the retries run
// out. Only errors ingest.Retryable accepts are retried.
func withRetry[T any](ctx context.Context, retries uint64, fn func() (T, error)) (T, error) {
	var out T
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	err := backoff.Retry(func() error {
		v, err := fn()
		if err != nil {
			if !ingest.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx))
	return out, err
}
