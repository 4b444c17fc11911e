package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamusis/gemhub/internal/config"
	"github.com/kamusis/gemhub/internal/ingest"
	"github.com/kamusis/gemhub/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:          "gemhub",
	Short:        "gemhub — a self-hosted gem repository",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `gemhub ingests gem archives into a repository directory that gem clients
can be pointed at: stored archives, a canonical index, per-version quick-lookup
files and index-wide spec lists.`,
}

var (
	flagConfig   string
	flagRoot     string
	flagLogLevel string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.gemhub/gemhub.yaml, or $GEMHUB_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "Repository root (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w", err)
	}
	if flagRoot != "" {
		root, err := config.ExpandPath(flagRoot)
		if err != nil {
			return nil, err
		}
		cfg.Root = root
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(level, cmd.ErrOrStderr()), nil
}

// openService loads the config and opens the repository it points at.
func openService(ctx context.Context, cmd *cobra.Command) (*ingest.Service, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	svc, err := ingest.Open(ctx, ingest.Config{
		Layout:        cfg.Layout(),
		LockTimeout:   cfg.LockTimeout,
		RepairWorkers: cfg.RepairWorkers,
		Logger:        logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open repository %s: %w\nRun 'gemhub init' first.", cfg.Root, err)
	}
	return svc, cfg, nil
}
