// Package ingest turns uploaded gem archives into repository state: a catalog
// record, a stored archive, a canonical index entry, a quick-lookup artifact
// and refreshed derived artifacts.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kamusis/gemhub/internal/archive"
	"github.com/kamusis/gemhub/internal/catalog"
	"github.com/kamusis/gemhub/internal/config"
	"github.com/kamusis/gemhub/internal/gemfile"
	"github.com/kamusis/gemhub/internal/gemspec"
	"github.com/kamusis/gemhub/internal/index"
	"github.com/kamusis/gemhub/internal/lockfile"
	"github.com/kamusis/gemhub/internal/quick"
)

// Config holds the parameters for opening a Service.
type Config struct {
	Layout config.Layout
	// LockTimeout bounds lock waits when the caller's context has no deadline.
	LockTimeout time.Duration
	// RepairWorkers bounds parallel artifact writes during Repair.
	RepairWorkers int
	Logger        *slog.Logger
}

// Service is the ingest entry point. Safe for concurrent use, including by
// several processes sharing one repository root.
type Service struct {
	layout      config.Layout
	lockTimeout time.Duration
	workers     int
	logger      *slog.Logger

	parser  *gemfile.Parser
	catalog *catalog.Store
	index   *index.Store
	quick   *quick.Emitter
	archive *archive.Store
}

// Open creates the repository directories if needed and opens every store.
func Open(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Layout.Root == "" {
		return nil, fmt.Errorf("ingest: repository root is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := cfg.RepairWorkers
	if workers <= 0 {
		workers = 4
	}

	for _, dir := range cfg.Layout.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}

	records, err := catalog.Open(ctx, catalog.Config{
		Path:        cfg.Layout.CatalogDB,
		LockTimeout: cfg.LockTimeout,
		Logger:      logger.With("component", "catalog"),
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		layout:      cfg.Layout,
		lockTimeout: cfg.LockTimeout,
		workers:     workers,
		logger:      logger,
		parser:      &gemfile.Parser{Logger: logger.With("component", "parser")},
		catalog:     records,
		index: index.Open(index.Config{
			SnapshotPath: cfg.Layout.Snapshot,
			LockTimeout:  cfg.LockTimeout,
			Logger:       logger.With("component", "index"),
		}),
		quick:   quick.New(cfg.Layout.Quick),
		archive: archive.New(cfg.Layout.Gems, logger.With("component", "archive")),
	}, nil
}

// Close releases the catalog.
func (s *Service) Close() error {
	return s.catalog.Close()
}

// Layout returns the repository layout.
func (s *Service) Layout() config.Layout { return s.layout }

// Index returns the canonical index.
func (s *Service) Index() *index.Store { return s.index }

// Quick returns the quick-lookup emitter.
func (s *Service) Quick() *quick.Emitter { return s.quick }

// Archives returns the archive store.
func (s *Service) Archives() *archive.Store { return s.archive }

// Ingest adds the gem archive at path to the repository and returns its
// package with every version in insertion order. With processing true the
// canonical snapshot is not rewritten; call Flush at the end of the batch.
func (s *Service) Ingest(ctx context.Context, path string, processing bool) (*catalog.Package, error) {
	spec, err := s.parser.Parse(path)
	if err != nil {
		return nil, err
	}
	// Validate before taking any lock.
	pre, err := catalog.Normalize(&catalog.Package{}, spec)
	if err != nil {
		return nil, err
	}
	if dup, err := s.catalog.HasVersion(ctx, spec.Name, pre.Number); err != nil {
		return nil, err
	} else if dup {
		return nil, &catalog.ValidationError{Package: spec.Name, Version: pre.Number, Err: catalog.ErrDuplicateVersion}
	}
	original := spec.OriginalName()

	pkg, err := s.record(ctx, path, spec, !processing)
	if err != nil {
		return nil, err
	}
	v := pkg.CurrentVersion()

	if _, err := s.quick.Emit(spec, original); err != nil {
		s.logger.Warn("quick artifact not written", "original_name", original, "error", err)
	}
	if _, err := s.index.RebuildDerived(ctx); err != nil {
		s.logger.Warn("derived index artifacts not rebuilt", "error", err)
	}

	s.logger.Info("ingested",
		"name", pkg.Name,
		"version", v.Number,
		"position", v.Position,
		"persisted", !processing,
	)
	return pkg, nil
}

// record runs the serialized part of an ingest under the package lock: the
// duplicate check, the archive copy and the catalog transaction that merges
// the index entry before committing.
func (s *Service) record(ctx context.Context, path string, spec gemspec.Specification, persist bool) (*catalog.Package, error) {
	release, err := s.packageLock(spec.Name).Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	pkg, err := s.catalog.FindPackage(ctx, spec.Name)
	if errors.Is(err, catalog.ErrNotFound) {
		pkg = &catalog.Package{}
	} else if err != nil {
		return nil, err
	}
	v, err := catalog.Normalize(pkg, spec)
	if err != nil {
		return nil, err
	}

	receipt, err := s.archive.Put(path, v.OriginalName)
	if err != nil {
		return nil, err
	}
	v.Digest = receipt.Digest
	v.Size = receipt.Size

	err = s.catalog.Insert(ctx, pkg, v, func() error {
		return s.index.MergeAndPersist(ctx, spec, v.OriginalName, persist)
	})
	if err != nil {
		if rmErr := os.Remove(receipt.Path); rmErr != nil {
			s.logger.Warn("stored archive not removed", "path", receipt.Path, "error", rmErr)
		}
		return nil, err
	}
	return pkg, nil
}

func (s *Service) packageLock(name string) *lockfile.Lock {
	return lockfile.New(filepath.Join(s.layout.Locks, name+".lock"), s.lockTimeout)
}

// Flush persists every index entry merged with processing set.
func (s *Service) Flush(ctx context.Context) error {
	return s.index.Flush(ctx)
}

// Rebuild regenerates the derived index artifacts.
func (s *Service) Rebuild(ctx context.Context) (index.Manifest, error) {
	return s.index.RebuildDerived(ctx)
}

// Package returns the named package. The error wraps catalog.ErrNotFound
// when it does not exist.
func (s *Service) Package(ctx context.Context, name string) (*catalog.Package, error) {
	return s.catalog.FindPackage(ctx, name)
}

// Packages lists every package by name.
func (s *Service) Packages(ctx context.Context) ([]catalog.Summary, error) {
	return s.catalog.ListPackages(ctx)
}

// Retryable reports whether err is transient: a lock wait that ran out of
// time, or a snapshot or archive write that failed.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, lockfile.ErrBusy) {
		return true
	}
	var perr *index.PersistError
	if errors.As(err, &perr) {
		return true
	}
	var serr *archive.StorageError
	return errors.As(err, &serr)
}
