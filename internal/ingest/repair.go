package ingest

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kamusis/gemhub/internal/index"
)

// RepairReport describes how far the repository's derived state has drifted from
// the catalog and the canonical index.
type RepairReport struct {
	Packages int
	Versions int
	Entries  int
	// MissingQuick lists index entries without a quick-lookup artifact.
	MissingQuick []string
	// MissingArchives lists catalog versions whose archive is gone.
	MissingArchives []string
	// Unindexed lists catalog versions absent from the canonical index.
	Unindexed []string
	// Unrecorded lists index entries without a catalog version.
	Unrecorded []string

	// Reindexed lists Unindexed versions Repair merged back from their archive.
	Reindexed []string
	// Reemitted lists entries whose quick-lookup artifact Repair rewrote.
	Reemitted []string
	Manifest  *index.Manifest
}

// Healthy reports whether no drift was found.
func (r *RepairReport) Healthy() bool {
	return len(r.MissingQuick) == 0 && len(r.MissingArchives) == 0 &&
		len(r.Unindexed) == 0 && len(r.Unrecorded) == 0
}

// Check compares the catalog, the canonical index and the artifacts on disk
// without changing anything.
func (s *Service) Check(ctx context.Context) (*RepairReport, error) {
	r := &RepairReport{}

	summaries, err := s.catalog.ListPackages(ctx)
	if err != nil {
		return nil, err
	}
	recorded := map[string]bool{}
	for _, sum := range summaries {
		pkg, err := s.catalog.FindPackage(ctx, sum.Name)
		if err != nil {
			return nil, err
		}
		r.Packages++
		for _, v := range pkg.Versions {
			r.Versions++
			recorded[v.OriginalName] = true
			if !s.archive.Exists(v.OriginalName) {
				r.MissingArchives = append(r.MissingArchives, v.OriginalName)
			}
		}
	}

	entries, err := s.index.Entries()
	if err != nil {
		return nil, err
	}
	r.Entries = len(entries)
	indexed := map[string]bool{}
	for _, e := range entries {
		indexed[e.OriginalName] = true
		if !s.quick.Exists(e.OriginalName) {
			r.MissingQuick = append(r.MissingQuick, e.OriginalName)
		}
		if !recorded[e.OriginalName] {
			r.Unrecorded = append(r.Unrecorded, e.OriginalName)
		}
	}
	for name := range recorded {
		if !indexed[name] {
			r.Unindexed = append(r.Unindexed, name)
		}
	}

	sort.Strings(r.MissingQuick)
	sort.Strings(r.MissingArchives)
	sort.Strings(r.Unindexed)
	sort.Strings(r.Unrecorded)
	return r, nil
}

// Repair runs Check and then reconciles what it can: catalog versions missing
// from the index are re-merged from their stored archive, missing quick-lookup
// artifacts are re-emitted in parallel and the derived artifacts rebuilt.
// Entries without a catalog record and lost archives are only reported.
func (s *Service) Repair(ctx context.Context) (*RepairReport, error) {
	r, err := s.Check(ctx)
	if err != nil {
		return nil, err
	}

	emit := append([]string(nil), r.MissingQuick...)
	for _, name := range r.Unindexed {
		if !s.archive.Exists(name) {
			continue
		}
		spec, err := s.parser.Parse(s.archive.Path(name))
		if err != nil {
			return r, err
		}
		if err := s.index.MergeAndPersist(ctx, spec, name, true); err != nil {
			return r, err
		}
		r.Reindexed = append(r.Reindexed, name)
		emit = append(emit, name)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, name := range emit {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e, ok, err := s.index.Get(name)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if _, err := s.quick.Emit(e.Spec, name); err != nil {
				return err
			}
			mu.Lock()
			r.Reemitted = append(r.Reemitted, name)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	sort.Strings(r.Reemitted)
	if err != nil {
		return r, err
	}

	m, err := s.index.RebuildDerived(ctx)
	if err != nil {
		return r, err
	}
	r.Manifest = &m

	s.logger.Info("repair finished",
		"reemitted", len(r.Reemitted),
		"reindexed", len(r.Reindexed),
		"missing_archives", len(r.MissingArchives),
		"unrecorded", len(r.Unrecorded),
	)
	return r, nil
}
