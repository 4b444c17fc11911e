// Package index maintains the canonical index: one snapshot file mapping every
// ingested version's original name to its full specification, plus the
// index-wide artifacts derived from it.
//
// Several processes may share one snapshot. Writers serialize on a lock file
// next to it and always merge into the newest state on disk, so concurrent
// ingests never lose each other's entries.
package index

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/kamusis/gemhub/internal/gemspec"
	"github.com/kamusis/gemhub/internal/lockfile"
)

// Config holds the parameters for opening a Store.
type Config struct {
	// SnapshotPath is the canonical snapshot file.
	SnapshotPath string
	// DerivedDir receives the derived artifacts. Defaults to the snapshot's
	// directory.
	DerivedDir string
	// Tag names the derived files, e.g. specs.<tag>.gz. Defaults to DefaultTag.
	Tag string
	// LockTimeout bounds lock waits when the caller's context has no deadline.
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// DefaultTag is the derived artifact format tag.
const DefaultTag = "cbor"

// Store is the canonical index. Safe for concurrent use.
type Store struct {
	path       string
	derivedDir string
	tag        string
	lock       *lockfile.Lock
	logger     *slog.Logger

	mu      sync.Mutex
	loaded  bool
	stale   bool
	stamp   os.FileInfo
	nextSeq uint64
	entries map[string]*Entry
	// pending holds entries merged without persisting, in merge order.
	pending      []string
	pendingSpecs map[string]gemspec.Specification
}

// Open returns a Store over cfg.SnapshotPath. Nothing is read until first use.
func Open(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tag := cfg.Tag
	if tag == "" {
		tag = DefaultTag
	}
	derived := cfg.DerivedDir
	if derived == "" {
		derived = filepath.Dir(cfg.SnapshotPath)
	}
	return &Store{
		path:         cfg.SnapshotPath,
		derivedDir:   derived,
		tag:          tag,
		lock:         lockfile.New(cfg.SnapshotPath+".lock", cfg.LockTimeout),
		logger:       logger,
		pendingSpecs: map[string]gemspec.Specification{},
	}
}

// Path returns the snapshot path.
func (s *Store) Path() string { return s.path }

// MergeAndPersist inserts or overwrites the entry for originalName and, when
// persist is true, atomically rewrites the snapshot. With persist false the
// entry is held as pending until Flush or the next persisting merge.
func (s *Store) MergeAndPersist(ctx context.Context, spec gemspec.Specification, originalName string, persist bool) error {
	release, err := s.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(); err != nil {
		return err
	}
	s.putLocked(originalName, spec)

	if !persist {
		if _, ok := s.pendingSpecs[originalName]; !ok {
			s.pending = append(s.pending, originalName)
		}
		s.pendingSpecs[originalName] = spec.Clone()
		s.logger.Debug("index entry pending", "original_name", originalName, "pending", len(s.pending))
		return nil
	}
	return s.writeLocked()
}

// Flush persists every pending entry in one snapshot rewrite.
func (s *Store) Flush(ctx context.Context) error {
	release, err := s.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}
	if err := s.refreshLocked(); err != nil {
		return err
	}
	return s.writeLocked()
}

// Pending returns the number of merged but unpersisted entries.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Get returns the entry for originalName.
func (s *Store) Get(originalName string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(); err != nil {
		return Entry{}, false, err
	}
	e, ok := s.entries[originalName]
	if !ok {
		return Entry{}, false, nil
	}
	return cloneEntry(e), true, nil
}

// Len returns the number of entries, pending ones included.
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(); err != nil {
		return 0, err
	}
	return len(s.entries), nil
}

// Entries returns a copy of every entry ordered by Seq.
func (s *Store) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(); err != nil {
		return nil, err
	}
	return s.entriesLocked(), nil
}

func (s *Store) entriesLocked() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// refreshLocked reloads the snapshot when this process has not read it yet,
// when another writer replaced it, or after a failed write. Pending entries
// are re-applied on top.
func (s *Store) refreshLocked() error {
	fi, err := os.Stat(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return &PersistError{Op: "stat", Path: s.path, Err: err}
	}
	if err != nil {
		fi = nil
	}
	if s.loaded && !s.stale && sameFile(s.stamp, fi) {
		return nil
	}

	entries, nextSeq, err := readSnapshot(s.path)
	if err != nil {
		s.stale = true
		return &PersistError{Op: "load", Path: s.path, Err: err}
	}
	if s.loaded {
		s.logger.Debug("index snapshot reloaded", "path", s.path, "entries", len(entries))
	}
	s.entries = entries
	s.nextSeq = nextSeq
	s.stamp = fi
	s.loaded = true
	s.stale = false

	for _, name := range s.pending {
		s.putLocked(name, s.pendingSpecs[name])
	}
	return nil
}

func (s *Store) putLocked(originalName string, spec gemspec.Specification) {
	if e, ok := s.entries[originalName]; ok {
		e.Spec = spec.Clone()
		return
	}
	s.entries[originalName] = &Entry{
		Seq:          s.nextSeq,
		OriginalName: originalName,
		Spec:         spec.Clone(),
	}
	s.nextSeq++
}

func (s *Store) writeLocked() error {
	if err := writeSnapshot(s.path, s.entries, s.nextSeq); err != nil {
		s.stale = true
		return &PersistError{Op: "write", Path: s.path, Err: err}
	}
	fi, err := os.Stat(s.path)
	if err != nil {
		s.stale = true
	} else {
		s.stamp = fi
	}
	s.pending = nil
	s.pendingSpecs = map[string]gemspec.Specification{}
	s.logger.Debug("index snapshot written", "path", s.path, "entries", len(s.entries))
	return nil
}

func sameFile(a, b os.FileInfo) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return os.SameFile(a, b) && a.Size() == b.Size() && a.ModTime().Equal(b.ModTime())
}

func cloneEntry(e *Entry) Entry {
	return Entry{Seq: e.Seq, OriginalName: e.OriginalName, Spec: e.Spec.Clone()}
}
