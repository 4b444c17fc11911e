package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/kamusis/gemhub/internal/catalog"
)

// ErrBatchClosed is returned by a Batch after Commit.
var ErrBatchClosed = errors.New("batch already committed")

// Batch groups ingests so the canonical snapshot is rewritten once, at Commit.
// Derived artifacts still follow every ingest.
type Batch struct {
	s *Service

	mu     sync.Mutex
	n      int
	closed bool
}

// BeginBatch starts a batch.
func (s *Service) BeginBatch() *Batch {
	return &Batch{s: s}
}

// Ingest adds one archive without persisting the snapshot.
func (b *Batch) Ingest(ctx context.Context, path string) (*catalog.Package, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, ErrBatchClosed
	}

	pkg, err := b.s.Ingest(ctx, path, true)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.n++
	b.mu.Unlock()
	return pkg, nil
}

// Len returns the number of successful ingests in the batch.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Commit persists the snapshot once. It writes every pending entry of the
// service, including those of concurrent batches. A failed Commit may be
// retried.
func (b *Batch) Commit(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBatchClosed
	}
	if err := b.s.Flush(ctx); err != nil {
		return err
	}
	b.closed = true
	return nil
}
