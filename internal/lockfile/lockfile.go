// Package lockfile provides the writer locks that serialize mutation of shared
// gemhub state. A Lock excludes other goroutines in this process and other
// processes on the same host, and never waits past the caller's deadline.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenk/backoff"
	"github.com/gofrs/flock"
)

// ErrBusy is returned when a lock could not be obtained before the deadline.
// The operation is safe to retry.
var ErrBusy = errors.New("lock busy")

// errHeld signals one failed TryLock attempt to the retry loop.
var errHeld = errors.New("lock held by another process")

// DefaultTimeout bounds Acquire when the context carries no deadline.
const DefaultTimeout = 30 * time.Second

var (
	semMu sync.Mutex
	sems  = map[string]chan struct{}{}
)

// semaphore returns the process-wide semaphore for path. Every Lock on the same
// path shares it, so two stores opened over one root still exclude each other.
func semaphore(path string) chan struct{} {
	semMu.Lock()
	defer semMu.Unlock()
	s, ok := sems[path]
	if !ok {
		s = make(chan struct{}, 1)
		sems[path] = s
	}
	return s
}

// Lock is a named writer lock backed by a file on disk.
type Lock struct {
	path    string
	timeout time.Duration
	sem     chan struct{}
}

// New returns a lock on path. timeout applies only when Acquire is called with
// a context that has no deadline; zero means DefaultTimeout.
func New(path string, timeout time.Duration) *Lock {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Lock{path: path, timeout: timeout, sem: semaphore(path)}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Acquire blocks until the lock is held or ctx expires. The returned release
// function must be called exactly once.
func (l *Lock) Acquire(ctx context.Context) (func(), error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, l.busy(ctx)
	}

	fl, err := l.lockFile(ctx)
	if err != nil {
		<-l.sem
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = fl.Unlock()
			<-l.sem
		})
	}, nil
}

func (l *Lock) lockFile(ctx context.Context) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create lock directory for %s: %w", l.path, err)
	}

	fl := flock.New(l.path)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		locked, err := fl.TryLock()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("cannot acquire lock %s: %w", l.path, err))
		}
		if !locked {
			return errHeld
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if errors.Is(err, errHeld) {
		return nil, l.busy(ctx)
	}
	if err != nil {
		return nil, err
	}
	return fl, nil
}

func (l *Lock) busy(ctx context.Context) error {
	return fmt.Errorf("%w: %s (%v)", ErrBusy, l.path, context.Cause(ctx))
}
