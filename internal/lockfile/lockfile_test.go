package lockfile

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestAcquire_ExcludesConcurrentHolders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.lock")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := New(path, 5*time.Second)
			release, err := l.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d concurrent holders", maxSeen)
	}
}

func TestAcquire_DeadlineReturnsBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkg.lock")
	held := New(path, time.Second)
	release, err := held.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = New(path, time.Second).Acquire(ctx)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestAcquire_ReleaseIsIdempotent(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "x.lock"), time.Second)
	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	release()
	release()

	release2, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	release2()
}
