package index

import (
	"errors"
	"fmt"
)

var (
	// ErrBadMagic indicates the snapshot does not start with the GEMIDX magic.
	ErrBadMagic = errors.New("not a gemhub index snapshot")
	// ErrUnsupportedFormat indicates a snapshot written by a newer format.
	ErrUnsupportedFormat = errors.New("unsupported index snapshot format")
)

// PersistError reports a failure to read or write the canonical snapshot.
// The in-memory view is discarded and reloaded on next use.
type PersistError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("index: cannot %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
