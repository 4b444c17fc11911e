package gemfile

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMetadata means the archive is a tar file without metadata.gz.
	ErrNoMetadata = errors.New("archive has no metadata.gz")
	// ErrMissingVersion means the embedded specification carries no version.
	ErrMissingVersion = errors.New("specification has no version")
)

// ParseError reports an archive that is not a valid gem. It is local to one
// upload and never worth retrying.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse gem %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
