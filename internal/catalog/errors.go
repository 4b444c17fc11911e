package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrBlankName        = errors.New("name is blank")
	ErrDuplicateVersion = errors.New("version already exists")
	ErrNameMismatch     = errors.New("specification name does not match package")
	// ErrUnsafeName rejects names that cannot be used as a file name.
	ErrUnsafeName = errors.New("name contains path separators or control characters")
)

// ValidationError rejects an upload. It is local to that upload and not
// retried.
type ValidationError struct {
	Package string
	Version string
	Err     error
}

func (e *ValidationError) Error() string {
	switch {
	case e.Package == "":
		return fmt.Sprintf("invalid package: %v", e.Err)
	case e.Version == "":
		return fmt.Sprintf("invalid package %s: %v", e.Package, e.Err)
	default:
		return fmt.Sprintf("invalid package %s %s: %v", e.Package, e.Version, e.Err)
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
