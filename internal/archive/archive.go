// Package archive keeps the canonical copy of every ingested gem file under
// <root>/gems/<original name>.gem.
package archive

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/kamusis/gemhub/internal/fsutil"
)

// Mode is the permission of stored archives.
const Mode os.FileMode = 0o644

// StorageError reports a failure to copy an archive into the store.
type StorageError struct {
	Source string
	Dest   string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("archive: cannot store %s as %s: %v", e.Source, e.Dest, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Receipt describes a stored archive.
type Receipt struct {
	Path   string
	Size   int64
	Digest string // BLAKE3, hex
}

// Store is a directory of gem archives.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New returns a Store rooted at dir. A nil logger discards.
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// Path returns where the archive for originalName is stored.
func (s *Store) Path(originalName string) string {
	return filepath.Join(s.dir, originalName+".gem")
}

// Exists reports whether originalName has been stored.
func (s *Store) Exists(originalName string) bool {
	_, err := os.Stat(s.Path(originalName))
	return err == nil
}

// Put copies source into the store. source is never modified. The stored
// file appears atomically with mode 0644.
func (s *Store) Put(source, originalName string) (Receipt, error) {
	dest := s.Path(originalName)
	if originalName == "" || filepath.Base(originalName) != originalName {
		return Receipt{}, &StorageError{Source: source, Dest: dest, Err: errors.New("invalid archive name")}
	}

	in, err := os.Open(source)
	if err != nil {
		return Receipt{}, &StorageError{Source: source, Dest: dest, Err: err}
	}
	defer in.Close()

	h := blake3.New()
	var size int64
	err = fsutil.WriteFileFunc(dest, Mode, func(w io.Writer) error {
		n, err := io.Copy(io.MultiWriter(w, h), in)
		size = n
		return err
	})
	if err != nil {
		return Receipt{}, &StorageError{Source: source, Dest: dest, Err: err}
	}

	r := Receipt{Path: dest, Size: size, Digest: hex.EncodeToString(h.Sum(nil))}
	s.logger.Debug("archive stored", "path", dest, "size", size)
	return r, nil
}

// Digest returns the BLAKE3 digest of a stored archive.
func (s *Store) Digest(originalName string) (string, error) {
	return FileDigest(s.Path(originalName))
}

// FileDigest returns the hex BLAKE3 digest of the file at path.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("cannot hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
