// Package quick writes the per-version quick-lookup artifacts clients fetch to
// resolve one specification without downloading the whole index:
// <root>/quick/<tag>/<original name>.gemspec.rz.
package quick

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"

	"github.com/kamusis/gemhub/internal/codec"
	"github.com/kamusis/gemhub/internal/fsutil"
	"github.com/kamusis/gemhub/internal/gemspec"
)

// DefaultTag identifies the artifact encoding.
const DefaultTag = "CBOR.1"

// Suffix is appended to the original name of each artifact.
const Suffix = ".gemspec.rz"

// level is fixed so re-emitting the same spec yields the same bytes.
const level = zlib.BestCompression

// ArtifactWriteError reports a failure to write a quick-lookup artifact.
type ArtifactWriteError struct {
	Path string
	Err  error
}

func (e *ArtifactWriteError) Error() string {
	return fmt.Sprintf("quick: cannot write %s: %v", e.Path, e.Err)
}

func (e *ArtifactWriteError) Unwrap() error { return e.Err }

// Emitter writes artifacts under Root/Tag.
type Emitter struct {
	Root string
	Tag  string
}

// New returns an Emitter with the default tag.
func New(root string) *Emitter {
	return &Emitter{Root: root, Tag: DefaultTag}
}

func (e *Emitter) dir() string {
	tag := e.Tag
	if tag == "" {
		tag = DefaultTag
	}
	return filepath.Join(e.Root, tag)
}

// Path returns the artifact path for originalName.
func (e *Emitter) Path(originalName string) string {
	return filepath.Join(e.dir(), originalName+Suffix)
}

// Exists reports whether the artifact for originalName is present.
func (e *Emitter) Exists(originalName string) bool {
	_, err := os.Stat(e.Path(originalName))
	return err == nil
}

// Encode returns the artifact bytes for spec.
func Encode(spec gemspec.Specification) ([]byte, error) {
	raw, err := codec.Marshal(spec)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Emit writes the artifact for spec atomically, replacing any previous one.
func (e *Emitter) Emit(spec gemspec.Specification, originalName string) (string, error) {
	path := e.Path(originalName)
	b, err := Encode(spec)
	if err != nil {
		return path, &ArtifactWriteError{Path: path, Err: err}
	}
	if err := fsutil.WriteFile(path, b, 0o644); err != nil {
		return path, &ArtifactWriteError{Path: path, Err: err}
	}
	return path, nil
}

// Load reads back the specification stored for originalName.
func (e *Emitter) Load(originalName string) (gemspec.Specification, error) {
	path := e.Path(originalName)
	f, err := os.Open(path)
	if err != nil {
		return gemspec.Specification{}, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return gemspec.Specification{}, fmt.Errorf("cannot inflate %s: %w", path, err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return gemspec.Specification{}, fmt.Errorf("cannot inflate %s: %w", path, err)
	}
	var spec gemspec.Specification
	if err := codec.Unmarshal(raw, &spec); err != nil {
		return gemspec.Specification{}, fmt.Errorf("invalid artifact %s: %w", path, err)
	}
	return spec, nil
}
