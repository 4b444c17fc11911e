package gemfile

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/kamusis/gemhub/internal/fsutil"
	"github.com/kamusis/gemhub/internal/gemspec"
)

// Build writes a gem archive for spec to w. payload is stored verbatim as
// data.tar.gz; nil produces an empty payload. Output is deterministic for a
// given spec and payload.
func Build(w io.Writer, spec gemspec.Specification, payload []byte) error {
	meta, err := encodeSpec(spec)
	if err != nil {
		return fmt.Errorf("cannot encode specification: %w", err)
	}
	metaGz, err := gzipBytes(meta)
	if err != nil {
		return err
	}
	mtime := archiveTime(spec.Date)
	if payload == nil {
		payload, err = tarGz(nil, mtime)
		if err != nil {
			return err
		}
	}

	tw := tar.NewWriter(w)
	for _, e := range []struct {
		name string
		body []byte
	}{
		{metadataEntry, metaGz},
		{dataEntry, payload},
	} {
		hdr := &tar.Header{
			Name:    e.name,
			Mode:    0o444,
			Size:    int64(len(e.body)),
			ModTime: mtime,
			Format:  tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write(e.body); err != nil {
			return err
		}
	}
	return tw.Close()
}

// WriteFile builds a gem archive at path.
func WriteFile(path string, spec gemspec.Specification, payload []byte) error {
	return fsutil.WriteFileFunc(path, 0o644, func(w io.Writer) error {
		return Build(w, spec, payload)
	})
}

// ReadSpecFile loads a specification from a standalone YAML file in the same
// format as metadata.gz.
func ReadSpecFile(path string) (gemspec.Specification, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return gemspec.Specification{}, err
	}
	spec, err := decodeSpec(b)
	if err != nil {
		return gemspec.Specification{}, &ParseError{Path: path, Err: err}
	}
	return spec, nil
}

// PackDir returns a data.tar.gz payload of every regular file under dir, and
// the slash-separated relative file list.
func PackDir(dir string, mtime time.Time) ([]byte, []string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("cannot scan %s: %w", dir, err)
	}

	contents := make(map[string][]byte, len(files))
	for _, f := range files {
		b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f)))
		if err != nil {
			return nil, nil, err
		}
		contents[f] = b
	}
	mtime = archiveTime(mtime)
	payload, err := tarGz(func(tw *tar.Writer) error {
		for _, f := range files {
			hdr := &tar.Header{Name: f, Mode: 0o644, Size: int64(len(contents[f])), ModTime: mtime}
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if _, err := tw.Write(contents[f]); err != nil {
				return err
			}
		}
		return nil
	}, mtime)
	if err != nil {
		return nil, nil, err
	}
	return payload, files, nil
}

func tarGz(fill func(tw *tar.Writer) error, mtime time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.ModTime = mtime
	tw := tar.NewWriter(zw)
	if fill != nil {
		if err := fill(tw); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// archiveTime clamps t to the Unix epoch so tar and gzip headers can hold it.
func archiveTime(t time.Time) time.Time {
	epoch := time.Unix(0, 0).UTC()
	if t.Before(epoch) {
		return epoch
	}
	return t.UTC().Truncate(time.Second)
}
