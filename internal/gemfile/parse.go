// Package gemfile reads and writes gem archives.
//
// A gem is a plain tar file holding metadata.gz (the gzip'd YAML
// specification) and data.tar.gz (the payload). Nothing inside the archive is
// ever executed; the specification is read as inert YAML.
package gemfile

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/kamusis/gemhub/internal/gemspec"
)

const (
	metadataEntry  = "metadata.gz"
	dataEntry      = "data.tar.gz"
	maxMetadataLen = 16 << 20
)

// Gem is a parsed archive.
type Gem struct {
	Spec    gemspec.Specification
	Payload []byte
}

// Parser extracts specifications from archives on disk.
type Parser struct {
	Logger *slog.Logger
}

// Parse reads the specification embedded in the archive at path. Failures are
// returned as *ParseError and logged with the offending path.
func (p *Parser) Parse(path string) (gemspec.Specification, error) {
	g, err := p.read(path, false)
	if err != nil {
		return gemspec.Specification{}, err
	}
	return g.Spec, nil
}

// Open is Parse plus the raw data.tar.gz payload.
func (p *Parser) Open(path string) (*Gem, error) {
	return p.read(path, true)
}

// Parse is Parser.Parse without diagnostics.
func Parse(path string) (gemspec.Specification, error) {
	return (&Parser{}).Parse(path)
}

func (p *Parser) read(path string, withPayload bool) (*Gem, error) {
	g, err := readArchive(path, withPayload)
	if err != nil {
		perr := &ParseError{Path: path, Err: err}
		p.logger().Info("problem loading gem", "path", path, "error", err)
		return nil, perr
	}
	return g, nil
}

func (p *Parser) logger() *slog.Logger {
	if p == nil || p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

func readArchive(path string, withPayload bool) (*Gem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		meta    []byte
		payload []byte
		found   bool
	)
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unsupported archive format: %w", err)
		}
		switch hdr.Name {
		case metadataEntry:
			meta, err = gunzip(tr)
			if err != nil {
				return nil, fmt.Errorf("cannot read %s: %w", metadataEntry, err)
			}
			found = true
		case dataEntry:
			if withPayload {
				payload, err = io.ReadAll(tr)
				if err != nil {
					return nil, fmt.Errorf("cannot read %s: %w", dataEntry, err)
				}
			}
		}
	}
	if !found {
		return nil, ErrNoMetadata
	}

	spec, err := decodeSpec(meta)
	if err != nil {
		return nil, err
	}
	return &Gem{Spec: spec, Payload: payload}, nil
}

func gunzip(r io.Reader) ([]byte, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(zr, maxMetadataLen+1))
	if err != nil {
		return nil, err
	}
	if n > maxMetadataLen {
		return nil, fmt.Errorf("metadata exceeds %d bytes", maxMetadataLen)
	}
	return buf.Bytes(), nil
}
