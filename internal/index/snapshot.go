package index

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pierrec/lz4/v4"

	"github.com/kamusis/gemhub/internal/codec"
	"github.com/kamusis/gemhub/internal/fsutil"
)

const (
	magic         = "GEMIDX"
	formatVersion = 1
)

// readSnapshot loads the snapshot at path. A missing or empty file is an empty
// index.
func readSnapshot(path string) (map[string]*Entry, uint64, error) {
	entries := map[string]*Entry{}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, 1, nil
	}
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	prefix := make([]byte, len(magic)+1)
	n, err := io.ReadFull(br, prefix)
	if n == 0 && (err == io.EOF || err == io.ErrUnexpectedEOF) {
		return entries, 1, nil
	}
	if err != nil || string(prefix[:len(magic)]) != magic {
		return nil, 0, ErrBadMagic
	}
	if prefix[len(magic)] != formatVersion {
		return nil, 0, fmt.Errorf("%w: %d", ErrUnsupportedFormat, prefix[len(magic)])
	}

	dec := codec.NewDecoder(lz4.NewReader(br))
	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, 0, fmt.Errorf("cannot decode header: %w", err)
	}
	if h.Count < 0 {
		return nil, 0, fmt.Errorf("invalid entry count %d", h.Count)
	}
	for i := 0; i < h.Count; i++ {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return nil, 0, fmt.Errorf("cannot decode entry %d of %d: %w", i+1, h.Count, err)
		}
		if e.Seq >= h.NextSeq {
			h.NextSeq = e.Seq + 1
		}
		entries[e.OriginalName] = &e
	}
	if h.NextSeq == 0 {
		h.NextSeq = 1
	}
	return entries, h.NextSeq, nil
}

// writeSnapshot atomically replaces path with entries sorted by OriginalName.
func writeSnapshot(path string, entries map[string]*Entry, nextSeq uint64) error {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	return fsutil.WriteFileFunc(path, 0o644, func(w io.Writer) error {
		if _, err := io.WriteString(w, magic); err != nil {
			return err
		}
		if _, err := w.Write([]byte{formatVersion}); err != nil {
			return err
		}

		zw := lz4.NewWriter(w)
		enc := codec.NewEncoder(zw)
		if err := enc.Encode(header{NextSeq: nextSeq, Count: len(names)}); err != nil {
			return err
		}
		for _, name := range names {
			if err := enc.Encode(entries[name]); err != nil {
				return fmt.Errorf("cannot encode %s: %w", name, err)
			}
		}
		return zw.Close()
	})
}
