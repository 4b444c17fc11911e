package archive

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPut(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "upload.gem")
	if err := os.WriteFile(src, []byte("gem bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := New(filepath.Join(dir, "gems"), nil)
	r, err := s.Put(src, "mylib-1.0.0")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if r.Path != filepath.Join(dir, "gems", "mylib-1.0.0.gem") || r.Size != 9 {
		t.Errorf("receipt = %+v", r)
	}
	if len(r.Digest) != 64 {
		t.Errorf("digest = %q", r.Digest)
	}

	fi, err := os.Stat(r.Path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o644 {
		t.Errorf("mode = %v, want 0644", fi.Mode().Perm())
	}
	if !s.Exists("mylib-1.0.0") {
		t.Error("Exists = false")
	}

	if got, err := s.Digest("mylib-1.0.0"); err != nil || got != r.Digest {
		t.Errorf("Digest = %q, %v", got, err)
	}
	if b, _ := os.ReadFile(src); string(b) != "gem bytes" {
		t.Error("source modified")
	}
	if fi, _ := os.Stat(src); fi.Mode().Perm() != 0o600 {
		t.Error("source mode changed")
	}
}

func TestPutFailures(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "gems"), nil)

	_, err := s.Put(filepath.Join(dir, "missing.gem"), "x-1")
	var serr *StorageError
	if !errors.As(err, &serr) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing source: err = %v", err)
	}

	src := filepath.Join(dir, "a.gem")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(src, "../escape"); !errors.As(err, &serr) {
		t.Fatalf("bad name: err = %v", err)
	}

	// The storage directory cannot be created under a regular file.
	blocked := New(filepath.Join(src, "gems"), nil)
	if _, err := blocked.Put(src, "x-1"); !errors.As(err, &serr) {
		t.Fatalf("blocked dir: err = %v", err)
	}
	if s.Exists("x-1") {
		t.Error("failed put left a file")
	}
}
