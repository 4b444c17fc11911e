package quick

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/kamusis/gemhub/internal/gemspec"
)

func sample() gemspec.Specification {
	return gemspec.Specification{
		Name:     "mylib",
		Version:  "1.1.0",
		Authors:  []string{"Ann", "Bob"},
		Summary:  "a library",
		Homepage: "https://example.org",
		Date:     time.Date(2022, 5, 6, 0, 0, 0, 0, time.UTC),
		Files:    []string{"lib/mylib.rb"},
		Dependencies: []gemspec.Dependency{{
			Name:         "otherlib",
			Type:         gemspec.Runtime,
			Requirements: []gemspec.Requirement{{Op: ">=", Version: "2.0"}},
		}},
		Metadata: map[string]string{"source_code_uri": "https://example.org/src"},
	}
}

func TestEmitLoad(t *testing.T) {
	e := New(t.TempDir())
	spec := sample()

	path, err := e.Emit(spec, "mylib-1.1.0")
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if filepath.Base(path) != "mylib-1.1.0.gemspec.rz" || filepath.Base(filepath.Dir(path)) != DefaultTag {
		t.Errorf("path = %s", path)
	}
	if !e.Exists("mylib-1.1.0") {
		t.Fatal("Exists = false")
	}

	got, err := e.Load("mylib-1.1.0")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Date.Equal(spec.Date) {
		t.Errorf("date = %v", got.Date)
	}
	got.Date = spec.Date
	if !reflect.DeepEqual(got, spec) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, spec)
	}
}

func TestEmitIsByteIdentical(t *testing.T) {
	e := New(t.TempDir())
	path, err := e.Emit(sample(), "mylib-1.1.0")
	if err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Emit(sample(), "mylib-1.1.0"); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(path)
	if !bytes.Equal(first, second) {
		t.Error("re-emission changed the artifact")
	}
}

func TestEmitFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "quick")
	if err := os.WriteFile(root, []byte("not a dir"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New(root).Emit(sample(), "mylib-1.1.0")
	var aerr *ArtifactWriteError
	if !errors.As(err, &aerr) {
		t.Fatalf("err = %v, want ArtifactWriteError", err)
	}
}
