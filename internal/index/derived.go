package index

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/package-url/packageurl-go"

	"github.com/kamusis/gemhub/internal/codec"
	"github.com/kamusis/gemhub/internal/fsutil"
	"github.com/kamusis/gemhub/internal/gemspec"
)

// ManifestFile is the name of the derived manifest.
const ManifestFile = "index_manifest.json"

// SpecsFile returns the name of the all-versions specs file for tag.
func SpecsFile(tag string) string { return "specs." + tag + ".gz" }

// LatestSpecsFile returns the name of the latest-versions specs file for tag.
func LatestSpecsFile(tag string) string { return "latest_specs." + tag + ".gz" }

// RebuildDerived regenerates the derived artifacts from the current entries,
// pending ones included. Each file is replaced atomically.
func (s *Store) RebuildDerived(ctx context.Context) (Manifest, error) {
	release, err := s.lock.Acquire(ctx)
	if err != nil {
		return Manifest{}, err
	}
	defer release()

	s.mu.Lock()
	if err := s.refreshLocked(); err != nil {
		s.mu.Unlock()
		return Manifest{}, err
	}
	entries := s.entriesLocked()
	s.mu.Unlock()

	all, latest := derive(entries)

	manifest := Manifest{
		Format:      formatVersion,
		Tag:         s.tag,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Specs:       len(all),
		Latest:      len(latest),
		SpecsFile:   SpecsFile(s.tag),
		LatestFile:  LatestSpecsFile(s.tag),
	}

	if err := writeTuples(filepath.Join(s.derivedDir, manifest.SpecsFile), all); err != nil {
		return Manifest{}, err
	}
	if err := writeTuples(filepath.Join(s.derivedDir, manifest.LatestFile), latest); err != nil {
		return Manifest{}, err
	}

	mb, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Manifest{}, err
	}
	manifestPath := filepath.Join(s.derivedDir, ManifestFile)
	if err := fsutil.WriteFile(manifestPath, mb, 0o644); err != nil {
		return Manifest{}, fmt.Errorf("cannot write manifest: %w", err)
	}

	s.logger.Debug("derived artifacts rebuilt", "dir", s.derivedDir, "specs", len(all), "latest", len(latest))
	return manifest, nil
}

// derive builds the all-versions and latest-versions tuples from entries
// ordered by Seq. Latest keeps the highest Seq per name and platform.
func derive(entries []Entry) (all, latest []Tuple) {
	newest := map[string]Tuple{}
	for _, e := range entries {
		view := gemspec.Sanitize(gemspec.Abbreviate(e.Spec))
		t := tupleOf(view)
		all = append(all, t)
		newest[t.Name+"\x00"+t.Platform] = t
	}
	for _, t := range newest {
		latest = append(latest, t)
	}
	sortTuples(all)
	sortTuples(latest)
	return all, latest
}

func tupleOf(spec gemspec.Specification) Tuple {
	platform := gemspec.PurePlatform
	var qualifiers packageurl.Qualifiers
	if !spec.IsPure() {
		platform = spec.Platform
		qualifiers = packageurl.Qualifiers{{Key: "platform", Value: spec.Platform}}
	}
	purl := packageurl.NewPackageURL(packageurl.TypeGem, "", spec.Name, spec.Version, qualifiers, "")
	return Tuple{
		Name:     spec.Name,
		Version:  spec.Version,
		Platform: platform,
		PURL:     purl.ToString(),
	}
}

func sortTuples(ts []Tuple) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Name != ts[j].Name {
			return ts[i].Name < ts[j].Name
		}
		if ts[i].Version != ts[j].Version {
			return ts[i].Version < ts[j].Version
		}
		return ts[i].Platform < ts[j].Platform
	})
}

func writeTuples(path string, ts []Tuple) error {
	if ts == nil {
		ts = []Tuple{}
	}
	b, err := codec.Marshal(ts)
	if err != nil {
		return fmt.Errorf("cannot encode %s: %w", path, err)
	}
	return fsutil.WriteFileFunc(path, 0o644, func(w io.Writer) error {
		zw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return err
		}
		if _, err := zw.Write(b); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	})
}

// ReadSpecs reads a derived specs file written by RebuildDerived.
func ReadSpecs(path string) ([]Tuple, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open specs file %s: %w", path, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("cannot read specs file %s: %w", path, err)
	}
	defer zr.Close()

	var out []Tuple
	if err := codec.NewDecoder(zr).Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid specs file %s: %w", path, err)
	}
	return out, nil
}

// ReadManifest reads the derived manifest from dir.
func ReadManifest(dir string) (Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)
	b, err := os.ReadFile(manifestPath)
	if err != nil {
		return Manifest{}, fmt.Errorf("cannot read manifest %s: %w", manifestPath, err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest JSON %s: %w", manifestPath, err)
	}
	return m, nil
}

// DerivedDir returns the directory receiving derived artifacts.
func (s *Store) DerivedDir() string { return s.derivedDir }

// Tag returns the derived artifact tag.
func (s *Store) Tag() string { return s.tag }
