// Package gemspec defines the specification embedded in every gem archive.
package gemspec

import (
	"strings"
	"time"
)

// Dependency types as they appear in gem metadata.
const (
	Runtime     = "runtime"
	Development = "development"
)

// Requirement is one version constraint, e.g. {">=", "2.0"}.
type Requirement struct {
	Op      string `cbor:"op" json:"op"`
	Version string `cbor:"version" json:"version"`
}

func (r Requirement) String() string {
	return r.Op + " " + r.Version
}

// Dependency is one entry of a specification's dependency list.
type Dependency struct {
	Name         string        `cbor:"name" json:"name"`
	Type         string        `cbor:"type" json:"type"`
	Requirements []Requirement `cbor:"requirements" json:"requirements"`
}

// RequirementsString flattens the constraints into the human readable form
// stored on dependency records, e.g. ">= 1.0, < 2.0". An unconstrained
// dependency reads ">= 0".
func (d Dependency) RequirementsString() string {
	if len(d.Requirements) == 0 {
		return ">= 0"
	}
	parts := make([]string, len(d.Requirements))
	for i, r := range d.Requirements {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}

// Specification is the parsed metadata of one gem version.
type Specification struct {
	Name         string            `cbor:"name" json:"name"`
	Version      string            `cbor:"version" json:"version"`
	Platform     string            `cbor:"platform,omitempty" json:"platform,omitempty"`
	Authors      []string          `cbor:"authors" json:"authors"`
	Email        []string          `cbor:"email,omitempty" json:"email,omitempty"`
	Summary      string            `cbor:"summary" json:"summary"`
	Description  string            `cbor:"description,omitempty" json:"description,omitempty"`
	Homepage     string            `cbor:"homepage,omitempty" json:"homepage,omitempty"`
	Licenses     []string          `cbor:"licenses,omitempty" json:"licenses,omitempty"`
	Date         time.Time         `cbor:"date" json:"date"`
	Files        []string          `cbor:"files,omitempty" json:"files,omitempty"`
	Dependencies []Dependency      `cbor:"dependencies" json:"dependencies"`
	Metadata     map[string]string `cbor:"metadata,omitempty" json:"metadata,omitempty"`
}

// PurePlatform is the platform of gems that contain no native code.
const PurePlatform = "ruby"

// IsPure reports whether the specification targets every platform.
func (s *Specification) IsPure() bool {
	return s.Platform == "" || s.Platform == PurePlatform
}

// OriginalName returns the fully version-qualified identifier used to name the
// archive and quick-lookup files: "name-version" or "name-version-platform".
func (s *Specification) OriginalName() string {
	if s.IsPure() {
		return s.Name + "-" + s.Version
	}
	return s.Name + "-" + s.Version + "-" + s.Platform
}

// Clone returns a deep copy of s.
func (s *Specification) Clone() Specification {
	c := *s
	c.Authors = cloneStrings(s.Authors)
	c.Email = cloneStrings(s.Email)
	c.Licenses = cloneStrings(s.Licenses)
	c.Files = cloneStrings(s.Files)
	if s.Dependencies != nil {
		c.Dependencies = make([]Dependency, len(s.Dependencies))
		for i, d := range s.Dependencies {
			d.Requirements = append([]Requirement(nil), d.Requirements...)
			c.Dependencies[i] = d
		}
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
