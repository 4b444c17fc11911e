// Package catalog holds the relational view of everything ingested: packages,
// their versions in insertion order, each version's dependencies and the
// package's links. It backs the read-only query surface.
package catalog

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a package does not exist.
var ErrNotFound = errors.New("not found")

// Package is a named gem. Its name is immutable once created.
type Package struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	Versions  []*Version `json:"versions"`
	Linkset   *Linkset   `json:"linkset,omitempty"`
}

// Version is one released version of a Package.
type Version struct {
	// Position is the monotonic insertion sequence. Ordering and "current
	// version" are decided by it, never by the embedded (untrusted) date.
	Position     int64  `json:"position"`
	Number       string `json:"number"`
	Platform     string `json:"platform,omitempty"`
	OriginalName string `json:"original_name"`
	Authors      string `json:"authors"`
	Description  string `json:"description"`
	// CreatedAt is the publication date embedded in the archive.
	CreatedAt    time.Time     `json:"created_at"`
	Digest       string        `json:"digest"`
	Size         int64         `json:"size"`
	Dependencies []*Dependency `json:"dependencies"`
}

// Dependency references another package by name. The target may not exist yet.
type Dependency struct {
	Name         string `json:"name"`
	Requirements string `json:"requirements"`
	Type         string `json:"type"`
}

// Linkset carries a package's URLs.
type Linkset struct {
	Home string `json:"home"`
}

// CurrentVersion returns the most recently inserted version, or nil. Versions
// are kept in insertion order, so this is the last one.
func (p *Package) CurrentVersion() *Version {
	if len(p.Versions) == 0 {
		return nil
	}
	return p.Versions[len(p.Versions)-1]
}

// CurrentDependencies returns the dependencies of the current version.
func (p *Package) CurrentDependencies() []*Dependency {
	if v := p.CurrentVersion(); v != nil {
		return v.Dependencies
	}
	return nil
}

// HasVersion reports whether number is already recorded for p.
func (p *Package) HasVersion(number string) bool {
	for _, v := range p.Versions {
		if v.Number == number {
			return true
		}
	}
	return false
}

func (p *Package) String() string {
	if v := p.CurrentVersion(); v != nil {
		return fmt.Sprintf("%s (%s)", p.Name, v.Number)
	}
	return p.Name
}

// Summary is one row of ListPackages.
type Summary struct {
	Name           string
	CurrentVersion string
	Versions       int
}
