package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/kamusis/gemhub/internal/gemspec"
)

// Normalize appends the Version described by spec to pkg and rebuilds pkg's
// Linkset. pkg takes its name from spec when it has none yet. Nothing is
// persisted.
func Normalize(pkg *Package, spec gemspec.Specification) (*Version, error) {
	if pkg.Name == "" {
		pkg.Name = spec.Name
	}
	if strings.TrimSpace(pkg.Name) == "" {
		return nil, &ValidationError{Err: ErrBlankName}
	}
	if !safeName(pkg.Name) {
		return nil, &ValidationError{Package: pkg.Name, Err: ErrUnsafeName}
	}
	if spec.Name != pkg.Name {
		return nil, &ValidationError{Package: pkg.Name, Version: spec.Version, Err: ErrNameMismatch}
	}

	original := spec.OriginalName()
	if !safeName(original) {
		return nil, &ValidationError{Package: pkg.Name, Version: spec.Version, Err: ErrUnsafeName}
	}
	number := strings.TrimPrefix(original, spec.Name+"-")
	if pkg.HasVersion(number) {
		return nil, &ValidationError{Package: pkg.Name, Version: number, Err: ErrDuplicateVersion}
	}

	description := spec.Description
	if description == "" {
		description = spec.Summary
	}

	v := &Version{
		Number:       number,
		Platform:     spec.Platform,
		OriginalName: original,
		Authors:      norm.NFC.String(strings.Join(spec.Authors, ", ")),
		Description:  norm.NFC.String(description),
		CreatedAt:    spec.Date,
	}
	for _, d := range spec.Dependencies {
		v.Dependencies = append(v.Dependencies, &Dependency{
			Name:         d.Name,
			Requirements: d.RequirementsString(),
			Type:         d.Type,
		})
	}

	pkg.Versions = append(pkg.Versions, v)
	pkg.Linkset = &Linkset{Home: spec.Homepage}
	return v, nil
}

// safeName reports whether s can name a file under the repository root.
func safeName(s string) bool {
	if strings.HasPrefix(s, ".") {
		return false
	}
	for _, r := range s {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return false
		}
	}
	return true
}
