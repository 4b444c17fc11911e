package search

import (
	"strings"

	"github.com/kamusis/gemhub/internal/gemspec"
	"github.com/kamusis/gemhub/internal/index"
)

// Docs returns one Doc per package name from entries, using the most recently
// inserted version of each.
func Docs(entries []index.Entry) []Doc {
	latest := map[string]index.Entry{}
	for _, e := range entries {
		if prev, ok := latest[e.Spec.Name]; !ok || e.Seq > prev.Seq {
			latest[e.Spec.Name] = e
		}
	}

	out := make([]Doc, 0, len(latest))
	for _, e := range latest {
		spec := gemspec.Sanitize(gemspec.Abbreviate(e.Spec))
		out = append(out, Doc{
			Name:        spec.Name,
			Version:     spec.Version,
			Platform:    spec.Platform,
			Summary:     spec.Summary,
			Description: spec.Description,
			Authors:     strings.Join(spec.Authors, ", "),
			Licenses:    strings.Join(spec.Licenses, " "),
		})
	}
	return out
}
