package gemfile

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kamusis/gemhub/internal/gemspec"
)

// Gem metadata is YAML emitted by Ruby's Psych, full of local tags such as
// !ruby/object:Gem::Version. The document is walked as a node tree so those
// tags are carried along rather than interpreted.

const (
	tagSpecification = "!ruby/object:Gem::Specification"
	tagVersion       = "!ruby/object:Gem::Version"
	tagDependency    = "!ruby/object:Gem::Dependency"
	tagRequirement   = "!ruby/object:Gem::Requirement"
	tagBinary        = "!binary"

	dateLayout = "2006-01-02 15:04:05.000000000 Z"
)

var dateLayouts = []string{
	"2006-01-02 15:04:05 Z",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04:05 -0700",
	time.RFC3339Nano,
	"2006-01-02",
}

func decodeSpec(data []byte) (gemspec.Specification, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return gemspec.Specification{}, fmt.Errorf("invalid specification YAML: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return gemspec.Specification{}, fmt.Errorf("specification is not a mapping")
	}

	spec := gemspec.Specification{
		Name:        scalar(field(root, "name")),
		Version:     versionString(field(root, "version")),
		Platform:    platformString(field(root, "platform")),
		Authors:     stringList(field(root, "authors")),
		Email:       stringList(field(root, "email")),
		Summary:     scalar(field(root, "summary")),
		Description: scalar(field(root, "description")),
		Homepage:    scalar(field(root, "homepage")),
		Licenses:    stringList(field(root, "licenses")),
		Files:       stringList(field(root, "files")),
		Metadata:    stringMap(field(root, "metadata")),
	}
	if spec.Version == "" {
		return gemspec.Specification{}, ErrMissingVersion
	}
	if spec.Platform == gemspec.PurePlatform {
		spec.Platform = ""
	}

	date, err := parseDate(scalar(field(root, "date")))
	if err != nil {
		return gemspec.Specification{}, err
	}
	spec.Date = date

	if deps := field(root, "dependencies"); deps != nil && deps.Kind == yaml.SequenceNode {
		for _, d := range deps.Content {
			if d.Kind != yaml.MappingNode {
				continue
			}
			spec.Dependencies = append(spec.Dependencies, dependency(d))
		}
	}
	return spec, nil
}

func dependency(n *yaml.Node) gemspec.Dependency {
	dep := gemspec.Dependency{
		Name: scalar(field(n, "name")),
		Type: strings.TrimPrefix(scalar(field(n, "type")), ":"),
	}
	if dep.Type == "" {
		dep.Type = gemspec.Runtime
	}
	req := field(n, "requirement")
	if req == nil {
		req = field(n, "version_requirements")
	}
	if req != nil {
		dep.Requirements = requirements(field(req, "requirements"))
	}
	return dep
}

// requirements reads the [[op, version], ...] list of a Gem::Requirement.
func requirements(n *yaml.Node) []gemspec.Requirement {
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	var out []gemspec.Requirement
	for _, pair := range n.Content {
		if pair.Kind != yaml.SequenceNode || len(pair.Content) != 2 {
			continue
		}
		out = append(out, gemspec.Requirement{
			Op:      scalar(pair.Content[0]),
			Version: versionString(pair.Content[1]),
		})
	}
	return out
}

func field(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func scalar(n *yaml.Node) string {
	if n == nil {
		return ""
	}
	if n.Kind == yaml.AliasNode {
		return scalar(n.Alias)
	}
	if n.Kind != yaml.ScalarNode || n.ShortTag() == "!!null" {
		return ""
	}
	if n.Tag == tagBinary {
		if b, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(n.Value), "")); err == nil {
			return string(b)
		}
	}
	return n.Value
}

// versionString accepts both a tagged Gem::Version mapping and a bare scalar.
func versionString(n *yaml.Node) string {
	if n == nil {
		return ""
	}
	if n.Kind == yaml.MappingNode {
		return scalar(field(n, "version"))
	}
	return scalar(n)
}

// platformString accepts a scalar or a Gem::Platform mapping {cpu, os, version}.
func platformString(n *yaml.Node) string {
	if n == nil || n.Kind != yaml.MappingNode {
		return scalar(n)
	}
	var parts []string
	for _, k := range []string{"cpu", "os", "version"} {
		if v := scalar(field(n, k)); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "-")
}

func stringList(n *yaml.Node) []string {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.ScalarNode {
		if v := scalar(n); v != "" {
			return []string{v}
		}
		return nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil
	}
	var out []string
	for _, c := range n.Content {
		if v := scalar(c); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func stringMap(n *yaml.Node) map[string]string {
	if n == nil || n.Kind != yaml.MappingNode || len(n.Content) == 0 {
		return nil
	}
	out := make(map[string]string, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out[n.Content[i].Value] = scalar(n.Content[i+1])
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// encodeSpec renders spec the way RubyGems writes metadata.gz.
func encodeSpec(spec gemspec.Specification) ([]byte, error) {
	root := mapping(tagSpecification,
		"name", str(spec.Name),
		"version", mapping(tagVersion, "version", str(spec.Version)),
		"platform", str(platformOrPure(spec.Platform)),
		"authors", strSeq(spec.Authors),
		"date", str(formatDate(spec.Date)),
		"dependencies", dependencySeq(spec.Dependencies),
		"description", str(spec.Description),
		"email", strSeq(spec.Email),
		"files", strSeq(spec.Files),
		"homepage", str(spec.Homepage),
		"licenses", strSeq(spec.Licenses),
		"metadata", strMap(spec.Metadata),
		"summary", str(spec.Summary),
	)
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
	return yaml.Marshal(doc)
}

func platformOrPure(p string) string {
	if p == "" {
		return gemspec.PurePlatform
	}
	return p
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func dependencySeq(deps []gemspec.Dependency) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, d := range deps {
		pairs := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, r := range d.Requirements {
			pairs.Content = append(pairs.Content, &yaml.Node{
				Kind: yaml.SequenceNode,
				Tag:  "!!seq",
				Content: []*yaml.Node{
					str(r.Op),
					mapping(tagVersion, "version", str(r.Version)),
				},
			})
		}
		typ := d.Type
		if typ == "" {
			typ = gemspec.Runtime
		}
		seq.Content = append(seq.Content, mapping(tagDependency,
			"name", str(d.Name),
			"requirement", mapping(tagRequirement, "requirements", pairs),
			"type", str(":"+typ),
			"prerelease", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "false"},
		))
	}
	return seq
}

func mapping(tag string, kv ...any) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: tag}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Content = append(n.Content, str(kv[i].(string)), kv[i+1].(*yaml.Node))
	}
	return n
}

func str(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func strSeq(items []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, s := range items {
		n.Content = append(n.Content, str(s))
	}
	return n
}

func strMap(m map[string]string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.Content = append(n.Content, str(k), str(m[k]))
	}
	return n
}
