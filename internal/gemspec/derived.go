package gemspec

import (
	"strings"
	"unicode"
)

// Abbreviate returns the view of s published in index-wide derived artifacts:
// the file list and free-form metadata are dropped since clients resolving
// dependencies never need them.
func Abbreviate(s Specification) Specification {
	a := s.Clone()
	a.Files = nil
	a.Metadata = nil
	return a
}

// Sanitize strips control characters and surrounding whitespace from every
// user-supplied text field so derived artifacts are safe to render as-is.
func Sanitize(s Specification) Specification {
	c := s.Clone()
	c.Summary = sanitizeText(c.Summary)
	c.Description = sanitizeText(c.Description)
	c.Homepage = sanitizeText(c.Homepage)
	for i := range c.Authors {
		c.Authors[i] = sanitizeText(c.Authors[i])
	}
	for i := range c.Email {
		c.Email[i] = sanitizeText(c.Email[i])
	}
	return c
}

func sanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
