package search

import (
	"strings"
)

// Keyword searches docs by case-insensitive keyword matching over name,
// summary, description, authors and licenses. All query tokens must match
// (AND semantics). A token found in the name scores higher than one found
// elsewhere.
func Keyword(docs []Doc, query string, limit int) []Result {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return []Result{}
	}

	var out []Result
	for _, d := range docs {
		name := strings.ToLower(d.Name)
		blob := strings.ToLower(strings.Join([]string{d.Summary, d.Description, d.Authors, d.Licenses}, "\n"))
		score := 0.0
		why := "keyword"
		ok := true
		for _, tok := range tokens {
			switch {
			case name == tok:
				score += 3
				why = "name"
			case strings.Contains(name, tok):
				score += 2
				why = "name"
			case strings.Contains(blob, tok):
				score++
			default:
				ok = false
			}
			if !ok {
				break
			}
		}
		if !ok {
			continue
		}
		out = append(out, Result{Doc: d, Score: score, Why: why})
	}

	SortResults(out)

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func tokenize(q string) []string {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil
	}
	parts := strings.Fields(q)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
