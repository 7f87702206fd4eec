// Package search finds templates by fuzzy matching.
package search

import (
	"strings"

	"github.com/dshills/promptbench/internal/domain"
	"github.com/sahilm/fuzzy"
)

// templateSource exposes templates to the fuzzy matcher.
type templateSource []*domain.Template

func (s templateSource) String(i int) string {
	t := s[i]
	fields := []string{t.Label, string(t.Category), t.Description, t.Base}
	for _, p := range t.Placeholders {
		fields = append(fields, p.Name)
	}
	return strings.ToLower(strings.Join(fields, " "))
}

func (s templateSource) Len() int { return len(s) }

// Templates returns the templates matching query, best match first. An empty
// query returns templates unchanged.
func Templates(query string, templates []*domain.Template) []*domain.Template {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return templates
	}

	matches := fuzzy.FindFrom(query, templateSource(templates))

	results := make([]*domain.Template, 0, len(matches))
	for _, match := range matches {
		results = append(results, templates[match.Index])
	}
	return results
}
