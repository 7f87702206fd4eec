// Package diff computes structural differences between template documents.
package diff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/promptbench/internal/domain"
)

// ChangeType classifies a Change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeRemoved  ChangeType = "removed"
	ChangeModified ChangeType = "modified"
)

// Change is one difference, addressed by a slash-separated path.
type Change struct {
	Path     string          `json:"path"`
	Type     ChangeType      `json:"type"`
	OldValue json.RawMessage `json:"old_value,omitempty"`
	NewValue json.RawMessage `json:"new_value,omitempty"`
}

// Result is the diff from the base document to the target.
type Result struct {
	Changes  []Change `json:"changes"`
	Summary  Summary  `json:"summary"`
	BaseID   string   `json:"base_id"`
	TargetID string   `json:"target_id"`
}

// Summary counts changes by type.
type Summary struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
	Total    int `json:"total"`
}

// document is the comparable form of a template. Placeholders are keyed by
// name and their values sorted, so order does not register as a change.
type document struct {
	Label          string                         `json:"label"`
	Category       string                         `json:"category"`
	Base           string                         `json:"base"`
	Description    string                         `json:"description"`
	ExpectedResult string                         `json:"expected_result"`
	Placeholders   map[string]placeholderDocument `json:"placeholders"`
}

type placeholderDocument struct {
	Description string   `json:"description"`
	Values      []string `json:"values"`
}

// identityFields are ignored when deciding whether two templates are duplicates.
var identityFields = map[string]bool{
	"label":    true,
	"category": true,
}

// Document renders t in comparable JSON form.
func Document(t *domain.Template) (json.RawMessage, error) {
	doc := document{
		Label:          t.Label,
		Category:       string(t.Category),
		Base:           t.Base,
		Description:    t.Description,
		ExpectedResult: t.ExpectedResult,
		Placeholders:   make(map[string]placeholderDocument, len(t.Placeholders)),
	}
	for _, p := range t.Placeholders {
		if _, seen := doc.Placeholders[p.Name]; seen {
			continue // first placeholder with a name binds
		}
		values := uniqueSorted(p.Values)
		doc.Placeholders[p.Name] = placeholderDocument{Description: p.Description, Values: values}
	}
	return json.Marshal(doc)
}

func uniqueSorted(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// Templates computes the diff from base to target.
func Templates(base, target *domain.Template) (*Result, error) {
	baseJSON, err := Document(base)
	if err != nil {
		return nil, fmt.Errorf("marshal base: %w", err)
	}
	targetJSON, err := Document(target)
	if err != nil {
		return nil, fmt.Errorf("marshal target: %w", err)
	}
	return Documents(baseJSON, targetJSON, base.ID.String(), target.ID.String())
}

// Equivalent reports whether a and b would be duplicates of each other: the
// same base, description, expected result and placeholder sets.
func Equivalent(a, b *domain.Template) (bool, error) {
	result, err := Templates(a, b)
	if err != nil {
		return false, err
	}
	for _, c := range result.Changes {
		if !identityFields[topLevelField(c.Path)] {
			return false, nil
		}
	}
	return true, nil
}

// FindDuplicate returns the first template in existing that is equivalent to
// t, ignoring t itself.
func FindDuplicate(t *domain.Template, existing []*domain.Template) (*domain.Template, error) {
	for _, other := range existing {
		if other.ID == t.ID {
			continue
		}
		eq, err := Equivalent(t, other)
		if err != nil {
			return nil, err
		}
		if eq {
			return other, nil
		}
	}
	return nil, nil
}

// Documents computes the diff between two JSON documents. Empty input is
// treated as an empty object.
func Documents(baseJSON, targetJSON json.RawMessage, baseID, targetID string) (*Result, error) {
	base, err := decodeDocument(baseJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal base: %w", err)
	}
	target, err := decodeDocument(targetJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal target: %w", err)
	}

	var w walker
	w.compare("", base, target)
	sort.Slice(w.changes, func(i, j int) bool {
		return w.changes[i].Path < w.changes[j].Path
	})

	return &Result{
		Changes:  w.changes,
		Summary:  summarize(w.changes),
		BaseID:   baseID,
		TargetID: targetID,
	}, nil
}

func decodeDocument(raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func summarize(changes []Change) Summary {
	s := Summary{Total: len(changes)}
	for _, c := range changes {
		switch c.Type {
		case ChangeAdded:
			s.Added++
		case ChangeRemoved:
			s.Removed++
		case ChangeModified:
			s.Modified++
		}
	}
	return s
}

// walker collects changes while descending two decoded JSON values.
type walker struct {
	changes []Change
}

func (w *walker) add(path string, v interface{}) {
	w.changes = append(w.changes, Change{Path: path, Type: ChangeAdded, NewValue: toJSON(v)})
}

func (w *walker) remove(path string, v interface{}) {
	w.changes = append(w.changes, Change{Path: path, Type: ChangeRemoved, OldValue: toJSON(v)})
}

func (w *walker) modify(path string, from, to interface{}) {
	w.changes = append(w.changes, Change{Path: path, Type: ChangeModified, OldValue: toJSON(from), NewValue: toJSON(to)})
}

func (w *walker) compare(path string, base, target interface{}) {
	switch {
	case base == nil && target == nil:
		return
	case base == nil:
		w.add(path, target)
		return
	case target == nil:
		w.remove(path, base)
		return
	}

	switch b := base.(type) {
	case map[string]interface{}:
		t, ok := target.(map[string]interface{})
		if !ok {
			w.modify(path, base, target)
			return
		}
		w.compareObjects(path, b, t)
	case []interface{}:
		t, ok := target.([]interface{})
		if !ok {
			w.modify(path, base, target)
			return
		}
		w.compareLists(path, b, t)
	default:
		// Scalars decode to string, float64 or bool, all comparable.
		if base != target {
			w.modify(path, base, target)
		}
	}
}

func (w *walker) compareObjects(path string, base, target map[string]interface{}) {
	for k, bv := range base {
		tv, ok := target[k]
		if !ok {
			w.remove(joinPath(path, k), bv)
			continue
		}
		w.compare(joinPath(path, k), bv, tv)
	}
	for k, tv := range target {
		if _, ok := base[k]; !ok {
			w.add(joinPath(path, k), tv)
		}
	}
}

func (w *walker) compareLists(path string, base, target []interface{}) {
	for i := 0; i < max(len(base), len(target)); i++ {
		item := fmt.Sprintf("%s[%d]", path, i)
		switch {
		case i >= len(base):
			w.add(item, target[i])
		case i >= len(target):
			w.remove(item, base[i])
		default:
			w.compare(item, base[i], target[i])
		}
	}
}

func joinPath(parent, key string) string {
	return parent + "/" + key
}

func toJSON(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// ImpactAnalysis reports which template fields a diff touches.
type ImpactAnalysis struct {
	AffectedFields []string `json:"affected_fields"`
	// AffectsGeneration is set when the generated prompts change.
	AffectsGeneration bool `json:"affects_generation"`
}

// generationFields are the fields whose changes alter generated prompts.
var generationFields = map[string]bool{
	"base":         true,
	"placeholders": true,
}

// AnalyzeImpact lists the top-level fields touched by result.
func AnalyzeImpact(result *Result) *ImpactAnalysis {
	impact := &ImpactAnalysis{AffectedFields: []string{}}
	seen := make(map[string]bool)
	for _, c := range result.Changes {
		field := topLevelField(c.Path)
		if field == "" || seen[field] {
			continue
		}
		seen[field] = true
		impact.AffectedFields = append(impact.AffectedFields, field)
		impact.AffectsGeneration = impact.AffectsGeneration || generationFields[field]
	}
	sort.Strings(impact.AffectedFields)
	return impact
}

// topLevelField returns "base" for "/base" and "placeholders" for
// "/placeholders/[who]/values[2]".
func topLevelField(path string) string {
	field, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if i := strings.IndexByte(field, '['); i > 0 {
		field = field[:i]
	}
	return field
}
