package domain

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies the inputs generated from a template.
type Category string

const (
	CategoryBias   Category = "bias"
	CategorySafety Category = "safety"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryBias || c == CategorySafety
}

// Template is a parametrized prompt: a base string with placeholder tokens.
type Template struct {
	ID             uuid.UUID      `json:"id"`
	Label          string         `json:"label"` // stable identifier, drives the oracle type
	Base           string         `json:"base"`
	Description    string         `json:"description"`
	ExpectedResult string         `json:"expected_result"`
	Category       Category       `json:"category"`
	Placeholders   []*Placeholder `json:"placeholders"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Placeholder is a named token and the values that may be substituted for it.
type Placeholder struct {
	ID          uuid.UUID `json:"id"`
	TemplateID  uuid.UUID `json:"template_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Values      []string  `json:"values"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}

// Input is a single generated prompt, ready to be sent to a model.
type Input struct {
	Text           string            `json:"text"`
	Category       Category          `json:"category"`
	ExpectedResult string            `json:"expected_result"`
	Values         map[string]string `json:"values,omitempty"` // placeholder name -> chosen value
}

// UsedValues returns every value held by placeholders of t other than skip.
func (t *Template) UsedValues(skip uuid.UUID) map[string]uuid.UUID {
	used := make(map[string]uuid.UUID)
	for _, p := range t.Placeholders {
		if p.ID == skip {
			continue
		}
		for _, v := range p.Values {
			used[v] = p.ID
		}
	}
	return used
}

// ConflictingValue returns a value that appears in more than one placeholder
// of t. Repeats inside a single placeholder are allowed.
func (t *Template) ConflictingValue() (string, bool) {
	owner := make(map[string]int)
	for i, p := range t.Placeholders {
		for _, v := range p.Values {
			if j, ok := owner[v]; ok && j != i {
				return v, true
			}
			owner[v] = i
		}
	}
	return "", false
}
