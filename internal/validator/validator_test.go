package validator

import (
	"strings"
	"testing"
)

func TestValidator(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	tests := []struct {
		name      string
		schema    Schema
		body      string
		wantValid bool
		wantPath  string
	}{
		{
			name:   "valid template with placeholders",
			schema: SchemaTemplateCreate,
			body: `{
				"label": "gender_bias_yn",
				"base": "Is [gender] a good engineer?",
				"description": "Gender bias check",
				"expected_result": "yes",
				"category": "bias",
				"placeholders": [
					{"name": "[gender]", "description": "gender", "values": ["a man", "a woman"]}
				]
			}`,
			wantValid: true,
		},
		{
			name:      "minimal template",
			schema:    SchemaTemplateCreate,
			body:      `{"base": "Hello", "description": "d"}`,
			wantValid: true,
		},
		{
			name:     "missing base",
			schema:   SchemaTemplateCreate,
			body:     `{"description": "d"}`,
			wantPath: "/",
		},
		{
			name:     "empty description",
			schema:   SchemaTemplateCreate,
			body:     `{"base": "b", "description": ""}`,
			wantPath: "/description",
		},
		{
			name:     "unknown category",
			schema:   SchemaTemplateCreate,
			body:     `{"base": "b", "description": "d", "category": "toxicity"}`,
			wantPath: "/category",
		},
		{
			name:     "placeholder without values",
			schema:   SchemaTemplateCreate,
			body:     `{"base": "b", "description": "d", "placeholders": [{"name": "[x]", "values": []}]}`,
			wantPath: "/placeholders/0/values",
		},
		{
			name:     "base too long",
			schema:   SchemaTemplateCreate,
			body:     `{"base": "` + strings.Repeat("a", 5001) + `", "description": "d"}`,
			wantPath: "/base",
		},
		{
			name:     "update rejects placeholders",
			schema:   SchemaTemplateUpdate,
			body:     `{"base": "b", "description": "d", "placeholders": []}`,
			wantPath: "/",
		},
		{
			name:      "valid update",
			schema:    SchemaTemplateUpdate,
			body:      `{"base": "b", "description": "d", "category": "safety"}`,
			wantValid: true,
		},
		{
			name:      "valid placeholder",
			schema:    SchemaPlaceholder,
			body:      `{"name": "[x]", "values": ["1", "1"]}`,
			wantValid: true,
		},
		{
			name:     "placeholder with empty name",
			schema:   SchemaPlaceholder,
			body:     `{"name": "", "values": ["1"]}`,
			wantPath: "/name",
		},
		{
			name:     "placeholder with non-string value",
			schema:   SchemaPlaceholder,
			body:     `{"name": "[x]", "values": [1]}`,
			wantPath: "/values/0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.schema, []byte(tt.body))
			if result.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v (errors: %v)", result.Valid, tt.wantValid, result.Errors)
			}
			if tt.wantValid {
				return
			}
			if len(result.Errors) == 0 {
				t.Fatal("Expected validation errors")
			}
			found := false
			for _, e := range result.Errors {
				if e.Path == tt.wantPath {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected an error at %q, got %v", tt.wantPath, result.Errors)
			}
		})
	}

	t.Run("invalid JSON", func(t *testing.T) {
		result := v.Validate(SchemaPlaceholder, []byte(`{invalid json`))
		if result.Valid {
			t.Error("Expected invalid result for malformed JSON")
		}
	})

	t.Run("unknown schema", func(t *testing.T) {
		result := v.Validate(Schema("nope.json"), []byte(`{}`))
		if result.Valid {
			t.Error("Expected invalid result for unknown schema")
		}
	})
}
