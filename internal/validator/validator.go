// Package validator checks request bodies against embedded JSON Schemas.
package validator

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schemas/*.json
var schemasFS embed.FS

var printer = message.NewPrinter(language.English)

// Schema names a request body schema.
type Schema string

const (
	SchemaTemplateCreate Schema = "template.json"
	SchemaTemplateUpdate Schema = "template_update.json"
	SchemaPlaceholder    Schema = "placeholder.json"
)

var allSchemas = []Schema{SchemaPlaceholder, SchemaTemplateCreate, SchemaTemplateUpdate}

// ValidationError is one failed constraint.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validator validates JSON request bodies against the embedded schemas.
type Validator struct {
	schemas map[Schema]*jsonschema.Schema
}

// New compiles the embedded request schemas.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()

	// Register every document first so $refs between them resolve.
	for _, name := range allSchemas {
		f, err := schemasFS.Open("schemas/" + string(name))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", name, err)
		}
		if err := c.AddResource(string(name), doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", name, err)
		}
	}

	v := &Validator{schemas: make(map[Schema]*jsonschema.Schema, len(allSchemas))}
	for _, name := range allSchemas {
		schema, err := c.Compile(string(name))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

// Validate checks body against the named schema. Errors are reported per
// instance location, sorted by path.
func (v *Validator) Validate(name Schema, body []byte) ValidationResult {
	schema, ok := v.schemas[name]
	if !ok {
		return invalid("/", fmt.Sprintf("unknown schema %q", name))
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return invalid("/", fmt.Sprintf("invalid JSON: %v", err))
	}

	err = schema.Validate(doc)
	if err == nil {
		return ValidationResult{Valid: true}
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return invalid("/", err.Error())
	}

	var errs []ValidationError
	collectLeaves(ve, &errs)
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Path < errs[j].Path })
	return ValidationResult{Valid: false, Errors: errs}
}

func invalid(path, msg string) ValidationResult {
	return ValidationResult{Errors: []ValidationError{{Path: path, Message: msg}}}
}

// collectLeaves appends the innermost causes of ve. Messages are rendered
// without the location prefix, which Path already carries.
func collectLeaves(ve *jsonschema.ValidationError, out *[]ValidationError) {
	if len(ve.Causes) == 0 {
		*out = append(*out, ValidationError{
			Path:    "/" + strings.Join(ve.InstanceLocation, "/"),
			Message: ve.ErrorKind.LocalizedString(printer),
		})
		return
	}
	for _, cause := range ve.Causes {
		collectLeaves(cause, out)
	}
}
