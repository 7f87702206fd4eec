// Package seed loads default templates from JSON or YAML files and stores
// the ones that are not already present.
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dshills/promptbench/internal/diff"
	"github.com/dshills/promptbench/internal/domain"
	"github.com/dshills/promptbench/internal/logger"
	"github.com/dshills/promptbench/internal/repository"
	"github.com/dshills/promptbench/internal/validator"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// templateDoc is one entry of a seed file. Older files name placeholders
// "markers" and their values "options"; both spellings are accepted.
type templateDoc struct {
	Label          string           `json:"label,omitempty" yaml:"label"`
	Base           string           `json:"base" yaml:"base"`
	Description    string           `json:"description" yaml:"description"`
	ExpectedResult string           `json:"expected_result,omitempty" yaml:"expected_result"`
	Category       string           `json:"category,omitempty" yaml:"category"`
	Placeholders   []placeholderDoc `json:"placeholders,omitempty" yaml:"placeholders"`
	Markers        []placeholderDoc `json:"markers,omitempty" yaml:"markers"`
}

type placeholderDoc struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Values      []string `json:"values,omitempty" yaml:"values"`
	Options     []string `json:"options,omitempty" yaml:"options"`
}

// normalized folds the legacy spellings into placeholders/values.
func (d templateDoc) normalized() templateDoc {
	out := d
	out.Placeholders = append(append([]placeholderDoc(nil), d.Placeholders...), d.Markers...)
	out.Markers = nil
	for i, p := range out.Placeholders {
		p.Values = append(append([]string(nil), p.Values...), p.Options...)
		p.Options = nil
		out.Placeholders[i] = p
	}
	return out
}

func (d templateDoc) template(now time.Time) *domain.Template {
	t := &domain.Template{
		ID:             uuid.New(),
		Label:          d.Label,
		Base:           d.Base,
		Description:    d.Description,
		ExpectedResult: d.ExpectedResult,
		Category:       domain.Category(d.Category),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if t.Category == "" {
		t.Category = domain.CategoryBias
	}
	for i, p := range d.Placeholders {
		t.Placeholders = append(t.Placeholders, &domain.Placeholder{
			ID:          uuid.New(),
			TemplateID:  t.ID,
			Name:        p.Name,
			Description: p.Description,
			Values:      p.Values,
			Position:    i,
			CreatedAt:   now,
		})
	}
	return t
}

// Loader reads seed files. A nil validator skips schema checks.
type Loader struct {
	v   *validator.Validator
	now func() time.Time
}

// NewLoader creates a Loader.
func NewLoader(v *validator.Validator) *Loader {
	return &Loader{v: v, now: time.Now}
}

// LoadDir loads every *.json, *.yaml and *.yml file in dir, in name order.
func (l *Loader) LoadDir(dir string) ([]*domain.Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read seed dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var templates []*domain.Template
	for _, name := range names {
		ts, err := l.LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		templates = append(templates, ts...)
	}
	return templates, nil
}

// LoadFile loads the templates in one seed file.
func (l *Loader) LoadFile(path string) ([]*domain.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var docs []templateDoc
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&docs)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&docs)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	now := l.now().UTC().Truncate(time.Second)
	templates := make([]*domain.Template, 0, len(docs))
	for i, doc := range docs {
		doc = doc.normalized()
		if err := l.check(doc); err != nil {
			return nil, fmt.Errorf("%s: template %d: %w", path, i, err)
		}
		t := doc.template(now)
		if v, ok := t.ConflictingValue(); ok {
			return nil, fmt.Errorf("%s: template %d: %w: %q", path, i, domain.ErrValueInUse, v)
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// check validates doc against the template creation schema.
func (l *Loader) check(doc templateDoc) error {
	if l.v == nil {
		return nil
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	result := l.v.Validate(validator.SchemaTemplateCreate, body)
	if result.Valid {
		return nil
	}
	msgs := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		msgs[i] = e.Path + ": " + e.Message
	}
	return fmt.Errorf("%w: %s", domain.ErrValidationFailed, strings.Join(msgs, "; "))
}

// Report summarizes an Apply run.
type Report struct {
	Created int
	Skipped int
}

// Apply stores templates in a single transaction, skipping any that duplicate
// a stored template or one earlier in the list.
func Apply(ctx context.Context, repo repository.Repository, templates []*domain.Template, log *logger.Logger) (Report, error) {
	var report Report
	err := repo.WithTx(ctx, func(tx repository.Repository) error {
		existing, err := tx.ListTemplates(ctx)
		if err != nil {
			return fmt.Errorf("list templates: %w", err)
		}
		for _, t := range templates {
			dup, err := diff.FindDuplicate(t, existing)
			if err != nil {
				return err
			}
			if dup != nil {
				log.Debug("seed template already present", "label", t.Label, "existing_id", dup.ID)
				report.Skipped++
				continue
			}
			if err := tx.CreateTemplate(ctx, t); err != nil {
				return fmt.Errorf("create template %q: %w", t.Label, err)
			}
			existing = append(existing, t)
			report.Created++
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	log.Info("seeded templates", "created", report.Created, "skipped", report.Skipped)
	return report, nil
}
