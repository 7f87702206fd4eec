package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/dshills/promptbench/internal/domain"
	"github.com/dshills/promptbench/internal/repository"
	"github.com/google/uuid"
)

// Repository is an in-memory mock repository for testing.
type Repository struct {
	mu           sync.RWMutex
	templates    map[uuid.UUID]*domain.Template
	order        []uuid.UUID
	placeholders map[uuid.UUID]*domain.Placeholder
	closed       bool
}

// New creates a new mock repository.
func New() *Repository {
	return &Repository{
		templates:    make(map[uuid.UUID]*domain.Template),
		placeholders: make(map[uuid.UUID]*domain.Placeholder),
	}
}

// Templates

func (r *Repository) CreateTemplate(ctx context.Context, template *domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[template.ID]; ok {
		return domain.ErrConflict
	}
	if template.Category == "" {
		template.Category = domain.CategoryBias
	}
	stored := *template
	stored.Placeholders = nil
	r.templates[template.ID] = &stored
	r.order = append(r.order, template.ID)
	for i, p := range template.Placeholders {
		p.TemplateID = template.ID
		p.Position = i
		r.placeholders[p.ID] = clonePlaceholder(p)
	}
	return nil
}

func (r *Repository) GetTemplate(ctx context.Context, id uuid.UUID) (*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.assemble(t), nil
}

func (r *Repository) ListTemplates(ctx context.Context) ([]*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*domain.Template, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.assemble(r.templates[id]))
	}
	return result, nil
}

func (r *Repository) UpdateTemplate(ctx context.Context, template *domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.templates[template.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.Label = template.Label
	existing.Base = template.Base
	existing.Description = template.Description
	existing.ExpectedResult = template.ExpectedResult
	existing.Category = template.Category
	existing.UpdatedAt = template.UpdatedAt
	return nil
}

func (r *Repository) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[id]; !ok {
		return domain.ErrNotFound
	}
	// Delete related data
	for pID, p := range r.placeholders {
		if p.TemplateID == id {
			delete(r.placeholders, pID)
		}
	}
	delete(r.templates, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// assemble copies t and attaches its placeholders. Callers hold r.mu.
func (r *Repository) assemble(t *domain.Template) *domain.Template {
	out := *t
	out.Placeholders = r.placeholdersFor(&t.ID)
	return &out
}

func (r *Repository) placeholdersFor(templateID *uuid.UUID) []*domain.Placeholder {
	result := []*domain.Placeholder{}
	for _, p := range r.placeholders {
		if templateID == nil || p.TemplateID == *templateID {
			result = append(result, clonePlaceholder(p))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TemplateID != result[j].TemplateID {
			return result[i].TemplateID.String() < result[j].TemplateID.String()
		}
		return result[i].Position < result[j].Position
	})
	return result
}

func clonePlaceholder(p *domain.Placeholder) *domain.Placeholder {
	out := *p
	out.Values = append([]string(nil), p.Values...)
	return &out
}

// Placeholders

func (r *Repository) CreatePlaceholder(ctx context.Context, placeholder *domain.Placeholder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[placeholder.TemplateID]; !ok {
		return domain.ErrConflict
	}
	if _, ok := r.placeholders[placeholder.ID]; ok {
		return domain.ErrConflict
	}
	next := 0
	for _, p := range r.placeholders {
		if p.TemplateID == placeholder.TemplateID && p.Position >= next {
			next = p.Position + 1
		}
	}
	placeholder.Position = next
	r.placeholders[placeholder.ID] = clonePlaceholder(placeholder)
	return nil
}

func (r *Repository) GetPlaceholder(ctx context.Context, id uuid.UUID) (*domain.Placeholder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.placeholders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePlaceholder(p), nil
}

func (r *Repository) ListPlaceholders(ctx context.Context, templateID *uuid.UUID) ([]*domain.Placeholder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.placeholdersFor(templateID), nil
}

func (r *Repository) UpdatePlaceholder(ctx context.Context, placeholder *domain.Placeholder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.placeholders[placeholder.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.Name = placeholder.Name
	existing.Description = placeholder.Description
	existing.Values = append([]string(nil), placeholder.Values...)
	return nil
}

func (r *Repository) DeletePlaceholder(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.placeholders[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.placeholders, id)
	return nil
}

// Transaction support (simplified for testing)

func (r *Repository) WithTx(ctx context.Context, fn func(repository.Repository) error) error {
	return fn(r)
}

// Lifecycle

func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Ensure Repository implements repository.Repository
var _ repository.Repository = (*Repository)(nil)
