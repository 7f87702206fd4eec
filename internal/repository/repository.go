package repository

import (
	"context"

	"github.com/dshills/promptbench/internal/domain"
	"github.com/google/uuid"
)

// Repository defines the interface for persistent storage.
type Repository interface {
	// Templates. Reads return templates with their placeholders ordered by position.
	CreateTemplate(ctx context.Context, template *domain.Template) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*domain.Template, error)
	ListTemplates(ctx context.Context) ([]*domain.Template, error)
	UpdateTemplate(ctx context.Context, template *domain.Template) error
	DeleteTemplate(ctx context.Context, id uuid.UUID) error

	// Placeholders
	CreatePlaceholder(ctx context.Context, placeholder *domain.Placeholder) error
	GetPlaceholder(ctx context.Context, id uuid.UUID) (*domain.Placeholder, error)
	ListPlaceholders(ctx context.Context, templateID *uuid.UUID) ([]*domain.Placeholder, error)
	UpdatePlaceholder(ctx context.Context, placeholder *domain.Placeholder) error
	DeletePlaceholder(ctx context.Context, id uuid.UUID) error

	// Transaction support
	WithTx(ctx context.Context, fn func(Repository) error) error

	// Lifecycle
	Close() error
}
