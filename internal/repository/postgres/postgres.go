// Package postgres implements the repository on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/promptbench/internal/domain"
	"github.com/dshills/promptbench/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements repository.Repository on a pgx connection pool.
type Repository struct {
	store
	pool *pgxpool.Pool
}

type store struct {
	q querier
}

// New connects to dsn and creates the schema if needed.
func New(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	repo := &Repository{store: store{q: pool}, pool: pool}
	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return repo, nil
}

func (r *Repository) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS templates (
		id UUID PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		base TEXT NOT NULL,
		description TEXT NOT NULL,
		expected_result TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT 'bias',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		seq BIGSERIAL
	);
	CREATE INDEX IF NOT EXISTS idx_templates_label ON templates(label);

	CREATE TABLE IF NOT EXISTS placeholders (
		id UUID PRIMARY KEY,
		template_id UUID NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		vals TEXT[] NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_placeholders_template ON placeholders(template_id, position);
	`
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// WithTx executes fn within a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(repository.Repository) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&txRepository{store: store{q: tx}})
	})
}

type txRepository struct {
	store
}

func (t *txRepository) WithTx(ctx context.Context, fn func(repository.Repository) error) error {
	return fn(t)
}

func (t *txRepository) Close() error {
	return nil
}

// mapError translates constraint violations into domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505", "23503": // unique_violation, foreign_key_violation
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.Message)
		}
	}
	return err
}

// Templates

const templateColumns = `id, label, base, description, expected_result, category, created_at, updated_at`

func (s *store) CreateTemplate(ctx context.Context, t *domain.Template) error {
	if t.Category == "" {
		t.Category = domain.CategoryBias
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO templates (`+templateColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Label, t.Base, t.Description, t.ExpectedResult, string(t.Category), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	for i, p := range t.Placeholders {
		p.TemplateID = t.ID
		p.Position = i
		if err := s.insertPlaceholder(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *store) GetTemplate(ctx context.Context, id uuid.UUID) (*domain.Template, error) {
	row := s.q.QueryRow(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	t.Placeholders, err = s.ListPlaceholders(ctx, &id)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *store) ListTemplates(ctx context.Context) ([]*domain.Template, error) {
	rows, err := s.q.Query(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY created_at, seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*domain.Template
	byID := make(map[uuid.UUID]*domain.Template)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		t.Placeholders = []*domain.Placeholder{}
		templates = append(templates, t)
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	placeholders, err := s.ListPlaceholders(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, p := range placeholders {
		if t, ok := byID[p.TemplateID]; ok {
			t.Placeholders = append(t.Placeholders, p)
		}
	}
	return templates, nil
}

func (s *store) UpdateTemplate(ctx context.Context, t *domain.Template) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE templates SET label = $1, base = $2, description = $3, expected_result = $4, category = $5, updated_at = $6 WHERE id = $7`,
		t.Label, t.Base, t.Description, t.ExpectedResult, string(t.Category), t.UpdatedAt, t.ID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *store) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanTemplate(row pgx.Row) (*domain.Template, error) {
	var t domain.Template
	var category string
	if err := row.Scan(&t.ID, &t.Label, &t.Base, &t.Description, &t.ExpectedResult, &category, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Category = domain.Category(category)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

// Placeholders

const placeholderColumns = `id, template_id, name, description, vals, position, created_at`

func (s *store) CreatePlaceholder(ctx context.Context, p *domain.Placeholder) error {
	var next int
	err := s.q.QueryRow(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM placeholders WHERE template_id = $1`,
		p.TemplateID).Scan(&next)
	if err != nil {
		return err
	}
	p.Position = next
	return s.insertPlaceholder(ctx, p)
}

func (s *store) insertPlaceholder(ctx context.Context, p *domain.Placeholder) error {
	values := p.Values
	if values == nil {
		values = []string{}
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO placeholders (`+placeholderColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.TemplateID, p.Name, p.Description, values, p.Position, p.CreatedAt)
	return mapError(err)
}

func (s *store) GetPlaceholder(ctx context.Context, id uuid.UUID) (*domain.Placeholder, error) {
	row := s.q.QueryRow(ctx, `SELECT `+placeholderColumns+` FROM placeholders WHERE id = $1`, id)
	p, err := scanPlaceholder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *store) ListPlaceholders(ctx context.Context, templateID *uuid.UUID) ([]*domain.Placeholder, error) {
	query := `SELECT ` + placeholderColumns + ` FROM placeholders`
	var args []any
	if templateID != nil {
		query += ` WHERE template_id = $1`
		args = append(args, *templateID)
	}
	query += ` ORDER BY template_id, position`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	placeholders := []*domain.Placeholder{}
	for rows.Next() {
		p, err := scanPlaceholder(rows)
		if err != nil {
			return nil, err
		}
		placeholders = append(placeholders, p)
	}
	return placeholders, rows.Err()
}

func (s *store) UpdatePlaceholder(ctx context.Context, p *domain.Placeholder) error {
	values := p.Values
	if values == nil {
		values = []string{}
	}
	tag, err := s.q.Exec(ctx,
		`UPDATE placeholders SET name = $1, description = $2, vals = $3 WHERE id = $4`,
		p.Name, p.Description, values, p.ID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *store) DeletePlaceholder(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM placeholders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanPlaceholder(row pgx.Row) (*domain.Placeholder, error) {
	var p domain.Placeholder
	if err := row.Scan(&p.ID, &p.TemplateID, &p.Name, &p.Description, &p.Values, &p.Position, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

var _ repository.Repository = (*Repository)(nil)
var _ repository.Repository = (*txRepository)(nil)
