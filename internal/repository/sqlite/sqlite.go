package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/promptbench/internal/domain"
	"github.com/dshills/promptbench/internal/repository"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	store
	db *sql.DB
}

// store holds the query implementations shared by the repository and its
// transactional wrapper.
type store struct {
	q queryer
}

// New creates a new SQLite repository.
func New(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	repo := &SQLiteRepository{store: store{q: db}, db: db}
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		base TEXT NOT NULL,
		description TEXT NOT NULL,
		expected_result TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT 'bias',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_templates_label ON templates(label);

	CREATE TABLE IF NOT EXISTS placeholders (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		vals TEXT NOT NULL, -- JSON array
		position INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_placeholders_template ON placeholders(template_id, position);
	`

	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// WithTx executes fn within a transaction.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(repository.Repository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txRepo := &txRepository{store: store{q: tx}}
	if err := fn(txRepo); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// txRepository wraps a transaction for Repository operations.
type txRepository struct {
	store
}

func (t *txRepository) WithTx(ctx context.Context, fn func(repository.Repository) error) error {
	// Already in a transaction, just execute
	return fn(t)
}

func (t *txRepository) Close() error {
	return nil // No-op for transaction wrapper
}

// mapError translates driver constraint failures into domain errors.
func mapError(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}

// Templates

const templateColumns = `id, label, base, description, expected_result, category, created_at, updated_at`

func (s *store) CreateTemplate(ctx context.Context, t *domain.Template) error {
	category := t.Category
	if category == "" {
		category = domain.CategoryBias
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO templates (`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.Label, t.Base, t.Description, t.ExpectedResult, string(category),
		t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return mapError(err)
	}
	t.Category = category

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
	row := s.q.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id.String())
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	rows, err := s.q.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY created_at, rowid`)
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
	res, err := s.q.ExecContext(ctx,
		`UPDATE templates SET label = ?, base = ?, description = ?, expected_result = ?, category = ?, updated_at = ? WHERE id = ?`,
		t.Label, t.Base, t.Description, t.ExpectedResult, string(t.Category), t.UpdatedAt.Format(time.RFC3339), t.ID.String())
	if err != nil {
		return mapError(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *store) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	idStr := id.String()
	// Delete in order respecting foreign key constraints
	if _, err := s.q.ExecContext(ctx, `DELETE FROM placeholders WHERE template_id = ?`, idStr); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, idStr)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row scanner) (*domain.Template, error) {
	var t domain.Template
	var idStr, category, createdStr, updatedStr string
	if err := row.Scan(&idStr, &t.Label, &t.Base, &t.Description, &t.ExpectedResult, &category, &createdStr, &updatedStr); err != nil {
		return nil, err
	}
	var err error
	t.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	t.Category = domain.Category(category)
	t.CreatedAt, err = time.Parse(time.RFC3339, createdStr)
	if err != nil {
		return nil, err
	}
	t.UpdatedAt, err = time.Parse(time.RFC3339, updatedStr)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Placeholders

const placeholderColumns = `id, template_id, name, description, vals, position, created_at`

// CreatePlaceholder appends p after the template's existing placeholders.
func (s *store) CreatePlaceholder(ctx context.Context, p *domain.Placeholder) error {
	var next int
	err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM placeholders WHERE template_id = ?`,
		p.TemplateID.String()).Scan(&next)
	if err != nil {
		return err
	}
	p.Position = next
	return s.insertPlaceholder(ctx, p)
}

func (s *store) insertPlaceholder(ctx context.Context, p *domain.Placeholder) error {
	vals, err := json.Marshal(p.Values)
	if err != nil {
		return fmt.Errorf("marshal values: %w", err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO placeholders (`+placeholderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.TemplateID.String(), p.Name, p.Description, string(vals), p.Position,
		p.CreatedAt.Format(time.RFC3339))
	return mapError(err)
}

func (s *store) GetPlaceholder(ctx context.Context, id uuid.UUID) (*domain.Placeholder, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+placeholderColumns+` FROM placeholders WHERE id = ?`, id.String())
	p, err := scanPlaceholder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *store) ListPlaceholders(ctx context.Context, templateID *uuid.UUID) ([]*domain.Placeholder, error) {
	query := `SELECT ` + placeholderColumns + ` FROM placeholders`
	var args []interface{}
	if templateID != nil {
		query += ` WHERE template_id = ?`
		args = append(args, templateID.String())
	}
	query += ` ORDER BY template_id, position`

	rows, err := s.q.QueryContext(ctx, query, args...)
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
	vals, err := json.Marshal(p.Values)
	if err != nil {
		return fmt.Errorf("marshal values: %w", err)
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE placeholders SET name = ?, description = ?, vals = ? WHERE id = ?`,
		p.Name, p.Description, string(vals), p.ID.String())
	if err != nil {
		return mapError(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *store) DeletePlaceholder(ctx context.Context, id uuid.UUID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM placeholders WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanPlaceholder(row scanner) (*domain.Placeholder, error) {
	var p domain.Placeholder
	var idStr, templateIDStr, valsStr, createdStr string
	if err := row.Scan(&idStr, &templateIDStr, &p.Name, &p.Description, &valsStr, &p.Position, &createdStr); err != nil {
		return nil, err
	}
	var err error
	p.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	p.TemplateID, err = uuid.Parse(templateIDStr)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(valsStr), &p.Values); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	p.CreatedAt, err = time.Parse(time.RFC3339, createdStr)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Ensure implementations satisfy the interface
var _ repository.Repository = (*SQLiteRepository)(nil)
var _ repository.Repository = (*txRepository)(nil)
