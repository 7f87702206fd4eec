package sqlite

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dshills/promptbench/internal/domain"
	"github.com/dshills/promptbench/internal/repository"
	"github.com/google/uuid"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "promptbench-test-*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	repo, err := New(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTemplate(base string, placeholders ...*domain.Placeholder) *domain.Template {
	now := time.Now().UTC().Truncate(time.Second)
	for _, p := range placeholders {
		p.CreatedAt = now
	}
	return &domain.Template{
		ID:             uuid.New(),
		Label:          "greeting_yn",
		Base:           base,
		Description:    "greeting check",
		ExpectedResult: "yes",
		Category:       domain.CategoryBias,
		Placeholders:   placeholders,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func newPlaceholder(name string, values ...string) *domain.Placeholder {
	return &domain.Placeholder{
		ID:     uuid.New(),
		Name:   name,
		Values: values,
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Template", func(t *testing.T) {
		tmpl := newTemplate("Hello, [name]! I am [role].",
			newPlaceholder("[name]", "ann", "bob"),
			newPlaceholder("[role]", "a doctor"),
		)
		if err := repo.CreateTemplate(ctx, tmpl); err != nil {
			t.Fatalf("CreateTemplate failed: %v", err)
		}

		got, err := repo.GetTemplate(ctx, tmpl.ID)
		if err != nil {
			t.Fatalf("GetTemplate failed: %v", err)
		}
		if got.Base != tmpl.Base {
			t.Errorf("Base mismatch: got %q, want %q", got.Base, tmpl.Base)
		}
		if got.Category != domain.CategoryBias {
			t.Errorf("Category mismatch: got %q", got.Category)
		}
		if !got.CreatedAt.Equal(tmpl.CreatedAt) {
			t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, tmpl.CreatedAt)
		}
		if len(got.Placeholders) != 2 {
			t.Fatalf("Expected 2 placeholders, got %d", len(got.Placeholders))
		}
		if got.Placeholders[0].Name != "[name]" || got.Placeholders[1].Name != "[role]" {
			t.Errorf("Placeholder order mismatch: %q, %q", got.Placeholders[0].Name, got.Placeholders[1].Name)
		}
		if len(got.Placeholders[0].Values) != 2 || got.Placeholders[0].Values[1] != "bob" {
			t.Errorf("Values mismatch: %v", got.Placeholders[0].Values)
		}

		// Test update
		got.Base = "Goodbye, [name]!"
		got.Category = domain.CategorySafety
		if err := repo.UpdateTemplate(ctx, got); err != nil {
			t.Fatalf("UpdateTemplate failed: %v", err)
		}
		updated, _ := repo.GetTemplate(ctx, tmpl.ID)
		if updated.Base != "Goodbye, [name]!" || updated.Category != domain.CategorySafety {
			t.Errorf("Update not persisted: %+v", updated)
		}

		// Test not found
		_, err = repo.GetTemplate(ctx, uuid.New())
		if err != domain.ErrNotFound {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if err := repo.UpdateTemplate(ctx, newTemplate("x")); err != domain.ErrNotFound {
			t.Errorf("Expected ErrNotFound on update, got %v", err)
		}
	})

	t.Run("DuplicateID", func(t *testing.T) {
		tmpl := newTemplate("Plain")
		if err := repo.CreateTemplate(ctx, tmpl); err != nil {
			t.Fatalf("CreateTemplate failed: %v", err)
		}
		err := repo.CreateTemplate(ctx, tmpl)
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("Expected ErrConflict, got %v", err)
		}
	})

	t.Run("Placeholder", func(t *testing.T) {
		tmpl := newTemplate("[a] and [b]", newPlaceholder("[a]", "x"))
		if err := repo.CreateTemplate(ctx, tmpl); err != nil {
			t.Fatalf("CreateTemplate failed: %v", err)
		}

		p := newPlaceholder("[b]", "y", "z")
		p.TemplateID = tmpl.ID
		p.CreatedAt = time.Now().UTC().Truncate(time.Second)
		if err := repo.CreatePlaceholder(ctx, p); err != nil {
			t.Fatalf("CreatePlaceholder failed: %v", err)
		}
		if p.Position != 1 {
			t.Errorf("Expected position 1, got %d", p.Position)
		}

		got, err := repo.GetPlaceholder(ctx, p.ID)
		if err != nil {
			t.Fatalf("GetPlaceholder failed: %v", err)
		}
		if got.TemplateID != tmpl.ID || len(got.Values) != 2 {
			t.Errorf("Placeholder mismatch: %+v", got)
		}

		got.Values = []string{"w"}
		got.Description = "letters"
		if err := repo.UpdatePlaceholder(ctx, got); err != nil {
			t.Fatalf("UpdatePlaceholder failed: %v", err)
		}

		list, err := repo.ListPlaceholders(ctx, &tmpl.ID)
		if err != nil {
			t.Fatalf("ListPlaceholders failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("Expected 2 placeholders, got %d", len(list))
		}
		if list[1].Values[0] != "w" || list[1].Description != "letters" {
			t.Errorf("Update not persisted: %+v", list[1])
		}

		if err := repo.DeletePlaceholder(ctx, p.ID); err != nil {
			t.Fatalf("DeletePlaceholder failed: %v", err)
		}
		if _, err := repo.GetPlaceholder(ctx, p.ID); err != domain.ErrNotFound {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.DeletePlaceholder(ctx, p.ID); err != domain.ErrNotFound {
			t.Errorf("Expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("PlaceholderForMissingTemplate", func(t *testing.T) {
		p := newPlaceholder("[x]", "1")
		p.TemplateID = uuid.New()
		err := repo.CreatePlaceholder(ctx, p)
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("Expected ErrConflict, got %v", err)
		}
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		ph := newPlaceholder("[q]", "1")
		tmpl := newTemplate("[q]", ph)
		if err := repo.CreateTemplate(ctx, tmpl); err != nil {
			t.Fatalf("CreateTemplate failed: %v", err)
		}
		if err := repo.DeleteTemplate(ctx, tmpl.ID); err != nil {
			t.Fatalf("DeleteTemplate failed: %v", err)
		}
		if _, err := repo.GetPlaceholder(ctx, ph.ID); err != domain.ErrNotFound {
			t.Errorf("Expected placeholder to be deleted, got %v", err)
		}
		if err := repo.DeleteTemplate(ctx, tmpl.ID); err != domain.ErrNotFound {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestListTemplates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := newTemplate("First [a]", newPlaceholder("[a]", "1"))
	second := newTemplate("Second [b] [c]", newPlaceholder("[b]", "2"), newPlaceholder("[c]", "3"))
	for _, tmpl := range []*domain.Template{first, second} {
		if err := repo.CreateTemplate(ctx, tmpl); err != nil {
			t.Fatalf("CreateTemplate failed: %v", err)
		}
	}

	list, err := repo.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 templates, got %d", len(list))
	}
	if list[0].ID != first.ID || list[1].ID != second.ID {
		t.Errorf("Templates not in creation order")
	}
	if len(list[0].Placeholders) != 1 || len(list[1].Placeholders) != 2 {
		t.Errorf("Placeholders not attached: %d, %d", len(list[0].Placeholders), len(list[1].Placeholders))
	}

	all, err := repo.ListPlaceholders(ctx, nil)
	if err != nil {
		t.Fatalf("ListPlaceholders failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 placeholders, got %d", len(all))
	}
}

func TestWithTx(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		tmpl := newTemplate("Committed")
		err := repo.WithTx(ctx, func(tx repository.Repository) error {
			return tx.CreateTemplate(ctx, tmpl)
		})
		if err != nil {
			t.Fatalf("WithTx failed: %v", err)
		}
		if _, err := repo.GetTemplate(ctx, tmpl.ID); err != nil {
			t.Errorf("Expected committed template, got %v", err)
		}
	})

	t.Run("Rollback", func(t *testing.T) {
		tmpl := newTemplate("Rolled back")
		sentinel := errors.New("abort")
		err := repo.WithTx(ctx, func(tx repository.Repository) error {
			if err := tx.CreateTemplate(ctx, tmpl); err != nil {
				return err
			}
			return sentinel
		})
		if err != sentinel {
			t.Fatalf("Expected sentinel error, got %v", err)
		}
		if _, err := repo.GetTemplate(ctx, tmpl.ID); err != domain.ErrNotFound {
			t.Errorf("Expected rollback, got %v", err)
		}
	})

	t.Run("Nested", func(t *testing.T) {
		tmpl := newTemplate("Nested")
		err := repo.WithTx(ctx, func(tx repository.Repository) error {
			return tx.WithTx(ctx, func(inner repository.Repository) error {
				return inner.CreateTemplate(ctx, tmpl)
			})
		})
		if err != nil {
			t.Fatalf("WithTx failed: %v", err)
		}
		if _, err := repo.GetTemplate(ctx, tmpl.ID); err != nil {
			t.Errorf("Expected committed template, got %v", err)
		}
	})
}
