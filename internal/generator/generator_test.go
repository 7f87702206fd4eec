package generator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dshills/promptbench/internal/domain"
	"github.com/dshills/promptbench/internal/expander"
	"github.com/dshills/promptbench/internal/logger"
	"github.com/dshills/promptbench/internal/repository/mock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTemplate(t *testing.T, repo *mock.Repository, label, base string, placeholders map[string][]string, order ...string) *domain.Template {
	t.Helper()
	now := time.Now().UTC()
	tmpl := &domain.Template{
		ID:             uuid.New(),
		Label:          label,
		Base:           base,
		Description:    "desc " + label,
		ExpectedResult: "no",
		Category:       domain.CategorySafety,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, name := range order {
		tmpl.Placeholders = append(tmpl.Placeholders, &domain.Placeholder{
			ID: uuid.New(), Name: name, Values: placeholders[name], CreatedAt: now,
		})
	}
	require.NoError(t, repo.CreateTemplate(context.Background(), tmpl))
	return tmpl
}

func newService(repo *mock.Repository, opts ...Option) *Service {
	return NewService(repo, expander.New(expander.WithSeed(7)), logger.NewNop(), opts...)
}

func TestGenerate(t *testing.T) {
	repo := mock.New()
	tmpl := seedTemplate(t, repo, "who_yn", "Is [who] a [job]?",
		map[string][]string{"[who]": {"he", "she"}, "[job]": {"nurse", "pilot"}}, "[who]", "[job]")

	svc := newService(repo)
	gen, err := svc.Generate(context.Background(), tmpl.ID, 10, expander.ModeExhaustive)
	require.NoError(t, err)

	require.Len(t, gen.Inputs, 4)
	assert.Equal(t, domain.Input{
		Text:           "Is he a nurse?",
		Category:       domain.CategorySafety,
		ExpectedResult: "no",
		Values:         map[string]string{"[who]": "he", "[job]": "nurse"},
	}, gen.Inputs[0])
	assert.Equal(t, "Is she a pilot?", gen.Inputs[3].Text)
	assert.Equal(t, 4, gen.Result.DomainSize)

	batch := gen.Batch()
	assert.Equal(t, []string{"[who]", "[job]"}, batch.Active)
	assert.Same(t, gen.Template, batch.Template)
}

func TestGenerateErrors(t *testing.T) {
	repo := mock.New()
	svc := newService(repo)

	_, err := svc.Generate(context.Background(), uuid.New(), 1, expander.ModeRandom)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	tmpl := seedTemplate(t, repo, "x", "[a]", map[string][]string{"[a]": nil}, "[a]")
	_, err = svc.Generate(context.Background(), tmpl.ID, 1, expander.ModeRandom)
	assert.ErrorIs(t, err, expander.ErrInvalidTemplate)

	_, err = svc.Generate(context.Background(), tmpl.ID, 1, expander.Mode(9))
	assert.ErrorIs(t, err, expander.ErrInvalidMode)
}

func TestGenerateAll(t *testing.T) {
	repo := mock.New()
	var want []uuid.UUID
	for i := 0; i < 12; i++ {
		tmpl := seedTemplate(t, repo, fmt.Sprintf("t%d", i), fmt.Sprintf("T%d [v]", i),
			map[string][]string{"[v]": {"a", "b", "c"}}, "[v]")
		want = append(want, tmpl.ID)
	}
	// Invalid templates are skipped, not fatal.
	seedTemplate(t, repo, "broken", "[v]", map[string][]string{"[v]": {}}, "[v]")

	svc := newService(repo, WithWorkers(3))
	gens, err := svc.GenerateAll(context.Background(), 2, expander.ModeRandom)
	require.NoError(t, err)
	require.Len(t, gens, len(want))

	for i, gen := range gens {
		assert.Equal(t, want[i], gen.Template.ID, "order preserved")
		assert.Len(t, gen.Inputs, 2)
	}
	assert.Len(t, Batches(gens), len(want))
}

func TestGenerateAllInvalidMode(t *testing.T) {
	svc := newService(mock.New())
	_, err := svc.GenerateAll(context.Background(), 1, expander.Mode(42))
	assert.ErrorIs(t, err, expander.ErrInvalidMode)
}

func TestGenerateAllCancelled(t *testing.T) {
	repo := mock.New()
	seedTemplate(t, repo, "a", "A [v]", map[string][]string{"[v]": {"1"}}, "[v]")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newService(repo).GenerateAll(ctx, 1, expander.ModeRandom)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaults(t *testing.T) {
	svc := NewService(mock.New(), expander.New(expander.WithLimit(500)), logger.NewNop(), WithDefaultCount(25))
	assert.Equal(t, 25, svc.DefaultCount())
	assert.Equal(t, 500, svc.Limit())
}
