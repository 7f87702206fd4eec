// Package generator runs stored templates through the expander and builds
// the input records handed to callers and exporters.
package generator

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/dshills/promptbench/internal/domain"
	"github.com/dshills/promptbench/internal/expander"
	"github.com/dshills/promptbench/internal/export"
	"github.com/dshills/promptbench/internal/logger"
	"github.com/dshills/promptbench/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Generation is the output of expanding one template.
type Generation struct {
	Template *domain.Template
	Result   *expander.Result
	Inputs   []domain.Input
}

// Batch converts g for CSV export.
func (g *Generation) Batch() export.Batch {
	return export.Batch{Template: g.Template, Active: g.Result.Active, Inputs: g.Inputs}
}

// Batches converts a slice of generations for CSV export.
func Batches(gens []*Generation) []export.Batch {
	out := make([]export.Batch, len(gens))
	for i, g := range gens {
		out[i] = g.Batch()
	}
	return out
}

// Service generates inputs for stored templates.
type Service struct {
	repo         repository.Repository
	exp          *expander.Expander
	log          *logger.Logger
	defaultCount int
	workers      int
}

// Option configures a Service.
type Option func(*Service)

// WithDefaultCount sets the count used when a caller does not ask for one.
func WithDefaultCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultCount = n
		}
	}
}

// WithWorkers bounds the goroutines GenerateAll uses.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewService creates a generator service.
func NewService(repo repository.Repository, exp *expander.Expander, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		exp:          exp,
		log:          log,
		defaultCount: expander.DefaultCount,
		workers:      runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultCount returns the count used when none is requested.
func (s *Service) DefaultCount() int {
	return s.defaultCount
}

// Limit returns the ceiling on inputs per template.
func (s *Service) Limit() int {
	return s.exp.Limit()
}

// ToExpander converts a stored template into expander input.
func ToExpander(t *domain.Template) expander.Template {
	et := expander.Template{
		Base:           t.Base,
		Description:    t.Description,
		ExpectedResult: t.ExpectedResult,
		Placeholders:   make([]expander.Placeholder, len(t.Placeholders)),
	}
	for i, p := range t.Placeholders {
		et.Placeholders[i] = expander.Placeholder{Name: p.Name, Values: p.Values}
	}
	return et
}

// Expand runs an already loaded template through the expander.
func (s *Service) Expand(t *domain.Template, n int, mode expander.Mode) (*Generation, error) {
	res, err := s.exp.Expand(ToExpander(t), n, mode)
	if err != nil {
		return nil, err
	}
	inputs := make([]domain.Input, len(res.Strings))
	for i, text := range res.Strings {
		inputs[i] = domain.Input{
			Text:           text,
			Category:       t.Category,
			ExpectedResult: res.ExpectedResult,
			Values:         res.Values(i),
		}
	}
	return &Generation{Template: t, Result: res, Inputs: inputs}, nil
}

// Generate loads the template with the given id and expands it.
func (s *Service) Generate(ctx context.Context, templateID uuid.UUID, n int, mode expander.Mode) (*Generation, error) {
	t, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	gen, err := s.Expand(t, n, mode)
	if err != nil {
		return nil, fmt.Errorf("expand template %s: %w", templateID, err)
	}
	s.log.Debug("generated inputs",
		"template_id", templateID,
		"mode", mode,
		"requested", n,
		"returned", len(gen.Inputs),
		"domain_size", gen.Result.DomainSize)
	return gen, nil
}

// GenerateAll expands every stored template concurrently. Templates that
// cannot be expanded are logged and skipped. The result keeps the
// repository's template order.
func (s *Service) GenerateAll(ctx context.Context, n int, mode expander.Mode) ([]*Generation, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %s", expander.ErrInvalidMode, mode)
	}
	templates, err := s.repo.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	gens := make([]*Generation, len(templates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, t := range templates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			gen, err := s.Expand(t, n, mode)
			if err != nil {
				if errors.Is(err, expander.ErrInvalidTemplate) {
					s.log.Warn("skipping template", "template_id", t.ID, "error", err)
					return nil
				}
				return fmt.Errorf("expand template %s: %w", t.ID, err)
			}
			gens[i] = gen
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := gens[:0]
	for _, gen := range gens {
		if gen != nil {
			out = append(out, gen)
		}
	}
	return out, nil
}
