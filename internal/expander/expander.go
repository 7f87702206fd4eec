// Package expander turns a template base and its placeholders into concrete
// prompt strings.
//
// A template's domain is the Cartesian product of the values of its active
// placeholders, the ones whose token occurs in the base. Expand either
// enumerates that domain in odometer order or samples it without replacement,
// and never returns more strings than the domain holds or the configured
// ceiling allows.
package expander

import (
	"fmt"
	"math/rand/v2"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// DefaultLimit is the hard ceiling on the number of strings one call returns.
	DefaultLimit = 50000

	// DefaultCount is the count used when a caller does not ask for one.
	DefaultCount = 100
)

// Placeholder is a token and the values that may replace it.
type Placeholder struct {
	Name   string
	Values []string
}

// Template is the input to Expand. It is never modified.
type Template struct {
	Base           string
	Description    string
	ExpectedResult string
	Placeholders   []Placeholder
}

// Result holds the generated strings and the metadata they travel with.
type Result struct {
	Strings        []string
	ExpectedResult string
	Description    string

	// Active names the placeholders that took part, in placeholder order.
	Active []string
	// Combinations holds the value chosen for each active placeholder, aligned
	// with Strings and Active.
	Combinations [][]string
	// DomainSize is the number of unique combinations, saturated at math.MaxInt.
	DomainSize int
	Requested  int
}

// Values returns the placeholder name to value mapping behind Strings[i].
func (r *Result) Values(i int) map[string]string {
	m := make(map[string]string, len(r.Active))
	for j, name := range r.Active {
		m[name] = r.Combinations[i][j]
	}
	return m
}

// Truncated reports whether fewer strings were returned than requested.
func (r *Result) Truncated() bool {
	return len(r.Strings) < r.Requested
}

// Expander expands templates. It is safe for concurrent use: every call gets
// its own random source and case mappers.
type Expander struct {
	limit   int
	lang    language.Tag
	newRand func() *rand.Rand
}

// Option configures an Expander.
type Option func(*Expander)

// WithLimit sets the ceiling on generated strings per call.
func WithLimit(limit int) Option {
	return func(e *Expander) {
		if limit > 0 {
			e.limit = limit
		}
	}
}

// WithSeed makes random mode deterministic: every call starts from the same seed.
func WithSeed(seed uint64) Option {
	return func(e *Expander) {
		e.newRand = func() *rand.Rand {
			return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		}
	}
}

// WithRandSource sets the function that supplies a random source for each call.
func WithRandSource(fn func() *rand.Rand) Option {
	return func(e *Expander) {
		if fn != nil {
			e.newRand = fn
		}
	}
}

// WithLanguage sets the language used for case mapping.
func WithLanguage(tag language.Tag) Option {
	return func(e *Expander) {
		e.lang = tag
	}
}

// New creates an Expander.
func New(opts ...Option) *Expander {
	e := &Expander{
		limit: DefaultLimit,
		lang:  language.Und,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Limit returns the per-call ceiling.
func (e *Expander) Limit() int {
	return e.limit
}

// Expand generates up to n strings from t.
//
// It fails with ErrInvalidMode for a mode outside the enum and with
// ErrInvalidTemplate for an empty base, an unnamed placeholder, or an active
// placeholder without values. Counts beyond the domain size or the ceiling
// are clamped; callers must read len(Result.Strings).
func (e *Expander) Expand(t Template, n int, mode Mode) (*Result, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	p, err := compile(t)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Strings:        []string{},
		ExpectedResult: t.ExpectedResult,
		Description:    t.Description,
		Active:         make([]string, len(p.active)),
		Combinations:   [][]string{},
		Requested:      n,
	}
	for i, idx := range p.active {
		res.Active[i] = t.Placeholders[idx].Name
	}

	radices := p.radices()
	size, saturated := domainSize(radices)
	res.DomainSize = size

	k := min(n, e.limit, size)
	if k <= 0 {
		return res, nil
	}

	var tuples [][]int
	switch mode {
	case ModeExhaustive:
		tuples = enumerate(radices, k)
	case ModeRandom:
		tuples = sample(e.newRand(), radices, size, saturated, k)
	}

	upper, lower := cases.Upper(e.lang), cases.Lower(e.lang)
	res.Strings = make([]string, len(tuples))
	res.Combinations = make([][]string, len(tuples))
	for i, tuple := range tuples {
		res.Strings[i] = p.realize(upper, lower, tuple)
		combo := make([]string, len(tuple))
		for slot, vi := range tuple {
			combo[slot] = t.Placeholders[p.active[slot]].Values[vi]
		}
		res.Combinations[i] = combo
	}
	return res, nil
}

// DomainSize returns the number of unique combinations of t without
// generating any of them.
func DomainSize(t Template) (int, error) {
	p, err := compile(t)
	if err != nil {
		return 0, err
	}
	size, _ := domainSize(p.radices())
	return size, nil
}

// ActiveNames returns the tokens of the placeholders that take part in
// expanding t, in placeholder order.
func ActiveNames(t Template) ([]string, error) {
	p, err := compile(t)
	if err != nil {
		return nil, err
	}
	return p.names, nil
}
