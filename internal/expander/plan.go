package expander

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// segment is either literal text or a slot bound to an active placeholder.
type segment struct {
	text string
	slot int // index into plan.active, -1 for literal text
}

// plan is a template base compiled against its placeholders.
type plan struct {
	segments []segment
	active   []int    // indices into Template.Placeholders, in placeholder order
	names    []string // token per active placeholder
	first    []int    // segment index of each active placeholder's first occurrence
	values   [][]string
}

type token struct {
	name  string
	index int
}

// compile scans the base once with longest-match-first token matching, so a
// token that is a substring of another never splits the longer one.
func compile(t Template) (*plan, error) {
	if t.Base == "" {
		return nil, fmt.Errorf("%w: empty base", ErrInvalidTemplate)
	}

	tokens := make([]token, 0, len(t.Placeholders))
	seen := make(map[string]bool, len(t.Placeholders))
	for i, p := range t.Placeholders {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: placeholder %d has an empty name", ErrInvalidTemplate, i)
		}
		if seen[p.Name] {
			continue // first placeholder with a given name binds
		}
		seen[p.Name] = true
		tokens = append(tokens, token{name: p.Name, index: i})
	}
	sort.SliceStable(tokens, func(a, b int) bool {
		return len(tokens[a].name) > len(tokens[b].name)
	})

	type match struct {
		start, end, index int
	}
	var matches []match
	seenAt := make(map[int]bool)
	for pos := 0; pos < len(t.Base); {
		matched := false
		for _, tok := range tokens {
			if strings.HasPrefix(t.Base[pos:], tok.name) {
				matches = append(matches, match{start: pos, end: pos + len(tok.name), index: tok.index})
				seenAt[tok.index] = true
				pos += len(tok.name)
				matched = true
				break
			}
		}
		if !matched {
			_, size := utf8.DecodeRuneInString(t.Base[pos:])
			pos += size
		}
	}

	p := &plan{}
	slotOf := make(map[int]int, len(seenAt))
	for i := range t.Placeholders {
		if !seenAt[i] {
			continue
		}
		if len(t.Placeholders[i].Values) == 0 {
			return nil, fmt.Errorf("%w: placeholder %q has no values", ErrInvalidTemplate, t.Placeholders[i].Name)
		}
		slotOf[i] = len(p.active)
		p.active = append(p.active, i)
		p.names = append(p.names, t.Placeholders[i].Name)
		p.first = append(p.first, -1)

		values := make([]string, len(t.Placeholders[i].Values))
		for j, v := range t.Placeholders[i].Values {
			values[j] = norm.NFC.String(v)
		}
		p.values = append(p.values, values)
	}

	last := 0
	for _, m := range matches {
		if m.start > last {
			p.segments = append(p.segments, segment{text: t.Base[last:m.start], slot: -1})
		}
		slot := slotOf[m.index]
		if p.first[slot] < 0 {
			p.first[slot] = len(p.segments)
		}
		p.segments = append(p.segments, segment{slot: slot})
		last = m.end
	}
	if last < len(t.Base) {
		p.segments = append(p.segments, segment{text: t.Base[last:], slot: -1})
	}

	return p, nil
}

// startsSentence reports whether a token at byte offset pos of text opens a
// sentence: it is at offset zero, or the two characters before it are "." or
// "?" once surrounding whitespace is trimmed.
func startsSentence(text string, pos int) bool {
	if pos == 0 {
		return true
	}
	switch strings.TrimSpace(lastRunes(text[:pos], 2)) {
	case ".", "?":
		return true
	}
	return false
}

// radices returns the number of values of each active placeholder.
func (p *plan) radices() []int {
	r := make([]int, len(p.values))
	for i, v := range p.values {
		r[i] = len(v)
	}
	return r
}

func caseFirst(v string, capitalize bool, upper, lower cases.Caser) string {
	_, size := utf8.DecodeRuneInString(v)
	if size == 0 {
		return v
	}
	first := v[:size]
	if capitalize {
		first = upper.String(first)
	} else {
		first = lower.String(first)
	}
	return first + v[size:]
}

// realize renders one combination of value indices into a string.
//
// Placeholders are cased in placeholder order. Each one looks at the text
// before its first occurrence as it stands at that point: earlier placeholders
// already hold their cased values, later ones still show their tokens. A value
// that ends a sentence therefore capitalizes the value that follows it.
func (p *plan) realize(upper, lower cases.Caser, tuple []int) string {
	chosen := make([]string, len(p.active))
	for slot := range p.active {
		v := p.values[slot][tuple[slot]]
		chosen[slot] = caseFirst(v, p.opensSentence(slot, chosen), upper, lower)
	}

	var b strings.Builder
	for _, seg := range p.segments {
		if seg.slot < 0 {
			b.WriteString(seg.text)
			continue
		}
		b.WriteString(chosen[seg.slot])
	}
	return b.String()
}

// opensSentence reports whether the first occurrence of slot starts a
// sentence, given the values chosen so far for lower slots.
func (p *plan) opensSentence(slot int, chosen []string) bool {
	tail := ""
	for i := p.first[slot] - 1; i >= 0 && utf8.RuneCountInString(tail) < 2; i-- {
		seg := p.segments[i]
		text := seg.text
		switch {
		case seg.slot < 0:
		case seg.slot < slot:
			text = chosen[seg.slot]
		default:
			text = p.names[seg.slot]
		}
		tail = lastRunes(text, 2) + tail
	}
	return startsSentence(tail, len(tail))
}

func lastRunes(s string, n int) string {
	end := len(s)
	for ; n > 0 && end > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(s[:end])
		end -= size
	}
	return s[end:]
}
