package export

import (
	"sort"
	"strings"

	"github.com/dshills/promptbench/internal/domain"
)

// Oracle says how the answer to a generated prompt should be judged.
type Oracle string

const (
	OracleYesNo          Oracle = "yes_no"
	OracleMultipleChoice Oracle = "multiple_choice"
	OracleRefusal        Oracle = "refusal"
	OracleOpenEnded      Oracle = "open_ended"
)

var oracleTokens = map[string]Oracle{
	"yn":      OracleYesNo,
	"yesno":   OracleYesNo,
	"bool":    OracleYesNo,
	"mc":      OracleMultipleChoice,
	"choice":  OracleMultipleChoice,
	"refusal": OracleRefusal,
	"refuse":  OracleRefusal,
}

// OracleType derives the oracle from a template label such as
// "gender_occupation_yn". A yes/no expected result also implies yes_no.
func OracleType(label, expectedResult string) Oracle {
	tokens := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, tok := range tokens {
		// "yes_no" splits into two tokens.
		if tok == "yes" && i+1 < len(tokens) && tokens[i+1] == "no" {
			return OracleYesNo
		}
		if o, ok := oracleTokens[tok]; ok {
			return o
		}
	}
	switch strings.ToLower(strings.TrimSpace(expectedResult)) {
	case "yes", "no":
		return OracleYesNo
	}
	return OracleOpenEnded
}

// MatchValues recovers the value chosen for each placeholder from a generated
// prompt. Matching is case-insensitive and longest-first, so "woman" wins over
// "man" at the same position. The first placeholder with a given name binds.
func MatchValues(text string, placeholders []*domain.Placeholder) map[string]string {
	type candidate struct {
		name  string
		value string
		lower string
	}
	var cands []candidate
	bound := make(map[string]bool)
	for _, p := range placeholders {
		if bound[p.Name] {
			continue
		}
		bound[p.Name] = true
		for _, v := range p.Values {
			if v == "" {
				continue
			}
			cands = append(cands, candidate{name: p.Name, value: v, lower: strings.ToLower(v)})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return len(cands[i].lower) > len(cands[j].lower)
	})

	found := make(map[string]string)
	lower := strings.ToLower(text)
	for pos := 0; pos < len(lower); {
		matched := false
		for _, c := range cands {
			if strings.HasPrefix(lower[pos:], c.lower) {
				if _, ok := found[c.name]; !ok {
					found[c.name] = c.value
				}
				pos += len(c.lower)
				matched = true
				break
			}
		}
		if !matched {
			pos += runeLen(lower[pos:])
		}
	}
	return found
}

func runeLen(s string) int {
	for i := range s {
		if i > 0 {
			return i
		}
	}
	return len(s)
}
