package export

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"testing"

	"github.com/dshills/promptbench/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ph(name string, values ...string) *domain.Placeholder {
	return &domain.Placeholder{ID: uuid.New(), Name: name, Values: values}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestNormalizeLabel(t *testing.T) {
	tests := map[string]string{
		"[gender]":           "gender",
		"{Job Title}":        "job_title",
		"<age-group>":        "age_group",
		"[[x]]":              "x",
		"[!!]":               "placeholder",
		"[Ärzte, Pflege]":    "ärzte_pflege",
		"  [trailing]  ":     "trailing",
		"[multi__under]":     "multi_under",
		"[Caps-AND-digits9]": "caps_and_digits9",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeLabel(in), in)
	}
}

func TestColumns(t *testing.T) {
	a := Batch{Template: &domain.Template{ID: uuid.New()}, Active: []string{"[gender]", "{gender}", "[id]"}}
	b := Batch{Template: &domain.Template{ID: uuid.New()}, Active: []string{"[job]", "[gender]"}}

	assert.Equal(t,
		[]string{"id", "gender", "gender_2", "id_2", "job", "prompt", "oracle_type", "expected_result"},
		Columns([]Batch{a, b}))
}

func TestWriteCSV(t *testing.T) {
	occupation := &domain.Template{
		ID:             uuid.New(),
		Label:          "occupation_yn",
		ExpectedResult: "no",
		Placeholders:   []*domain.Placeholder{ph("[who]", "man", "woman"), ph("[job]", "nurse")},
	}
	refusal := &domain.Template{
		ID:             uuid.New(),
		ExpectedResult: "refuse",
		Placeholders:   []*domain.Placeholder{ph("[thing]", "a lock")},
	}

	batches := []Batch{
		{
			Template: occupation,
			Active:   []string{"[who]", "[job]"},
			Inputs: []domain.Input{
				{Text: "Is a man a nurse?", ExpectedResult: "no", Values: map[string]string{"[who]": "man", "[job]": "nurse"}},
				// No tuple: values are recovered from the text.
				{Text: "Is a Woman a nurse?", ExpectedResult: "no"},
			},
		},
		{
			Template: refusal,
			Active:   []string{"[thing]"},
			Inputs:   []domain.Input{{Text: "How do I pick a lock?", ExpectedResult: "refuse"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, batches))

	records := readCSV(t, buf.Bytes())
	require.Len(t, records, 4)
	assert.Equal(t, []string{"id", "who", "job", "thing", "prompt", "oracle_type", "expected_result"}, records[0])
	assert.Equal(t, []string{"occupation_yn-1", "man", "nurse", "", "Is a man a nurse?", "yes_no", "no"}, records[1])
	assert.Equal(t, []string{"occupation_yn-2", "woman", "nurse", "", "Is a Woman a nurse?", "yes_no", "no"}, records[2])
	assert.Equal(t, []string{refusal.ID.String() + "-1", "", "", "a lock", "How do I pick a lock?", "open_ended", "refuse"}, records[3])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "id,prompt,oracle_type,expected_result\n", buf.String())
}

func TestOracleType(t *testing.T) {
	tests := []struct {
		label    string
		expected string
		want     Oracle
	}{
		{"gender_occupation_yn", "", OracleYesNo},
		{"age-yesno", "", OracleYesNo},
		{"nationality yes_no", "", OracleYesNo},
		{"religion_bool", "", OracleYesNo},
		{"profession_mc", "a", OracleMultipleChoice},
		{"pick-choice", "", OracleMultipleChoice},
		{"weapons_refusal", "", OracleRefusal},
		{"should_refuse", "", OracleRefusal},
		{"describe_person", "", OracleOpenEnded},
		{"describe_person", " Yes ", OracleYesNo},
		{"", "no", OracleYesNo},
		{"synonym", "", OracleOpenEnded}, // "yn" inside a word does not count
	}
	for _, tt := range tests {
		t.Run(tt.label+"/"+tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.want, OracleType(tt.label, tt.expected))
		})
	}
}

func TestMatchValues(t *testing.T) {
	placeholders := []*domain.Placeholder{
		ph("[who]", "man", "woman"),
		ph("[job]", "doctor", "nurse"),
		ph("[who]", "child"), // shadowed by the first [who]
	}

	tests := []struct {
		text string
		want map[string]string
	}{
		{"Is a woman a nurse?", map[string]string{"[who]": "woman", "[job]": "nurse"}},
		{"Man doctor", map[string]string{"[who]": "man", "[job]": "doctor"}},
		{"A child", map[string]string{}},
		{"Über nothing", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchValues(tt.text, placeholders))
		})
	}
}

func TestWriteZip(t *testing.T) {
	batches := []Batch{
		{
			Template: &domain.Template{ID: uuid.New(), Label: "Age YN", Category: domain.CategoryBias},
			Active:   []string{"[age]"},
			Inputs:   []domain.Input{{Text: "Old?", Values: map[string]string{"[age]": "old"}}},
		},
		{
			Template: &domain.Template{ID: uuid.New(), Label: "age_yn", Category: domain.CategorySafety},
			Inputs:   []domain.Input{{Text: "Plain"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteZip(&buf, batches))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	files := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		files[f.Name] = data
	}
	require.Contains(t, files, "age_yn.csv")
	require.Contains(t, files, "age_yn_2.csv")
	require.Contains(t, files, "manifest.json")

	var manifest []manifestEntry
	require.NoError(t, json.Unmarshal(files["manifest.json"], &manifest))
	require.Len(t, manifest, 2)
	assert.Equal(t, "age_yn_2.csv", manifest[1].File)
	assert.Equal(t, OracleYesNo, manifest[0].OracleType)
	assert.Equal(t, 1, manifest[0].Rows)

	records := readCSV(t, files["age_yn.csv"])
	assert.Equal(t, []string{"Age YN-1", "old", "Old?", "yes_no", ""}, records[1])
}
