// Package export flattens generated inputs into CSV files and manages the
// export directory.
package export

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/dshills/promptbench/internal/domain"
)

// Fixed CSV columns around the placeholder columns.
const (
	ColumnID             = "id"
	ColumnPrompt         = "prompt"
	ColumnOracleType     = "oracle_type"
	ColumnExpectedResult = "expected_result"
)

var reservedColumns = []string{ColumnID, ColumnPrompt, ColumnOracleType, ColumnExpectedResult}

// Batch is the generated output of one template.
type Batch struct {
	Template *domain.Template
	// Active lists the placeholder names that took part in expansion, in order.
	Active []string
	Inputs []domain.Input
}

// RowID identifies the n-th (1-based) row of a batch.
func (b Batch) RowID(n int) string {
	prefix := b.Template.Label
	if prefix == "" {
		prefix = b.Template.ID.String()
	}
	return prefix + "-" + strconv.Itoa(n)
}

// values returns the chosen value per placeholder name for input i. Inputs
// from the generator carry their values; prompts produced elsewhere (see the
// tabulate command) do not, so the values are recovered from the text.
func (b Batch) values(i int) map[string]string {
	in := b.Inputs[i]
	if in.Values != nil {
		return in.Values
	}
	return MatchValues(in.Text, b.Template.Placeholders)
}

// NormalizeLabel turns a placeholder token into a CSV column label.
func NormalizeLabel(name string) string {
	var sb strings.Builder
	pendingSep := false
	for _, r := range name {
		switch r {
		case '[', ']', '{', '}', '<', '>':
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			pendingSep = false
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSep = true
	}
	if sb.Len() == 0 {
		return "placeholder"
	}
	return sb.String()
}

// labelsFor maps each active name of a batch to a distinct column label.
func labelsFor(active []string) map[string]string {
	used := make(map[string]bool, len(active)+len(reservedColumns))
	for _, c := range reservedColumns {
		used[c] = true
	}
	labels := make(map[string]string, len(active))
	for _, name := range active {
		if _, ok := labels[name]; ok {
			continue
		}
		base := NormalizeLabel(name)
		label := base
		for n := 2; used[label]; n++ {
			label = base + "_" + strconv.Itoa(n)
		}
		used[label] = true
		labels[name] = label
	}
	return labels
}

// Columns returns the header for batches: id, the union of placeholder labels
// in order of first appearance, prompt, oracle_type, expected_result.
func Columns(batches []Batch) []string {
	header := []string{ColumnID}
	seen := make(map[string]bool)
	for _, b := range batches {
		labels := labelsFor(b.Active)
		for _, name := range b.Active {
			label := labels[name]
			if !seen[label] {
				seen[label] = true
				header = append(header, label)
			}
		}
	}
	return append(header, ColumnPrompt, ColumnOracleType, ColumnExpectedResult)
}

// WriteCSV writes batches as a single CSV document. Cells for placeholders a
// template does not use are left empty.
func WriteCSV(w io.Writer, batches []Batch) error {
	header := Columns(batches)
	index := make(map[string]int, len(header))
	for i, c := range header {
		index[c] = i
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, b := range batches {
		labels := labelsFor(b.Active)
		oracle := OracleType(b.Template.Label, b.Template.ExpectedResult)
		for i, in := range b.Inputs {
			row := make([]string, len(header))
			row[0] = b.RowID(i + 1)
			values := b.values(i)
			for _, name := range b.Active {
				row[index[labels[name]]] = values[name]
			}
			row[index[ColumnPrompt]] = in.Text
			row[index[ColumnOracleType]] = string(oracle)
			row[index[ColumnExpectedResult]] = in.ExpectedResult
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write row %s: %w", row[0], err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// manifestEntry describes one CSV inside a zip bundle.
type manifestEntry struct {
	File       string          `json:"file"`
	TemplateID string          `json:"template_id"`
	Label      string          `json:"label"`
	Category   domain.Category `json:"category"`
	OracleType Oracle          `json:"oracle_type"`
	Rows       int             `json:"rows"`
}

// WriteZip writes one CSV per batch plus a manifest.json to a zip archive.
func WriteZip(w io.Writer, batches []Batch) error {
	zw := zip.NewWriter(w)

	manifest := make([]manifestEntry, 0, len(batches))
	names := make(map[string]bool, len(batches))
	for _, b := range batches {
		name := NormalizeLabel(b.Template.Label)
		if b.Template.Label == "" {
			name = b.Template.ID.String()
		}
		file := name + ".csv"
		for n := 2; names[file]; n++ {
			file = name + "_" + strconv.Itoa(n) + ".csv"
		}
		names[file] = true

		fw, err := zw.Create(file)
		if err != nil {
			return fmt.Errorf("create %s: %w", file, err)
		}
		if err := WriteCSV(fw, []Batch{b}); err != nil {
			return fmt.Errorf("write %s: %w", file, err)
		}
		manifest = append(manifest, manifestEntry{
			File:       file,
			TemplateID: b.Template.ID.String(),
			Label:      b.Template.Label,
			Category:   b.Template.Category,
			OracleType: OracleType(b.Template.Label, b.Template.ExpectedResult),
			Rows:       len(b.Inputs),
		})
	}

	fw, err := zw.Create("manifest.json")
	if err != nil {
		return fmt.Errorf("create manifest.json: %w", err)
	}
	enc := json.NewEncoder(fw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest); err != nil {
		return fmt.Errorf("write manifest.json: %w", err)
	}

	return zw.Close()
}
