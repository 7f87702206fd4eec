package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dshills/promptbench/internal/domain"
	"github.com/dshills/promptbench/internal/expander"
	"github.com/dshills/promptbench/internal/export"
	"github.com/dshills/promptbench/internal/generator"
	"github.com/dshills/promptbench/internal/seed"
	"github.com/dshills/promptbench/internal/validator"
	"github.com/spf13/cobra"
)

var tabulateOpts struct {
	file    string
	label   string
	prompts string
}

var tabulateCmd = &cobra.Command{
	Use:   "tabulate",
	Short: "Write prompts generated elsewhere as CSV rows of one template",
	Long: `tabulate reads prompts, one per line, that were produced from a template
outside promptbench and writes them in the export CSV layout. The value used
for each placeholder is recovered by matching the template's values against
the prompt text.`,
	Example: `  promptbench tabulate --file templates.yaml --label gender_job_yn --prompts prompts.txt
  cat prompts.txt | promptbench tabulate --file templates.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := validator.New()
		if err != nil {
			return err
		}
		templates, err := seed.NewLoader(val).LoadFile(tabulateOpts.file)
		if err != nil {
			return err
		}
		tmpl, err := pickTemplate(templates, tabulateOpts.label)
		if err != nil {
			return err
		}
		active, err := expander.ActiveNames(generator.ToExpander(tmpl))
		if err != nil {
			return fmt.Errorf("template %q: %w", tmpl.Label, err)
		}

		in := cmd.InOrStdin()
		if tabulateOpts.prompts != "" && tabulateOpts.prompts != "-" {
			f, err := os.Open(tabulateOpts.prompts)
			if err != nil {
				return fmt.Errorf("open prompts: %w", err)
			}
			defer f.Close()
			in = f
		}
		inputs, err := readPrompts(in, tmpl)
		if err != nil {
			return err
		}

		batch := export.Batch{Template: tmpl, Active: active, Inputs: inputs}
		return export.WriteCSV(cmd.OutOrStdout(), []export.Batch{batch})
	},
}

func pickTemplate(templates []*domain.Template, label string) (*domain.Template, error) {
	if label == "" {
		if len(templates) != 1 {
			return nil, fmt.Errorf("file holds %d templates: pass --label", len(templates))
		}
		return templates[0], nil
	}
	for _, t := range templates {
		if t.Label == label {
			return t, nil
		}
	}
	return nil, fmt.Errorf("no template labelled %q", label)
}

// readPrompts turns each non-blank line into an input without recorded values.
func readPrompts(r io.Reader, tmpl *domain.Template) ([]domain.Input, error) {
	var inputs []domain.Input
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		inputs = append(inputs, domain.Input{
			Text:           text,
			Category:       tmpl.Category,
			ExpectedResult: tmpl.ExpectedResult,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	return inputs, nil
}

func init() {
	f := tabulateCmd.Flags()
	f.StringVarP(&tabulateOpts.file, "file", "f", "", "JSON or YAML file holding a list of templates")
	f.StringVar(&tabulateOpts.label, "label", "", "label of the template the prompts came from")
	f.StringVar(&tabulateOpts.prompts, "prompts", "", "file of prompts, one per line (default: stdin)")
	_ = tabulateCmd.MarkFlagRequired("file")
}
