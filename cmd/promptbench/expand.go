package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/promptbench/internal/config"
	"github.com/dshills/promptbench/internal/domain"
	"github.com/dshills/promptbench/internal/expander"
	"github.com/dshills/promptbench/internal/export"
	"github.com/dshills/promptbench/internal/generator"
	"github.com/dshills/promptbench/internal/logger"
	"github.com/dshills/promptbench/internal/seed"
	"github.com/dshills/promptbench/internal/validator"
	"github.com/spf13/cobra"
)

var expandOpts struct {
	file   string
	n      int
	mode   string
	seed   uint64
	format string
}

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Expand the templates in a file without a database",
	Example: `  promptbench expand --file templates.yaml -n 20 --mode exhaustive
  promptbench expand --file templates.json --format csv > inputs.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := expander.ParseMode(expandOpts.mode)
		if err != nil {
			return err
		}
		if expandOpts.format != "json" && expandOpts.format != "csv" {
			return fmt.Errorf("unsupported format %q (want json or csv)", expandOpts.format)
		}

		val, err := validator.New()
		if err != nil {
			return err
		}
		templates, err := seed.NewLoader(val).LoadFile(expandOpts.file)
		if err != nil {
			return err
		}

		cfg := config.Default()
		cfg.Generation.Seed = expandOpts.seed
		exp, err := newExpander(cfg)
		if err != nil {
			return err
		}
		gen := generator.NewService(nil, exp, logger.NewNop())

		gens := make([]*generator.Generation, 0, len(templates))
		for _, t := range templates {
			g, err := gen.Expand(t, expandOpts.n, mode)
			if err != nil {
				return fmt.Errorf("expand %q: %w", t.Label, err)
			}
			gens = append(gens, g)
		}
		return writeGenerations(cmd.OutOrStdout(), expandOpts.format, gens)
	},
}

type expandedTemplate struct {
	Label       string         `json:"label"`
	Description string         `json:"description"`
	DomainSize  int            `json:"domain_size"`
	Inputs      []domain.Input `json:"inputs"`
}

func writeGenerations(w io.Writer, format string, gens []*generator.Generation) error {
	if format == "csv" {
		return export.WriteCSV(w, generator.Batches(gens))
	}
	out := make([]expandedTemplate, len(gens))
	for i, g := range gens {
		out[i] = expandedTemplate{
			Label:       g.Template.Label,
			Description: g.Template.Description,
			DomainSize:  g.Result.DomainSize,
			Inputs:      g.Inputs,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func init() {
	f := expandCmd.Flags()
	f.StringVarP(&expandOpts.file, "file", "f", "", "JSON or YAML file holding a list of templates")
	f.IntVarP(&expandOpts.n, "count", "n", expander.DefaultCount, "number of inputs per template")
	f.StringVar(&expandOpts.mode, "mode", "random", "generation mode: random or exhaustive")
	f.Uint64Var(&expandOpts.seed, "seed", 0, "random seed (0 picks a fresh one)")
	f.StringVar(&expandOpts.format, "format", "json", "output format: json or csv")
	_ = expandCmd.MarkFlagRequired("file")
}
