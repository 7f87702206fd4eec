package main

import (
	"fmt"

	"github.com/dshills/promptbench/internal/seed"
	"github.com/dshills/promptbench/internal/validator"
	"github.com/spf13/cobra"
)

var seedDir string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load default templates into the configured database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		dir := seedDir
		if dir == "" {
			dir = cfg.Seed.Dir
		}
		if dir == "" {
			return fmt.Errorf("no seed directory: pass --dir or set seed.dir")
		}

		val, err := validator.New()
		if err != nil {
			return err
		}
		templates, err := seed.NewLoader(val).LoadDir(dir)
		if err != nil {
			return err
		}

		repo, err := openRepository(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer repo.Close()

		report, err := seed.Apply(cmd.Context(), repo, templates, log)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %d, skipped %d\n", report.Created, report.Skipped)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedDir, "dir", "", "directory of JSON or YAML template files (default: seed.dir)")
}
