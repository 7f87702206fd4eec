package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/promptbench/internal/config"
	"github.com/dshills/promptbench/internal/expander"
	"github.com/dshills/promptbench/internal/logger"
	"github.com/dshills/promptbench/internal/repository"
	"github.com/dshills/promptbench/internal/repository/postgres"
	"github.com/dshills/promptbench/internal/repository/sqlite"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configFile string

var rootCmd = &cobra.Command{
	Use:           "promptbench",
	Short:         "Prompt template service for bias and safety testing",
	Long:          "promptbench stores prompt templates and expands them into test inputs for language models.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "promptbench %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML configuration file")
	rootCmd.AddCommand(versionCmd, serveCmd, expandCmd, seedCmd, tabulateCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger shared by all commands.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log, nil
}

func openRepository(ctx context.Context, cfg *config.Config) (repository.Repository, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		repo, err := postgres.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		repo, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
}

func newExpander(cfg *config.Config) (*expander.Expander, error) {
	tag, err := cfg.LanguageTag()
	if err != nil {
		return nil, err
	}
	opts := []expander.Option{
		expander.WithLimit(cfg.Generation.MaxCount),
		expander.WithLanguage(tag),
	}
	if cfg.Generation.Seed != 0 {
		opts = append(opts, expander.WithSeed(cfg.Generation.Seed))
	}
	return expander.New(opts...), nil
}
