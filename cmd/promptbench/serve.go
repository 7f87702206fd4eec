package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dshills/promptbench/internal/api"
	"github.com/dshills/promptbench/internal/config"
	"github.com/dshills/promptbench/internal/export"
	"github.com/dshills/promptbench/internal/generator"
	"github.com/dshills/promptbench/internal/logger"
	"github.com/dshills/promptbench/internal/seed"
	"github.com/dshills/promptbench/internal/validator"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()
		return serve(cmd.Context(), cfg, log)
	},
}

// logConfig logs every supported environment variable, marking the ones left
// at their default.
func logConfig(log *logger.Logger, cfg *config.Config) {
	log.Info("=== promptbench configuration ===")
	for _, ev := range config.EnvVars() {
		value := os.Getenv(ev.Name)
		if value == "" {
			log.Info("config", "name", ev.Name, "value", ev.DefaultValue, "default", true)
			continue
		}
		if strings.HasSuffix(ev.Name, "_DSN") {
			value = "(set)"
		}
		log.Info("config", "name", ev.Name, "value", value)
	}
	if configFile != "" {
		log.Info("config file", "path", configFile)
	}
	log.Info("database", "driver", cfg.Database.Driver)
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logConfig(log, cfg)

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer repo.Close()

	val, err := validator.New()
	if err != nil {
		return fmt.Errorf("initialize validator: %w", err)
	}

	if cfg.Seed.Dir != "" {
		templates, err := seed.NewLoader(val).LoadDir(cfg.Seed.Dir)
		if err != nil {
			return fmt.Errorf("load seed templates: %w", err)
		}
		if _, err := seed.Apply(ctx, repo, templates, log); err != nil {
			return fmt.Errorf("apply seed templates: %w", err)
		}
	}

	exp, err := newExpander(cfg)
	if err != nil {
		return err
	}
	gen := generator.NewService(repo, exp, log, generator.WithDefaultCount(cfg.Generation.DefaultCount))

	store, err := export.NewStore(cfg.Export.Dir, cfg.Export.TTL, log)
	if err != nil {
		return err
	}
	go store.RunJanitor(ctx, cfg.Export.CleanupInterval)

	handler := api.NewHandler(repo, gen, val, store, log)
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, api.RouterConfig{CORSOrigins: cfg.Server.CORSOrigins, Log: log}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	log.Info("shutting down server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
