// Package config loads service configuration from an optional YAML file and
// PROMPTBENCH_* environment variables. Environment variables win.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Generation GenerationConfig `yaml:"generation"`
	Export     ExportConfig     `yaml:"export"`
	Log        LogConfig        `yaml:"log"`
	Seed       SeedConfig       `yaml:"seed"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"` // sqlite file
	DSN    string `yaml:"dsn"`  // postgres connection string
}

type GenerationConfig struct {
	DefaultCount int    `yaml:"default_count"`
	MaxCount     int    `yaml:"max_count"`
	Language     string `yaml:"language"`
	// Seed fixes the random source when non-zero. Useful for reproducible exports.
	Seed uint64 `yaml:"seed"`
}

type ExportConfig struct {
	Dir             string        `yaml:"dir"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type LogConfig struct {
	Mode string `yaml:"mode"`
}

type SeedConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			CORSOrigins:     []string{"*"},
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    120 * time.Second, // large exhaustive exports
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   filepath.Join("data", "promptbench.db"),
		},
		Generation: GenerationConfig{
			DefaultCount: 100,
			MaxCount:     50000,
			Language:     "en",
		},
		Export: ExportConfig{
			Dir:             filepath.Join("data", "exports"),
			TTL:             time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Log: LogConfig{Mode: "dev"},
	}
}

// Load reads path (if non-empty), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// EnvVar describes one supported environment variable.
type EnvVar struct {
	Name         string
	DefaultValue string
}

// EnvVars lists the supported environment variables with their defaults.
func EnvVars() []EnvVar {
	d := Default()
	return []EnvVar{
		{"PROMPTBENCH_API_PORT", d.Server.Port},
		{"PROMPTBENCH_CORS_ORIGINS", "* (allow all)"},
		{"PROMPTBENCH_DB_DRIVER", d.Database.Driver},
		{"PROMPTBENCH_DB_PATH", d.Database.Path},
		{"PROMPTBENCH_DB_DSN", "(none)"},
		{"PROMPTBENCH_DEFAULT_COUNT", strconv.Itoa(d.Generation.DefaultCount)},
		{"PROMPTBENCH_MAX_COUNT", strconv.Itoa(d.Generation.MaxCount)},
		{"PROMPTBENCH_LANGUAGE", d.Generation.Language},
		{"PROMPTBENCH_SEED", "(random)"},
		{"PROMPTBENCH_EXPORT_DIR", d.Export.Dir},
		{"PROMPTBENCH_EXPORT_TTL", d.Export.TTL.String()},
		{"PROMPTBENCH_LOG_MODE", d.Log.Mode},
		{"PROMPTBENCH_SEED_DIR", "(none)"},
	}
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("PROMPTBENCH_API_PORT"); ok {
		c.Server.Port = v
	}
	if v, ok := get("PROMPTBENCH_CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = splitList(v)
	}
	if v, ok := get("PROMPTBENCH_DB_DRIVER"); ok {
		c.Database.Driver = strings.ToLower(v)
	}
	if v, ok := get("PROMPTBENCH_DB_PATH"); ok {
		c.Database.Path = v
	}
	if v, ok := get("PROMPTBENCH_DB_DSN"); ok {
		c.Database.DSN = v
	}
	if v, ok := get("PROMPTBENCH_DEFAULT_COUNT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PROMPTBENCH_DEFAULT_COUNT: %w", err)
		}
		c.Generation.DefaultCount = n
	}
	if v, ok := get("PROMPTBENCH_MAX_COUNT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PROMPTBENCH_MAX_COUNT: %w", err)
		}
		c.Generation.MaxCount = n
	}
	if v, ok := get("PROMPTBENCH_LANGUAGE"); ok {
		c.Generation.Language = v
	}
	if v, ok := get("PROMPTBENCH_SEED"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("PROMPTBENCH_SEED: %w", err)
		}
		c.Generation.Seed = n
	}
	if v, ok := get("PROMPTBENCH_EXPORT_DIR"); ok {
		c.Export.Dir = v
	}
	if v, ok := get("PROMPTBENCH_EXPORT_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PROMPTBENCH_EXPORT_TTL: %w", err)
		}
		c.Export.TTL = d
	}
	if v, ok := get("PROMPTBENCH_LOG_MODE"); ok {
		c.Log.Mode = v
	}
	if v, ok := get("PROMPTBENCH_SEED_DIR"); ok {
		c.Seed.Dir = v
	}
	return nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Generation.MaxCount <= 0 {
		errs = append(errs, errors.New("generation.max_count must be positive"))
	}
	if c.Generation.DefaultCount <= 0 {
		errs = append(errs, errors.New("generation.default_count must be positive"))
	} else if c.Generation.DefaultCount > c.Generation.MaxCount {
		errs = append(errs, errors.New("generation.default_count exceeds generation.max_count"))
	}
	if _, err := c.LanguageTag(); err != nil {
		errs = append(errs, fmt.Errorf("generation.language: %w", err))
	}
	if c.Export.TTL <= 0 {
		errs = append(errs, errors.New("export.ttl must be positive"))
	}
	if c.Export.CleanupInterval <= 0 {
		errs = append(errs, errors.New("export.cleanup_interval must be positive"))
	}
	return errors.Join(errs...)
}

// LanguageTag parses Generation.Language.
func (c *Config) LanguageTag() (language.Tag, error) {
	if c.Generation.Language == "" {
		return language.Und, nil
	}
	return language.Parse(c.Generation.Language)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
