package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dshills/promptbench/internal/domain"
	"github.com/dshills/promptbench/internal/logger"
	"github.com/google/uuid"
)

const nameTimeLayout = "20060102T150405Z"

var exportName = regexp.MustCompile(`^export_\d{8}T\d{6}Z_[0-9a-f]{8}\.(csv|zip)$`)

// Store keeps export files in a directory and removes them after a TTL.
type Store struct {
	dir string
	ttl time.Duration
	log *logger.Logger
	now func() time.Time
}

// NewStore creates dir if needed.
func NewStore(dir string, ttl time.Duration, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &Store{dir: dir, ttl: ttl, log: log, now: time.Now}, nil
}

// Dir returns the export directory.
func (s *Store) Dir() string { return s.dir }

// Create writes a new export file with the given extension ("csv" or "zip")
// and returns its name. The file only becomes visible once write succeeds.
func (s *Store) Create(ext string, write func(io.Writer) error) (string, error) {
	name := fmt.Sprintf("export_%s_%s.%s",
		s.now().UTC().Format(nameTimeLayout), uuid.NewString()[:8], ext)
	if !exportName.MatchString(name) {
		return "", fmt.Errorf("%w: unsupported export type %q", domain.ErrInvalidInput, ext)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-export-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("publish export: %w", err)
	}
	return name, nil
}

// Open opens a previously created export. Names that do not look like an
// export are rejected so callers cannot escape the directory.
func (s *Store) Open(name string) (*os.File, error) {
	if !exportName.MatchString(name) || filepath.Base(name) != name {
		return nil, fmt.Errorf("%w: invalid export name", domain.ErrInvalidInput)
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Cleanup removes exports older than the TTL and returns how many were removed.
func (s *Store) Cleanup() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read export dir: %w", err)
	}
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !(exportName.MatchString(e.Name()) || strings.HasPrefix(e.Name(), ".tmp-export-")) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed concurrently
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// RunJanitor calls Cleanup every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Cleanup()
			if err != nil {
				s.log.Warn("export cleanup failed", "error", err)
			}
			if n > 0 {
				s.log.Info("removed expired exports", "count", n, "dir", s.dir)
			}
		}
	}
}
