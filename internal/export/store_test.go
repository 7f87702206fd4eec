package export

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/promptbench/internal/domain"
	"github.com/dshills/promptbench/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "exports"), ttl, logger.NewNop())
	require.NoError(t, err)
	return s
}

func TestStoreCreateAndOpen(t *testing.T) {
	s := newTestStore(t, time.Hour)
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC) }

	name, err := s.Create("csv", func(w io.Writer) error {
		_, err := io.WriteString(w, "id,prompt\n")
		return err
	})
	require.NoError(t, err)
	assert.Regexp(t, `^export_20240301T123045Z_[0-9a-f]{8}\.csv$`, name)

	f, err := s.Open(name)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "id,prompt\n", string(data))
}

func TestStoreCreateFailureLeavesNothing(t *testing.T) {
	s := newTestStore(t, time.Hour)
	boom := errors.New("boom")

	_, err := s.Create("csv", func(w io.Writer) error { return boom })
	assert.ErrorIs(t, err, boom)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreRejectsUnknownExtension(t *testing.T) {
	s := newTestStore(t, time.Hour)
	_, err := s.Create("exe", func(w io.Writer) error { return nil })
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStoreOpenRejectsBadNames(t *testing.T) {
	s := newTestStore(t, time.Hour)
	for _, name := range []string{
		"../secrets.csv",
		"export_20240301T123045Z_deadbeef.csv/../../x",
		"promptbench.db",
		"",
	} {
		_, err := s.Open(name)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, name)
	}

	_, err := s.Open("export_20240301T123045Z_deadbeef.csv")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStoreCleanup(t *testing.T) {
	s := newTestStore(t, time.Hour)
	write := func(w io.Writer) error { return nil }

	oldName, err := s.Create("csv", write)
	require.NoError(t, err)
	freshName, err := s.Create("zip", write)
	require.NoError(t, err)

	unrelated := filepath.Join(s.Dir(), "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o600))

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(s.Dir(), oldName), past, past))
	require.NoError(t, os.Chtimes(unrelated, past, past))

	removed, err := s.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, filepath.Join(s.Dir(), oldName))
	assert.FileExists(t, filepath.Join(s.Dir(), freshName))
	assert.FileExists(t, unrelated)
}

func TestRunJanitorStopsOnCancel(t *testing.T) {
	s := newTestStore(t, time.Millisecond)
	name, err := s.Create("csv", func(w io.Writer) error { return nil })
	require.NoError(t, err)
	past := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(s.Dir(), name), past, past))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(s.Dir(), name))
		return os.IsNotExist(err)
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
