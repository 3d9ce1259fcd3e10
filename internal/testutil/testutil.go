// Package testutil provides shared test helpers for note trees, journals and
// engines.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/ntoes/internal/engine"
	"github.com/starford/ntoes/internal/index"
	"github.com/starford/ntoes/internal/journal"
	"github.com/starford/ntoes/internal/storage"
	"github.com/starford/ntoes/internal/syncer"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestJournal creates a temporary SQLite journal that is automatically cleaned up.
func TestJournal(t *testing.T) *journal.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ntoes-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := journal.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestNotes creates a temporary note tree with a storage provider.
func TestNotes(t *testing.T) (string, *storage.FS) {
	t.Helper()
	return t.TempDir(), storage.NewFS(storage.DefaultExtension)
}

// WriteNote writes content to rel under base, creating directories.
func WriteNote(t *testing.T, base, rel, content string) string {
	t.Helper()
	p := filepath.Join(base, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// StubSyncer is an engine.Syncer that returns a canned outcome.
type StubSyncer struct {
	mu     sync.Mutex
	Result syncer.Result
	Err    error
	calls  int
}

// SyncOnce records the call and returns the canned outcome.
func (s *StubSyncer) SyncOnce(context.Context, string) (syncer.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.Result, s.Err
}

// Calls returns how many cycles ran.
func (s *StubSyncer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// TestEngine builds an engine over base with sync enabled. The engine is not
// started; foreground calls work without it.
func TestEngine(t *testing.T, base string, s engine.Syncer, j journal.Recorder, surface engine.Surface) *engine.Engine {
	t.Helper()
	e := engine.New(engine.Config{BaseDir: base, SyncEnabled: true}, engine.Deps{
		Index:   index.New(storage.NewFS(storage.DefaultExtension)),
		Syncer:  s,
		Journal: j,
		Surface: surface,
		Logger:  Logger(),
	})
	t.Cleanup(func() { _ = e.Shutdown() })
	return e
}
