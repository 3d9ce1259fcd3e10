package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/ntoes/internal/apperr"
	"github.com/starford/ntoes/internal/index"
	"github.com/starford/ntoes/internal/models"
	"github.com/starford/ntoes/internal/storage"
	"github.com/starford/ntoes/internal/syncer"
)

func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSurface struct {
	observed atomic.Bool

	mu       sync.Mutex
	views    []string
	saved    []string
	syncErrs []error
}

func (s *fakeSurface) Observed() bool { return s.observed.Load() }

func (s *fakeSurface) Replace(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, text)
}

func (s *fakeSurface) NoteSaved(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, path)
}

func (s *fakeSurface) SyncFinished(_ syncer.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncErrs = append(s.syncErrs, err)
}

func (s *fakeSurface) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.views) == 0 {
		return ""
	}
	return s.views[len(s.views)-1]
}

func (s *fakeSurface) replaced() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

// guard detects overlapping scan and sync work.
type guard struct {
	active     atomic.Int32
	violations atomic.Int32
}

func (g *guard) enter() {
	if g.active.Add(1) != 1 {
		g.violations.Add(1)
	}
}

func (g *guard) leave() { g.active.Add(-1) }

type guardedStore struct {
	*storage.FS
	g     *guard
	lists atomic.Int32
}

func (s *guardedStore) List(baseDir string) ([]models.NoteMetadata, error) {
	s.g.enter()
	defer s.g.leave()
	s.lists.Add(1)
	time.Sleep(time.Millisecond)
	return s.FS.List(baseDir)
}

type fakeSyncer struct {
	g         *guard
	calls     atomic.Int32
	cancelled atomic.Int32
	delay     time.Duration
	err       error
	dirs      chan string

	// When release is set SyncOnce signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeSyncer) SyncOnce(ctx context.Context, baseDir string) (syncer.Result, error) {
	if f.g != nil {
		f.g.enter()
		defer f.g.leave()
	}
	f.calls.Add(1)
	if ctx.Err() != nil {
		f.cancelled.Add(1)
	}
	if f.release != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		<-f.release
	}
	if f.dirs != nil {
		select {
		case f.dirs <- baseDir:
		default:
		}
	}
	time.Sleep(f.delay)
	if f.err != nil {
		return syncer.Result{CommittedLocal: true, Output: "boom"}, f.err
	}
	return syncer.Result{CommittedLocal: true, Pushed: true, Output: "ok"}, nil
}

type fakeJournal struct {
	mu    sync.Mutex
	syncs []models.SyncRun
	scans []models.ScanRun
}

func (j *fakeJournal) RecordSync(run models.SyncRun) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.syncs = append(j.syncs, run)
	return int64(len(j.syncs)), nil
}

func (j *fakeJournal) RecordScan(run models.ScanRun) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.scans = append(j.scans, run)
	return int64(len(j.scans)), nil
}

func writeNote(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

type fixture struct {
	dir     string
	engine  *Engine
	surface *fakeSurface
	store   *guardedStore
	syncer  *fakeSyncer
	journal *fakeJournal
	guard   *guard
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	dir := t.TempDir()
	g := &guard{}
	f := &fixture{
		dir:     dir,
		surface: &fakeSurface{},
		store:   &guardedStore{FS: storage.NewFS(".md"), g: g},
		syncer:  &fakeSyncer{g: g},
		journal: &fakeJournal{},
		guard:   g,
	}
	cfg.BaseDir = dir
	f.engine = New(cfg, Deps{
		Index:   index.New(f.store),
		Syncer:  f.syncer,
		Journal: f.journal,
		Surface: f.surface,
		Logger:  testLogger(),
	})
	t.Cleanup(func() { _ = f.engine.Shutdown() })
	return f
}

func TestLoop_SkipsWhileNotObserved(t *testing.T) {
	var observed atomic.Bool
	var runs atomic.Int32
	var mu sync.Mutex
	l := newLoop("test", time.Hour, observed.Load, &mu, func(context.Context) error {
		runs.Add(1)
		return nil
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	l.Wake()
	time.Sleep(50 * time.Millisecond)
	if n := runs.Load(); n != 0 {
		t.Fatalf("work ran %d times while not observed", n)
	}

	observed.Store(true)
	l.Wake()
	eventually(t, 2*time.Second, 5*time.Millisecond, func() bool { return runs.Load() == 1 }, "work after wake")
}

func TestLoop_ContinuesAfterError(t *testing.T) {
	var runs atomic.Int32
	var mu sync.Mutex
	l := newLoop("test", 5*time.Millisecond, func() bool { return true }, &mu, func(context.Context) error {
		runs.Add(1)
		return errors.New("fail")
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	eventually(t, 2*time.Second, 5*time.Millisecond, func() bool { return runs.Load() >= 3 }, "loop kept running")
}

func TestLoop_WakesCollapse(t *testing.T) {
	var mu sync.Mutex
	l := newLoop("test", time.Hour, func() bool { return true }, &mu, func(context.Context) error { return nil }, testLogger())
	for range 10 {
		l.Wake()
	}
	if n := len(l.wake); n != 1 {
		t.Fatalf("pending wakes = %d, want 1", n)
	}
}

func TestLoop_StopsOnCancel(t *testing.T) {
	var mu sync.Mutex
	l := newLoop("test", time.Hour, func() bool { return true }, &mu, func(context.Context) error { return nil }, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoop_LockHeldDuringWork(t *testing.T) {
	var mu sync.Mutex
	var sawLocked atomic.Bool
	var runs atomic.Int32
	l := newLoop("test", time.Hour, func() bool { return true }, &mu, func(context.Context) error {
		sawLocked.Store(!mu.TryLock())
		runs.Add(1)
		return nil
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()
	l.Wake()

	eventually(t, 2*time.Second, 5*time.Millisecond, func() bool { return runs.Load() == 1 }, "work ran")
	if !sawLocked.Load() {
		t.Error("lock was not held during work")
	}
}

func TestLoop_NoNewWorkAfterCancelWhileWaitingForLock(t *testing.T) {
	var mu sync.Mutex
	var runs atomic.Int32
	waiting := make(chan struct{}, 1)
	l := newLoop("test", time.Hour, func() bool {
		select {
		case waiting <- struct{}{}:
		default:
		}
		return true
	}, &mu, func(context.Context) error {
		runs.Add(1)
		return nil
	}, testLogger())

	mu.Lock()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(done)
	}()
	l.Wake()
	<-waiting
	cancel()
	mu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	if n := runs.Load(); n != 0 {
		t.Fatalf("work started %d times after cancel", n)
	}
}

func TestEngine_ScanNowRendersView(t *testing.T) {
	f := newFixture(t, Config{})
	writeNote(t, filepath.Join(f.dir, "2024", "01 - January", "2024-01-05 standup.md"),
		"# 2024-01-05 standup\n[ ] call Bob\n[X] send notes\n")

	view, err := f.engine.ScanNow(context.Background())
	if err != nil {
		t.Fatalf("ScanNow: %v", err)
	}
	want := "# 2024-01-05 standup.md\n\n[ ] call Bob\n\n"
	if view != want {
		t.Errorf("view = %q, want %q", view, want)
	}
	if got := f.surface.last(); got != want {
		t.Errorf("surface = %q, want %q", got, want)
	}
	if len(f.journal.scans) != 1 || f.journal.scans[0].Items != 1 {
		t.Errorf("scans = %+v", f.journal.scans)
	}
}

func TestEngine_ScanNowMissingBaseDir(t *testing.T) {
	f := newFixture(t, Config{})
	if err := os.RemoveAll(f.dir); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.ScanNow(context.Background()); !errors.Is(err, apperr.ErrInvalidBaseDir) {
		t.Fatalf("err = %v, want ErrInvalidBaseDir", err)
	}
}

func TestEngine_NoBackgroundWorkWhileNotObserved(t *testing.T) {
	f := newFixture(t, Config{
		ScanInterval: 5 * time.Millisecond,
		SyncInterval: 5 * time.Millisecond,
		SyncEnabled:  true,
	})
	f.engine.Start(context.Background())
	time.Sleep(100 * time.Millisecond)

	if n := f.store.lists.Load(); n != 0 {
		t.Errorf("scanned %d times while not observed", n)
	}
	if n := f.syncer.calls.Load(); n != 0 {
		t.Errorf("synced %d times while not observed", n)
	}
}

func TestEngine_ScanAndSyncNeverOverlap(t *testing.T) {
	f := newFixture(t, Config{
		ScanInterval: 2 * time.Millisecond,
		SyncInterval: 3 * time.Millisecond,
		SyncEnabled:  true,
	})
	f.syncer.delay = 2 * time.Millisecond
	f.surface.observed.Store(true)
	writeNote(t, filepath.Join(f.dir, "a.md"), "[ ] a\n")

	f.engine.Start(context.Background())

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				_, _ = f.engine.ScanNow(context.Background())
				_, _ = f.engine.SyncNow(context.Background())
			}
		}()
	}
	wg.Wait()

	eventually(t, 2*time.Second, 5*time.Millisecond, func() bool {
		return f.store.lists.Load() > 45 && f.syncer.calls.Load() > 45
	}, "background loops ran")
	if err := f.engine.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if v := f.guard.violations.Load(); v != 0 {
		t.Fatalf("scan and sync overlapped %d times", v)
	}
}

func TestEngine_NoteSavedScansAndSyncs(t *testing.T) {
	f := newFixture(t, Config{SyncEnabled: true})
	note := filepath.Join(f.dir, "2024", "02 - February", "2024-02-01.md")
	writeNote(t, note, "# 2024-02-01\n[ ] ship it\n")

	// Not observed: the save still runs.
	if err := f.engine.NoteSaved(context.Background(), note); err != nil {
		t.Fatalf("NoteSaved: %v", err)
	}
	if n := f.syncer.calls.Load(); n != 1 {
		t.Errorf("sync calls = %d, want 1", n)
	}
	if !strings.Contains(f.surface.last(), "[ ] ship it") {
		t.Errorf("surface = %q", f.surface.last())
	}
	if len(f.surface.saved) != 1 || f.surface.saved[0] != note {
		t.Errorf("saved = %v", f.surface.saved)
	}
	if len(f.journal.syncs) != 1 || !f.journal.syncs[0].OK {
		t.Errorf("syncs = %+v", f.journal.syncs)
	}
}

func TestEngine_NoteSavedSyncDisabled(t *testing.T) {
	f := newFixture(t, Config{})
	note := filepath.Join(f.dir, "n.md")
	writeNote(t, note, "[ ] x\n")

	if err := f.engine.NoteSaved(context.Background(), note); err != nil {
		t.Fatalf("NoteSaved: %v", err)
	}
	if n := f.syncer.calls.Load(); n != 0 {
		t.Errorf("sync calls = %d, want 0", n)
	}
	if f.surface.replaced() == 0 {
		t.Error("view not replaced")
	}
}

func TestEngine_NoteSavedOutsideBaseDir(t *testing.T) {
	f := newFixture(t, Config{SyncEnabled: true})
	other := filepath.Join(t.TempDir(), "x.md")
	writeNote(t, other, "[ ] x\n")

	err := f.engine.NoteSaved(context.Background(), other)
	if !errors.Is(err, apperr.ErrOutsideBaseDir) {
		t.Fatalf("err = %v, want ErrOutsideBaseDir", err)
	}
	if n := f.syncer.calls.Load(); n != 0 {
		t.Errorf("sync ran for a foreign file")
	}
}

func TestEngine_SyncFailureRecorded(t *testing.T) {
	f := newFixture(t, Config{SyncEnabled: true})
	f.syncer.err = &syncer.SyncFailure{Op: "push", Args: []string{"push"}, Output: "rejected", Err: errors.New("exit status 1")}

	_, err := f.engine.SyncNow(context.Background())
	if _, ok := syncer.AsFailure(err); !ok {
		t.Fatalf("err = %v, want *SyncFailure", err)
	}
	if len(f.journal.syncs) != 1 {
		t.Fatalf("syncs = %d, want 1", len(f.journal.syncs))
	}
	run := f.journal.syncs[0]
	if run.OK || run.FailedOp != "push" || run.Output != "boom" {
		t.Errorf("run = %+v", run)
	}
	if len(f.surface.syncErrs) != 1 || f.surface.syncErrs[0] == nil {
		t.Errorf("surface not told about failure: %v", f.surface.syncErrs)
	}
}

func TestEngine_SyncLoopSurvivesFailures(t *testing.T) {
	f := newFixture(t, Config{SyncEnabled: true, SyncInterval: 5 * time.Millisecond, ScanInterval: time.Hour})
	f.syncer.err = errors.New("offline")
	f.surface.observed.Store(true)
	f.engine.Start(context.Background())

	eventually(t, 2*time.Second, 5*time.Millisecond, func() bool { return f.syncer.calls.Load() >= 3 }, "sync retried")
}

func TestEngine_SetBaseDirectory(t *testing.T) {
	var persisted string
	f := newFixture(t, Config{})
	f.engine.deps.OnBaseDirChange = func(dir string) error {
		persisted = dir
		return nil
	}

	target := filepath.Join(t.TempDir(), "notes", "deep")
	got, err := f.engine.SetBaseDirectory(target)
	if err != nil {
		t.Fatalf("SetBaseDirectory: %v", err)
	}
	if got != target || f.engine.BaseDirectory() != target || persisted != target {
		t.Errorf("got %q, base %q, persisted %q", got, f.engine.BaseDirectory(), persisted)
	}
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		t.Errorf("directory not created: %v", err)
	}
}

func TestEngine_SetBaseDirectoryExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	f := newFixture(t, Config{})

	got, err := f.engine.SetBaseDirectory("~/ntoes")
	if err != nil {
		t.Fatalf("SetBaseDirectory: %v", err)
	}
	if want := filepath.Join(home, "ntoes"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEngine_SetBaseDirectoryRejectsFile(t *testing.T) {
	f := newFixture(t, Config{})
	file := filepath.Join(t.TempDir(), "file")
	writeNote(t, file, "x")

	if _, err := f.engine.SetBaseDirectory(file); !errors.Is(err, apperr.ErrInvalidBaseDir) {
		t.Fatalf("err = %v, want ErrInvalidBaseDir", err)
	}
	if f.engine.BaseDirectory() != f.dir {
		t.Error("base directory changed after failure")
	}
	if _, err := f.engine.SetBaseDirectory("  "); !errors.Is(err, apperr.ErrInvalidBaseDir) {
		t.Fatalf("empty path err = %v", err)
	}
}

func TestEngine_SyncUsesNewBaseDirectory(t *testing.T) {
	f := newFixture(t, Config{SyncEnabled: true})
	f.syncer.dirs = make(chan string, 1)
	target := t.TempDir()
	if _, err := f.engine.SetBaseDirectory(target); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.SyncNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := <-f.syncer.dirs; got != target {
		t.Errorf("synced %q, want %q", got, target)
	}
}

func TestEngine_ShutdownIdempotent(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.engine.Shutdown(); err != nil {
		t.Fatalf("Shutdown before Start: %v", err)
	}

	g := newFixture(t, Config{ScanInterval: time.Millisecond})
	g.engine.Start(context.Background())
	if err := g.engine.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := g.engine.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	select {
	case <-g.engine.Done():
	default:
		t.Fatal("Done not closed after Shutdown")
	}
}

func TestEngine_ParentCancelStops(t *testing.T) {
	f := newFixture(t, Config{ScanInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	f.engine.Start(ctx)
	cancel()
	select {
	case <-f.engine.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop on context cancel")
	}
}

func TestEngine_WatcherWakesScan(t *testing.T) {
	f := newFixture(t, Config{ScanInterval: time.Hour, Watch: true, Debounce: 20 * time.Millisecond})
	f.surface.observed.Store(true)
	f.engine.Start(context.Background())

	// Initial scan on start.
	eventually(t, 2*time.Second, 5*time.Millisecond, func() bool { return f.store.lists.Load() >= 1 }, "initial scan")
	time.Sleep(100 * time.Millisecond) // let the watcher register

	writeNote(t, filepath.Join(f.dir, "late.md"), "[ ] appeared\n")
	eventually(t, 3*time.Second, 10*time.Millisecond, func() bool {
		return strings.Contains(f.surface.last(), "[ ] appeared")
	}, "watcher triggered scan")
}

func TestEngine_EditNoteWaitsForSync(t *testing.T) {
	f := newFixture(t, Config{SyncEnabled: true})
	f.syncer.entered = make(chan struct{}, 1)
	f.syncer.release = make(chan struct{})
	note := filepath.Join(f.dir, "n.md")
	writeNote(t, note, "[ ] a\n")

	synced := make(chan error, 1)
	go func() {
		_, err := f.engine.SyncNow(context.Background())
		synced <- err
	}()
	<-f.syncer.entered

	var applied atomic.Bool
	edited := make(chan error, 1)
	go func() {
		edited <- f.engine.EditNote(context.Background(), note, func(string) error {
			applied.Store(true)
			return nil
		})
	}()

	time.Sleep(50 * time.Millisecond)
	if applied.Load() {
		t.Error("edit applied while a sync held the lock")
	}
	close(f.syncer.release)
	if err := <-synced; err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if err := <-edited; err != nil {
		t.Fatalf("EditNote: %v", err)
	}
	if !applied.Load() {
		t.Error("edit never applied")
	}
	if n := f.syncer.calls.Load(); n != 2 {
		t.Errorf("sync calls = %d, want 2", n)
	}
}

func TestEngine_EditNoteErrors(t *testing.T) {
	f := newFixture(t, Config{SyncEnabled: true})
	note := filepath.Join(f.dir, "n.md")

	boom := errors.New("bad line")
	if err := f.engine.EditNote(context.Background(), note, func(string) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want apply error", err)
	}
	if n := f.syncer.calls.Load(); n != 0 {
		t.Errorf("sync ran after a failed edit")
	}

	outside := filepath.Join(t.TempDir(), "x.md")
	err := f.engine.EditNote(context.Background(), outside, func(string) error {
		t.Error("apply called for a foreign path")
		return nil
	})
	if !errors.Is(err, apperr.ErrOutsideBaseDir) {
		t.Fatalf("err = %v, want ErrOutsideBaseDir", err)
	}

	// A failing sync after a good edit does not fail the edit.
	f.syncer.err = errors.New("offline")
	writeNote(t, note, "[ ] a\n")
	if err := f.engine.EditNote(context.Background(), note, func(string) error { return nil }); err != nil {
		t.Fatalf("EditNote with failing sync: %v", err)
	}
	if len(f.surface.saved) != 1 || len(f.journal.syncs) != 1 || f.journal.syncs[0].OK {
		t.Errorf("saved = %v, syncs = %+v", f.surface.saved, f.journal.syncs)
	}
}

func TestEngine_WriteNoteHoldsLock(t *testing.T) {
	f := newFixture(t, Config{})
	note := filepath.Join(f.dir, "n.md")

	err := f.engine.WriteNote(note, func(p string) error {
		if f.engine.mu.TryLock() {
			f.engine.mu.Unlock()
			t.Error("lock not held during write")
		}
		return os.WriteFile(p, []byte("[ ] a\n"), 0o644)
	})
	if err != nil {
		t.Fatalf("WriteNote: %v", err)
	}
	if n := len(f.engine.scanLoop.wake); n != 1 {
		t.Errorf("pending scan wakes = %d, want 1", n)
	}
	if n := f.syncer.calls.Load(); n != 0 {
		t.Errorf("sync calls = %d, want 0", n)
	}
}

func TestEngine_CallerCancelDoesNotReachGit(t *testing.T) {
	f := newFixture(t, Config{SyncEnabled: true})
	note := filepath.Join(f.dir, "n.md")
	writeNote(t, note, "[ ] a\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.engine.SyncNow(ctx); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if err := f.engine.NoteSaved(ctx, note); err != nil {
		t.Fatalf("NoteSaved: %v", err)
	}
	if err := f.engine.EditNote(ctx, note, func(string) error { return nil }); err != nil {
		t.Fatalf("EditNote: %v", err)
	}
	if n := f.syncer.calls.Load(); n != 3 {
		t.Fatalf("sync calls = %d, want 3", n)
	}
	if n := f.syncer.cancelled.Load(); n != 0 {
		t.Errorf("syncer saw a cancelled context %d times", n)
	}
}

func TestEngine_IdleScansNotJournaled(t *testing.T) {
	f := newFixture(t, Config{})
	writeNote(t, filepath.Join(f.dir, "n.md"), "[ ] a\n")

	for range 3 {
		if _, err := f.engine.ScanNow(context.Background()); err != nil {
			t.Fatalf("ScanNow: %v", err)
		}
	}
	if len(f.journal.scans) != 1 {
		t.Fatalf("scans = %d, want 1", len(f.journal.scans))
	}

	if err := os.Remove(filepath.Join(f.dir, "n.md")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.ScanNow(context.Background()); err != nil {
		t.Fatalf("ScanNow: %v", err)
	}
	if len(f.journal.scans) != 2 || f.journal.scans[1].Removed != 1 {
		t.Errorf("scans = %+v", f.journal.scans)
	}
}
