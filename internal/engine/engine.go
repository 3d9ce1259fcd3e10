// Package engine owns the note index and the sync cycle and runs both in the
// background. Every operation that reads or mutates the note tree, whether
// started by a loop, a save or a foreground call, runs under one lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ntoes/internal/apperr"
	"github.com/starford/ntoes/internal/index"
	"github.com/starford/ntoes/internal/journal"
	"github.com/starford/ntoes/internal/models"
	"github.com/starford/ntoes/internal/storage"
	"github.com/starford/ntoes/internal/syncer"
)

// Surface is where the aggregated view is shown.
type Surface interface {
	// Observed reports whether anyone is looking; background loops skip
	// their work while it returns false.
	Observed() bool
	// Replace swaps the displayed view for text. It must not block.
	Replace(text string)
}

// Notifier is optionally implemented by a Surface that wants to hear about
// saves and sync outcomes.
type Notifier interface {
	NoteSaved(path string)
	SyncFinished(res syncer.Result, err error)
}

// Syncer runs one sync cycle in a directory.
type Syncer interface {
	SyncOnce(ctx context.Context, baseDir string) (syncer.Result, error)
}

// Config holds the engine's tunables.
type Config struct {
	BaseDir      string
	Extension    string
	ScanInterval time.Duration
	SyncInterval time.Duration
	SyncEnabled  bool
	Watch        bool
	Debounce     time.Duration
}

// Deps are the collaborators handed to New. Journal and OnBaseDirChange may
// be nil.
type Deps struct {
	Index   *index.Index
	Syncer  Syncer
	Journal journal.Recorder
	Surface Surface
	Logger  *slog.Logger

	// OnBaseDirChange is called after SetBaseDirectory succeeds, e.g. to
	// persist the setting.
	OnBaseDirChange func(dir string) error
}

// Engine coordinates scanning and syncing of one note tree.
type Engine struct {
	cfg  Config
	deps Deps

	// mu is the exclusion lock: index access and git runs happen under it.
	mu sync.Mutex

	dirMu   sync.RWMutex
	baseDir string

	scanLoop     *Loop
	syncLoop     *Loop
	watchRestart chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
}

// New creates an Engine. Nothing runs until Start.
func New(cfg Config, deps Deps) *Engine {
	if cfg.Extension == "" {
		cfg.Extension = storage.DefaultExtension
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 10 * time.Second
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 60 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	e := &Engine{
		cfg:          cfg,
		deps:         deps,
		baseDir:      cfg.BaseDir,
		watchRestart: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	e.scanLoop = newLoop("scan", cfg.ScanInterval, e.observed, &e.mu, func(context.Context) error {
		_, err := e.scanLocked()
		return err
	}, deps.Logger)
	e.syncLoop = newLoop("sync", cfg.SyncInterval, e.observed, &e.mu, func(ctx context.Context) error {
		_, err := e.syncLocked(ctx)
		return err
	}, deps.Logger)
	return e
}

func (e *Engine) observed() bool {
	return e.deps.Surface != nil && e.deps.Surface.Observed()
}

// Start launches the loops (and the watcher, if enabled) and returns
// immediately. They stop when ctx is cancelled or Shutdown is called.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		e.cancel = cancel

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return e.scanLoop.Run(gctx) })
		if e.cfg.SyncEnabled {
			g.Go(func() error { return e.syncLoop.Run(gctx) })
		}
		if e.cfg.Watch {
			g.Go(func() error { return e.runWatcher(gctx) })
		}
		e.scanLoop.Wake()

		go func() {
			e.err = g.Wait()
			close(e.done)
		}()
		e.deps.Logger.Info("engine: started",
			slog.String("base_dir", e.BaseDirectory()),
			slog.Bool("sync", e.cfg.SyncEnabled),
			slog.Bool("watch", e.cfg.Watch))
	})
}

// Shutdown stops the background goroutines and waits for them. Work already
// in progress finishes first. Safe to call more than once, and before Start.
func (e *Engine) Shutdown() error {
	started := true
	e.startOnce.Do(func() { started = false })
	if !started {
		return nil
	}
	e.stopOnce.Do(e.cancel)
	<-e.done
	e.deps.Logger.Info("engine: stopped")
	return e.err
}

// Done is closed once every background goroutine has exited.
func (e *Engine) Done() <-chan struct{} { return e.done }

// TriggerScan wakes the scan loop without waiting for it.
func (e *Engine) TriggerScan() { e.scanLoop.Wake() }

// TriggerSync wakes the sync loop without waiting for it.
func (e *Engine) TriggerSync() { e.syncLoop.Wake() }

// ScanNow rescans the tree synchronously and returns the aggregated view.
// Unlike the loop it runs whether or not the surface is observed.
func (e *Engine) ScanNow(_ context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scanLocked()
}

// SyncNow runs one sync cycle synchronously. Cancelling ctx does not stop
// git once the cycle has started; the git timeout bounds it.
func (e *Engine) SyncNow(ctx context.Context) (syncer.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncLocked(context.WithoutCancel(ctx))
}

// NoteSaved reacts to a note being written: the index is refreshed and, when
// sync is enabled, the change is committed and synced right away. Paths
// outside the base directory are rejected with apperr.ErrOutsideBaseDir.
func (e *Engine) NoteSaved(ctx context.Context, path string) error {
	abs, err := storage.Within(e.BaseDirectory(), path)
	if err != nil {
		return err
	}
	if n, ok := e.deps.Surface.(Notifier); ok {
		n.NoteSaved(abs)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.savedLocked(context.WithoutCancel(ctx))
}

// EditNote runs apply on path with the exclusion lock held. A successful edit
// is then handled like NoteSaved, still under the same lock. Errors from
// apply are returned; a sync failure after the edit is only logged.
func (e *Engine) EditNote(ctx context.Context, path string, apply func(abs string) error) error {
	abs, err := storage.Within(e.BaseDirectory(), path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := apply(abs); err != nil {
		return err
	}
	if n, ok := e.deps.Surface.(Notifier); ok {
		n.NoteSaved(abs)
	}
	if err := e.savedLocked(context.WithoutCancel(ctx)); err != nil {
		e.deps.Logger.Warn("engine: post-edit sync failed",
			slog.String("path", abs),
			slog.String("error", err.Error()))
	}
	return nil
}

// WriteNote runs apply on path with the exclusion lock held and wakes the
// scan loop afterwards. Unlike EditNote nothing is synced.
func (e *Engine) WriteNote(path string, apply func(abs string) error) error {
	abs, err := storage.Within(e.BaseDirectory(), path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	err = apply(abs)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.TriggerScan()
	return nil
}

// savedLocked rescans, then syncs and rescans again when sync is enabled.
// e.mu must be held.
func (e *Engine) savedLocked(ctx context.Context) error {
	if _, err := e.scanLocked(); err != nil {
		return err
	}
	if !e.cfg.SyncEnabled {
		return nil
	}
	if _, err := e.syncLocked(ctx); err != nil {
		return err
	}
	// The merge may have brought in other notes.
	_, err := e.scanLocked()
	return err
}

// BaseDirectory returns the note tree root currently in use.
func (e *Engine) BaseDirectory() string {
	e.dirMu.RLock()
	defer e.dirMu.RUnlock()
	return e.baseDir
}

// SetBaseDirectory switches the engine to dir, creating it if needed. "~" is
// expanded to the home directory. The returned path is the absolute form that
// was applied.
func (e *Engine) SetBaseDirectory(dir string) (string, error) {
	abs, err := PrepareBaseDir(dir)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	e.dirMu.Lock()
	prev := e.baseDir
	e.baseDir = abs
	e.dirMu.Unlock()
	e.mu.Unlock()

	if prev != abs {
		select {
		case e.watchRestart <- struct{}{}:
		default:
		}
	}
	e.deps.Logger.Info("engine: base directory set", slog.String("base_dir", abs))

	if e.deps.OnBaseDirChange != nil {
		if err := e.deps.OnBaseDirChange(abs); err != nil {
			e.deps.Logger.Warn("engine: persist base directory failed", slog.String("error", err.Error()))
		}
	}
	e.TriggerScan()
	return abs, nil
}

// PrepareBaseDir expands, creates and validates a base directory path.
func PrepareBaseDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", fmt.Errorf("%w: empty path", apperr.ErrInvalidBaseDir)
	}
	expanded, err := ExpandHome(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrInvalidBaseDir, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrInvalidBaseDir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrInvalidBaseDir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrInvalidBaseDir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", apperr.ErrInvalidBaseDir, abs)
	}
	return abs, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// scanLocked rescans the index and hands the view to the surface. e.mu must
// be held.
func (e *Engine) scanLocked() (string, error) {
	dir := e.BaseDirectory()
	view, st, err := e.deps.Index.Rescan(dir, e.deps.Logger)
	if err != nil {
		return "", fmt.Errorf("engine: scan %s: %w", dir, err)
	}
	if e.deps.Surface != nil {
		e.deps.Surface.Replace(view)
	}
	if st.Rescanned > 0 || st.Removed > 0 {
		e.deps.Logger.Debug("engine: scan",
			slog.Int("files", st.Files),
			slog.Int("rescanned", st.Rescanned),
			slog.Int("removed", st.Removed),
			slog.Int("skipped", st.Skipped),
			slog.Int("items", st.Items))
	}
	// Only scans that changed something are journaled; idle ticks would
	// otherwise add a row every interval.
	if e.deps.Journal != nil && (st.Rescanned > 0 || st.Removed > 0) {
		if _, jerr := e.deps.Journal.RecordScan(models.ScanRun{
			At:        time.Now(),
			Files:     st.Files,
			Rescanned: st.Rescanned,
			Removed:   st.Removed,
			Skipped:   st.Skipped,
			Items:     st.Items,
		}); jerr != nil {
			e.deps.Logger.Warn("engine: journal scan failed", slog.String("error", jerr.Error()))
		}
	}
	return view, nil
}

// syncLocked runs one sync cycle and records it. e.mu must be held.
func (e *Engine) syncLocked(ctx context.Context) (syncer.Result, error) {
	if e.deps.Syncer == nil {
		return syncer.Result{}, errors.New("engine: sync not configured")
	}
	dir := e.BaseDirectory()
	started := time.Now()
	res, err := e.deps.Syncer.SyncOnce(ctx, dir)

	run := models.SyncRun{
		StartedAt:      started,
		FinishedAt:     time.Now(),
		CommittedLocal: res.CommittedLocal,
		CommittedMerge: res.CommittedMerge,
		Conflicts:      res.Conflicts,
		Pushed:         res.Pushed,
		OK:             err == nil,
		Output:         res.Output,
	}
	if err != nil {
		if f, ok := syncer.AsFailure(err); ok {
			run.FailedOp = f.Op
		}
		e.deps.Logger.Error("engine: sync failed",
			slog.String("base_dir", dir),
			slog.String("error", err.Error()))
	} else if res.CommittedLocal || res.CommittedMerge {
		e.deps.Logger.Info("engine: sync",
			slog.Bool("committed_local", res.CommittedLocal),
			slog.Bool("committed_merge", res.CommittedMerge),
			slog.Bool("conflicts", res.Conflicts),
			slog.Bool("pushed", res.Pushed))
	}

	if e.deps.Journal != nil {
		if _, jerr := e.deps.Journal.RecordSync(run); jerr != nil {
			e.deps.Logger.Warn("engine: journal sync failed", slog.String("error", jerr.Error()))
		}
	}
	if n, ok := e.deps.Surface.(Notifier); ok {
		n.SyncFinished(res, err)
	}
	if err == nil {
		// Pulled changes show up on the next scan.
		e.scanLoop.Wake()
	}
	return res, err
}

// runWatcher keeps an fsnotify watcher on the current base directory,
// restarting it when the directory changes.
func (e *Engine) runWatcher(ctx context.Context) error {
	for {
		dir := e.BaseDirectory()
		wctx, cancel := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() {
			errCh <- index.Watch(wctx, dir, e.cfg.Extension, e.cfg.Debounce, e.deps.Logger,
				func(string, string) { e.TriggerScan() })
		}()

		select {
		case <-ctx.Done():
			cancel()
			<-errCh
			return nil
		case <-e.watchRestart:
			cancel()
			<-errCh
			continue
		case err := <-errCh:
			cancel()
			if err != nil {
				e.deps.Logger.Warn("engine: watcher failed",
					slog.String("base_dir", dir),
					slog.String("error", err.Error()))
			}
		}

		// Retry after a scan period; the directory may appear later.
		select {
		case <-ctx.Done():
			return nil
		case <-e.watchRestart:
		case <-time.After(e.cfg.ScanInterval):
		}
	}
}
