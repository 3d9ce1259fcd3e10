package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change kinds passed to EventCallback.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// EventCallback is called once per debounce window after note changes.
// kind is the kind of the last change seen in the window.
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on root and reports note changes until
// ctx is cancelled. Events are coalesced: cb fires once debounce has passed
// without further activity.
//
// New directories created at runtime are added to the watch list. Hidden
// directories (".git" in particular) are never watched.
func Watch(ctx context.Context, root, ext string, debounce time.Duration, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	logger.Info("watcher: started", slog.String("root", root))

	var timer *time.Timer
	var timerCh <-chan time.Time
	var lastKind, lastPath string

	schedule := func(kind, path string) {
		lastKind, lastPath = kind, path
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped", slog.String("root", root))
			return nil

		case <-timerCh:
			timer, timerCh = nil, nil
			if cb != nil {
				cb(lastKind, lastPath)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if hidden(absPath) {
						continue
					}
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					// Notes may already sit inside a directory moved into the tree.
					schedule(ChangeCreated, absPath)
					continue
				}
			}

			if !strings.HasSuffix(absPath, ext) {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				schedule(ChangeCreated, absPath)
			case ev.Op&fsnotify.Write != 0:
				schedule(ChangeUpdated, absPath)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				schedule(ChangeDeleted, absPath)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		return w.Add(path)
	})
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
