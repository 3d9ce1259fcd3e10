// Package noteservice implements the note commands offered to the HTTP, MCP
// and CLI front ends on top of the engine.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/ntoes/internal/apperr"
	"github.com/starford/ntoes/internal/models"
	"github.com/starford/ntoes/internal/parser"
	"github.com/starford/ntoes/internal/storage"
	"github.com/starford/ntoes/internal/syncer"
)

// Engine is the subset of *engine.Engine the service drives.
type Engine interface {
	ScanNow(ctx context.Context) (string, error)
	SyncNow(ctx context.Context) (syncer.Result, error)
	NoteSaved(ctx context.Context, path string) error
	EditNote(ctx context.Context, path string, apply func(abs string) error) error
	WriteNote(path string, apply func(abs string) error) error
	TriggerScan()
	BaseDirectory() string
	SetBaseDirectory(dir string) (string, error)
}

// History reads past sync runs.
type History interface {
	SyncHistory(limit int) ([]models.SyncRun, error)
}

// Note identifies a note file.
type Note struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

// Toggled describes a line changed by ToggleItem.
type Toggled struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Service coordinates storage and engine operations.
type Service struct {
	engine  Engine
	store   storage.Provider
	history History
	ext     string
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a new note service. history may be nil.
func NewService(eng Engine, store storage.Provider, history History, ext string, logger *slog.Logger) *Service {
	if ext == "" {
		ext = storage.DefaultExtension
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:  eng,
		store:   store,
		history: history,
		ext:     ext,
		logger:  logger,
		now:     time.Now,
	}
}

// NoteDirForTitle returns the directory a note titled title belongs in:
// <base>/<YYYY>/<MM - MonthName>, from the "YYYY-MM" prefix of the title.
func NoteDirForTitle(base, title string) (string, error) {
	if len(title) < 7 {
		return "", fmt.Errorf("%w: %q does not start with YYYY-MM", apperr.ErrInvalidTitle, title)
	}
	d, err := time.Parse("2006-01", title[:7])
	if err != nil {
		return "", fmt.Errorf("%w: %q does not start with YYYY-MM", apperr.ErrInvalidTitle, title)
	}
	return filepath.Join(base, d.Format("2006"), d.Format("01 - January")), nil
}

// DefaultTitle is today's date in ISO form.
func (s *Service) DefaultTitle() string {
	return s.now().Format(time.DateOnly)
}

// BaseDir returns the note tree root.
func (s *Service) BaseDir() string { return s.engine.BaseDirectory() }

// SetBaseDir switches the note tree root.
func (s *Service) SetBaseDir(dir string) (string, error) {
	return s.engine.SetBaseDirectory(dir)
}

// NoteDir returns the directory for title under the current base directory.
func (s *Service) NoteDir(title string) (string, error) {
	return NoteDirForTitle(s.engine.BaseDirectory(), strings.TrimSpace(title))
}

// CreateNote writes a new note containing only its heading. An empty title
// means today's date.
func (s *Service) CreateNote(_ context.Context, title string) (*Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = s.DefaultTitle()
	}
	if strings.ContainsAny(title, `/\`) || strings.HasPrefix(title, ".") {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidTitle, title)
	}

	dir, err := s.NoteDir(title)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, title+s.ext)
	err = s.engine.WriteNote(path, func(p string) error {
		if storage.Exists(p) {
			return apperr.ErrAlreadyExists
		}
		return s.store.Write(p, []byte(parser.Heading(title)))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("note created", slog.String("path", path))
	return &Note{Path: path, Title: title}, nil
}

// Resolve maps a path (absolute or relative to the base directory) to an
// absolute path inside the base directory.
func (s *Service) Resolve(path string) (string, error) {
	return storage.Within(s.engine.BaseDirectory(), path)
}

// ToggleItem flips the TODO marker on one 0-based line of a note and treats
// the write as a save. The engine holds its lock across the read, the write
// and the follow-up sync; a sync failure after the write is logged, not
// returned.
func (s *Service) ToggleItem(ctx context.Context, path string, line int) (*Toggled, error) {
	abs, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}

	var text string
	err = s.engine.EditNote(ctx, abs, func(p string) error {
		data, err := s.store.Read(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return apperr.ErrNotFound
			}
			return err
		}

		lines := strings.Split(string(data), "\n")
		// A trailing newline leaves an empty last element that is not a line.
		count := len(lines)
		if strings.HasSuffix(string(data), "\n") {
			count--
		}
		if line < 0 || line >= count {
			return fmt.Errorf("%w: %d (file has %d lines)", apperr.ErrLineOutOfRange, line, count)
		}

		t, cr := strings.CutSuffix(lines[line], "\r")
		text = parser.ToggleLine(t)
		if cr {
			lines[line] = text + "\r"
		} else {
			lines[line] = text
		}
		return s.store.Write(p, []byte(strings.Join(lines, "\n")))
	})
	if err != nil {
		return nil, err
	}
	return &Toggled{Path: abs, Line: line, Text: text}, nil
}

// NoteSaved tells the engine that path was written by an editor.
func (s *Service) NoteSaved(ctx context.Context, path string) error {
	abs, err := s.Resolve(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	return s.engine.NoteSaved(ctx, abs)
}

// ShowTodo runs a scan and returns the aggregated view.
func (s *Service) ShowTodo(ctx context.Context) (string, error) {
	return s.engine.ScanNow(ctx)
}

// RequestScan wakes the scan loop without waiting for it.
func (s *Service) RequestScan() { s.engine.TriggerScan() }

// Sync runs one sync cycle.
func (s *Service) Sync(ctx context.Context) (syncer.Result, error) {
	return s.engine.SyncNow(ctx)
}

// SyncHistory returns recent sync runs, newest first.
func (s *Service) SyncHistory(limit int) ([]models.SyncRun, error) {
	if s.history == nil {
		return []models.SyncRun{}, nil
	}
	runs, err := s.history.SyncHistory(limit)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}
	return runs, nil
}
