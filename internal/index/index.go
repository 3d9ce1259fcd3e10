// Package index tracks outstanding TODO items across the note tree and
// renders them as a single aggregated view.
package index

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/ntoes/internal/models"
	"github.com/starford/ntoes/internal/parser"
	"github.com/starford/ntoes/internal/storage"
)

// Stats summarises one Rescan.
type Stats struct {
	Files     int // note files present on disk
	Rescanned int // files read this cycle
	Removed   int // entries dropped because the file vanished
	Skipped   int // files that could not be read and will be retried
	Items     int // outstanding items across the index
}

// Index maps note paths to their tracked state.
//
// Index is not safe for concurrent use; callers serialize access (the engine
// holds its exclusion lock around every call).
type Index struct {
	store storage.Provider
	files map[string]*models.NoteFile
}

// New creates an empty index reading through store.
func New(store storage.Provider) *Index {
	return &Index{
		store: store,
		files: make(map[string]*models.NoteFile),
	}
}

// Rescan brings the index up to date with baseDir and returns the rendered
// aggregated view:
//   - paths no longer on disk are removed
//   - untracked files are read and inserted
//   - tracked files are re-read only when their mtime moved forward
//
// A file that cannot be read is left as it was (or left out, if new) and is
// retried on the next call. Only a failure to enumerate baseDir is returned,
// in which case the index is untouched.
func (ix *Index) Rescan(baseDir string, logger *slog.Logger) (string, Stats, error) {
	var st Stats

	metas, err := ix.store.List(baseDir)
	if err != nil {
		return "", st, err
	}
	st.Files = len(metas)

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
	}

	for p := range ix.files {
		if _, ok := disk[p]; !ok {
			delete(ix.files, p)
			st.Removed++
			logger.Debug("index: removed stale", slog.String("path", p))
		}
	}

	for _, m := range metas {
		nf, tracked := ix.files[m.Path]
		if tracked && !m.ModTime.After(nf.LastModified) {
			continue
		}

		lines, err := ix.store.ReadLines(m.Path)
		if err != nil {
			st.Skipped++
			logger.Warn("index: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		st.Rescanned++

		if !tracked {
			nf = &models.NoteFile{Path: m.Path}
			ix.files[m.Path] = nf
		}
		nf.LastModified = m.ModTime
		nf.Items = parser.ExtractItems(lines)
		logger.Debug("index: scanned", slog.String("path", m.Path), slog.Int("items", len(nf.Items)))
	}

	for _, nf := range ix.files {
		st.Items += len(nf.Items)
	}
	return ix.Render(), st, nil
}

// Render builds the aggregated view: one section per file with at least one
// outstanding item, in descending path order so the newest dated notes come
// first.
func (ix *Index) Render() string {
	var b strings.Builder
	for _, p := range ix.sortedPaths() {
		nf := ix.files[p]
		if len(nf.Items) == 0 {
			continue
		}
		b.WriteString("# ")
		b.WriteString(filepath.Base(p))
		b.WriteString("\n\n")
		for _, it := range nf.Items {
			b.WriteString(it.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Len returns the number of tracked files.
func (ix *Index) Len() int { return len(ix.files) }

// Get returns a copy of the tracked state for path.
func (ix *Index) Get(path string) (models.NoteFile, bool) {
	nf, ok := ix.files[path]
	if !ok {
		return models.NoteFile{}, false
	}
	return copyNote(nf), true
}

// Files returns copies of every tracked file in descending path order.
func (ix *Index) Files() []models.NoteFile {
	paths := ix.sortedPaths()
	out := make([]models.NoteFile, 0, len(paths))
	for _, p := range paths {
		out = append(out, copyNote(ix.files[p]))
	}
	return out
}

func (ix *Index) sortedPaths() []string {
	paths := make([]string, 0, len(ix.files))
	for p := range ix.files {
		paths = append(paths, p)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths
}

func copyNote(nf *models.NoteFile) models.NoteFile {
	cp := *nf
	cp.Items = append([]models.Item(nil), nf.Items...)
	return cp
}
