package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/starford/ntoes/internal/apperr"
	"github.com/starford/ntoes/internal/models"
)

// DefaultExtension is the file extension that marks a note.
const DefaultExtension = ".md"

// FS implements Provider backed by the local file system.
type FS struct {
	ext string
}

// NewFS creates a new FS provider recognising notes by ext (".md" if empty).
func NewFS(ext string) *FS {
	if ext == "" {
		ext = DefaultExtension
	}
	return &FS{ext: ext}
}

// Extension returns the note file extension.
func (f *FS) Extension() string { return f.ext }

// List walks baseDir and returns metadata for every note file. Entries that
// cannot be stat'ed (permission errors, files deleted mid-walk) are skipped
// so one bad path never aborts the walk. Only a missing or unreadable
// baseDir is reported as an error.
func (f *FS) List(baseDir string) ([]models.NoteMetadata, error) {
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, fmt.Errorf("storage: %w: %v", apperr.ErrInvalidBaseDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: %w: not a directory: %s", apperr.ErrInvalidBaseDir, baseDir)
	}

	var out []models.NoteMetadata
	err = filepath.WalkDir(baseDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == baseDir {
				return walkErr
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != baseDir && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), f.ext) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, models.NoteMetadata{
			Path:    p,
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// ModTime returns the modification time of path.
func (f *FS) ModTime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return fi.ModTime(), nil
}

// Read returns the raw bytes of a note file.
func (f *FS) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// ReadLines reads path and splits it into lines. A leading BOM is dropped
// and invalid UTF-8 is replaced with U+FFFD.
func (f *FS) ReadLines(path string) ([]string, error) {
	data, err := f.Read(path)
	if err != nil {
		return nil, err
	}
	return DecodeLines(data), nil
}

// DecodeLines lossily decodes data as UTF-8 and splits it on "\n", trimming
// a trailing "\r" from each line. A final empty line after the last
// terminator is not returned.
func DecodeLines(data []byte) []string {
	decoded, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), data)
	if err != nil {
		decoded = bytes.ToValidUTF8(data, []byte("�"))
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(decoded))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimSuffix(sc.Text(), "\r"))
	}
	return lines
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("storage: absolute path required: %s", path)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ntoes-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Within resolves p against baseDir and reports an error when the result
// escapes baseDir (directory traversal).
func Within(baseDir, p string) (string, error) {
	root, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("storage: resolve root: %w", err)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, root+string(os.PathSeparator)) && abs != root {
		return "", fmt.Errorf("storage: %w: %s", apperr.ErrOutsideBaseDir, p)
	}
	return abs, nil
}

// Exists reports whether a file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
