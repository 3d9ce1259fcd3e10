// Package storage defines the note tree file-system abstraction.
package storage

import (
	"time"

	"github.com/starford/ntoes/internal/models"
)

// Provider is the interface for note tree file operations. All paths are
// absolute.
type Provider interface {
	// List returns metadata for every note file under baseDir.
	List(baseDir string) ([]models.NoteMetadata, error)
	// ModTime returns the last modification time of the file at path.
	ModTime(path string) (time.Time, error)
	// ReadLines returns the decoded lines of the file at path, without line
	// terminators. Malformed byte sequences are replaced, not rejected.
	ReadLines(path string) ([]string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
}
