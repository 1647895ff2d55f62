// Package storage defines the notes file-system abstraction.
package storage

import (
	"context"
	"errors"

	"github.com/starford/mdcards/internal/models"
)

// TempPrefix names the temporary files of atomic writes.
const TempPrefix = ".mdcards-tmp-"

// ErrNotDir is returned when the notes root is not a directory.
var ErrNotDir = errors.New("root is not a directory")

// Provider is the interface for notes file operations.
type Provider interface {
	// Root returns the absolute notes directory.
	Root() string
	// List returns every markdown file under the root, sorted by path.
	List(ctx context.Context) ([]models.SourceFile, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
}
