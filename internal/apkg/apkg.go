package apkg

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/starford/mdcards/internal/models"
	"github.com/starford/mdcards/internal/storage"
)

// Entry names inside a package.
const (
	CollectionEntry = "collection.anki2"
	MediaEntry      = "media"
)

// Option configures Write.
type Option func(*writer)

// WithClock sets the time source used for timestamps and row IDs.
func WithClock(now func() time.Time) Option {
	return func(w *writer) { w.now = now }
}

// WithTempDir sets where the intermediate collection database is built.
func WithTempDir(dir string) Option {
	return func(w *writer) { w.tempDir = dir }
}

type writer struct {
	now     func() time.Time
	tempDir string
}

// ErrEmptyGraph is returned when there is nothing to write.
var ErrEmptyGraph = errors.New("apkg: graph has no notes")

// Write packages g at path. The file is replaced atomically; a failed write
// leaves any previous file untouched.
func Write(ctx context.Context, path string, g *models.Graph, opts ...Option) error {
	w := &writer{now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	if g == nil || g.NoteCount() == 0 {
		return ErrEmptyGraph
	}

	tmp, err := os.CreateTemp(w.tempDir, "mdcards-*.anki2")
	if err != nil {
		return fmt.Errorf("apkg: create collection file: %w", err)
	}
	dbPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(dbPath)

	if err := writeCollection(ctx, dbPath, g, w.now()); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = storage.WriteFile(path, func(out io.Writer) error {
		return writeZip(ctx, out, dbPath, g.Assets)
	})
	if err != nil {
		return fmt.Errorf("apkg: write %s: %w", path, err)
	}
	return nil
}

func writeZip(ctx context.Context, out io.Writer, dbPath string, assets []*models.ImageAsset) error {
	zw := zip.NewWriter(out)

	if err := addFile(zw, CollectionEntry, dbPath); err != nil {
		return err
	}

	media := make(map[string]string, len(assets))
	for i, a := range assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := strconv.Itoa(i)
		if err := addFile(zw, key, a.Path); err != nil {
			return err
		}
		media[key] = a.Name
	}

	mw, err := zw.Create(MediaEntry)
	if err != nil {
		return fmt.Errorf("create media entry: %w", err)
	}
	if err := json.NewEncoder(mw).Encode(media); err != nil {
		return fmt.Errorf("encode media: %w", err)
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}
