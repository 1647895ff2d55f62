// Package testutil provides shared test helpers for setting up notes trees.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/mdcards/internal/storage"
)

// TestNotes creates a temporary notes directory named "notes" holding files,
// keyed by slash-separated relative path. It returns the directory and a
// storage.Provider rooted at it.
func TestNotes(t *testing.T, files map[string]string) (string, storage.Provider) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "notes")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	WriteTree(t, dir, files)
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// WriteTree writes files under dir, creating parent directories.
func WriteTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// Card renders a fenced anki card block from raw YAML lines.
func Card(lines ...string) string {
	out := "```anki\n"
	for _, l := range lines {
		out += l + "\n"
	}
	return out + "```\n"
}
