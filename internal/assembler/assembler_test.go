package assembler

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/starford/mdcards/internal/apperr"
	"github.com/starford/mdcards/internal/mapper"
	"github.com/starford/mdcards/internal/schema"
)

func card(source string, block int, q string, path ...string) *mapper.Card {
	return &mapper.Card{
		Source:   source,
		Block:    block,
		Fields:   []string{q, "answer", source, ""},
		DeckPath: path,
	}
}

func writeFile(t *testing.T, path string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func mustAdd(t *testing.T, a *Assembler, c *mapper.Card) []error {
	t.Helper()
	warnings, err := a.Add(c)
	if err != nil {
		t.Fatalf("Add(%s#%d): %v", c.Source, c.Block, err)
	}
	return warnings
}

func TestAdd_MaterializesAncestors(t *testing.T) {
	a := New(schema.Default())
	mustAdd(t, a, card("a/b/c.md", 1, "Q1", "notes", "a", "b"))

	g := a.Graph()
	names := []string{}
	for _, d := range g.Decks {
		names = append(names, d.Name)
	}
	if want := []string{"notes", "notes::a", "notes::a::b"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("decks = %v, want %v", names, want)
	}
	if n := len(g.Deck("notes").Notes); n != 0 {
		t.Fatalf("notes deck has %d notes, want 0", n)
	}
	leaf := g.Deck("notes::a::b").Notes
	if len(leaf) != 1 {
		t.Fatalf("leaf deck has %d notes, want 1", len(leaf))
	}

	n := leaf[0]
	if n.Deck != "notes::a::b" || n.GUID == "" || n.Source != "a/b/c.md" {
		t.Fatalf("note = %+v", n)
	}
	if g.Model.ID != schema.Default().ID {
		t.Fatalf("model ID = %d", g.Model.ID)
	}
}

func TestAdd_DuplicateKeepsFirst(t *testing.T) {
	a := New(schema.Default())
	mustAdd(t, a, card("x.md", 1, "Q", "notes"))

	dup := card("x.md", 1, "Q", "notes", "other")
	dup.Block = 2
	_, err := a.Add(dup)

	var de *apperr.DuplicateNoteError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DuplicateNoteError", err)
	}
	if de.First != "x.md#1" {
		t.Fatalf("First = %q, want %q", de.First, "x.md#1")
	}
	if a.Len() != 1 {
		t.Fatalf("Len = %d, want 1", a.Len())
	}
	if a.Graph().Deck("notes::other") != nil {
		t.Fatal("duplicate should not create its deck")
	}
}

func TestAdd_MissingAssetSkips(t *testing.T) {
	dir := t.TempDir()
	a := New(schema.Default())

	c := card("x.md", 1, "Q", "notes")
	c.Assets = []mapper.AssetRef{{Path: filepath.Join(dir, "nope.png"), Name: "nope.png"}}
	_, err := a.Add(c)

	var me *apperr.MissingAssetError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want MissingAssetError", err)
	}
	if me.Path != filepath.Join(dir, "nope.png") {
		t.Fatalf("Path = %q", me.Path)
	}
	if a.Len() != 0 {
		t.Fatalf("Len = %d, want 0", a.Len())
	}

	// Later cards are still assembled.
	mustAdd(t, a, card("x.md", 2, "Q2", "notes"))
}

func TestAdd_MissingAssetKeep(t *testing.T) {
	dir := t.TempDir()
	a := New(schema.Default(), WithMissingPolicy(MissingKeep))

	c := card("x.md", 1, "Q", "notes")
	c.Assets = []mapper.AssetRef{{Path: filepath.Join(dir, "nope.png"), Name: "nope.png"}}
	if warnings := mustAdd(t, a, c); len(warnings) != 1 {
		t.Fatalf("warnings = %v, want 1", warnings)
	}

	g := a.Graph()
	if g.NoteCount() != 1 || len(g.Assets) != 0 {
		t.Fatalf("notes = %d, assets = %+v", g.NoteCount(), g.Assets)
	}
}

func TestAdd_DirectoryIsNotAnAsset(t *testing.T) {
	dir := t.TempDir()
	a := New(schema.Default())
	c := card("x.md", 1, "Q", "notes")
	c.Assets = []mapper.AssetRef{{Path: dir, Name: filepath.Base(dir)}}
	_, err := a.Add(c)
	var me *apperr.MissingAssetError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want MissingAssetError", err)
	}
}

func TestAdd_AssetsBundledAndCounted(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, filepath.Join(dir, "img", "a.png"))
	q := writeFile(t, filepath.Join(dir, "b.png"))

	a := New(schema.Default())
	c1 := card("x.md", 1, "Q1", "notes")
	c1.Assets = []mapper.AssetRef{{Path: p, Name: "a.png"}, {Path: q, Name: "b.png"}}
	c2 := card("x.md", 2, "Q2", "notes")
	c2.Assets = []mapper.AssetRef{{Path: p, Name: "a.png"}}

	for _, c := range []*mapper.Card{c1, c2} {
		mustAdd(t, a, c)
	}

	g := a.Graph()
	if len(g.Assets) != 2 {
		t.Fatalf("assets = %+v, want 2", g.Assets)
	}
	if g.Assets[0].Name != "a.png" || g.Assets[0].Refs != 2 || g.Assets[1].Name != "b.png" {
		t.Fatalf("assets = %+v", g.Assets)
	}
}

func TestAdd_MediaConflict(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, filepath.Join(dir, "one", "pic.png"))
	second := writeFile(t, filepath.Join(dir, "two", "pic.png"))

	a := New(schema.Default())
	c1 := card("one.md", 1, "Q1", "notes")
	c1.Assets = []mapper.AssetRef{{Path: first, Name: "pic.png"}}
	mustAdd(t, a, c1)

	c2 := card("two.md", 1, "Q2", "notes")
	c2.Assets = []mapper.AssetRef{{Path: second, Name: "pic.png"}}
	_, err := a.Add(c2)

	var ce *apperr.MediaConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want MediaConflictError", err)
	}
	if ce.Existing != first {
		t.Fatalf("Existing = %q, want %q", ce.Existing, first)
	}
	if a.Len() != 1 {
		t.Fatalf("Len = %d, want 1", a.Len())
	}
}

func TestWithStat(t *testing.T) {
	calls := 0
	a := New(schema.Default(), WithStat(func(string) (fs.FileInfo, error) {
		calls++
		return nil, fs.ErrNotExist
	}))
	c := card("x.md", 1, "Q", "notes")
	c.Assets = []mapper.AssetRef{{Path: "/x/y.png", Name: "y.png"}}
	if _, err := a.Add(c); err == nil {
		t.Fatal("expected error from stat")
	}
	if calls != 1 {
		t.Fatalf("stat calls = %d, want 1", calls)
	}
}

func TestAdd_NoDeck(t *testing.T) {
	if _, err := New(schema.Default()).Add(card("x.md", 1, "Q")); err == nil {
		t.Fatal("expected error for a card without a deck")
	}
}

func TestAdd_OverrideDeckHasNoImplicitParents(t *testing.T) {
	a := New(schema.Default())
	c := card("py/history.md", 1, "p?", "Python", "History")
	c.Deck = "Python::History"
	mustAdd(t, a, c)

	g := a.Graph()
	if len(g.Decks) != 1 || g.Decks[0].Name != "Python::History" {
		t.Fatalf("decks = %+v", g.Decks)
	}
}
