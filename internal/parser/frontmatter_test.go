package parser

import (
	"reflect"
	"testing"
)

func TestParseFrontmatter_DeckAndTags(t *testing.T) {
	meta := ParseFrontmatter([]byte("---\ntitle: Python\nanki_deck: Lang::Python\ntags:\n  - python\n  - lang\n---\n# Python\n"))
	if meta.Deck != "Lang::Python" {
		t.Fatalf("Deck = %q, want %q", meta.Deck, "Lang::Python")
	}
	if want := []string{"python", "lang"}; !reflect.DeepEqual(meta.Tags, want) {
		t.Fatalf("Tags = %v, want %v", meta.Tags, want)
	}
}

func TestParseFrontmatter_DeckKey(t *testing.T) {
	meta := ParseFrontmatter([]byte("---\ndeck: Languages::Python\ntags: [python, basics]\n---\nbody\n"))
	if meta.Deck != "Languages::Python" {
		t.Fatalf("Deck = %q, want %q", meta.Deck, "Languages::Python")
	}
	if want := []string{"python", "basics"}; !reflect.DeepEqual(meta.Tags, want) {
		t.Fatalf("Tags = %v, want %v", meta.Tags, want)
	}
}

func TestParseFrontmatter_AnkiDeckWinsOverDeck(t *testing.T) {
	meta := ParseFrontmatter([]byte("---\ndeck: Plain\nanki_deck: Specific\n---\nbody\n"))
	if meta.Deck != "Specific" {
		t.Fatalf("Deck = %q, want %q", meta.Deck, "Specific")
	}
}

func TestParseFrontmatter_ScalarTags(t *testing.T) {
	meta := ParseFrontmatter([]byte("---\ntags: go, cli testing\n---\nbody\n"))
	if want := []string{"go", "cli", "testing"}; !reflect.DeepEqual(meta.Tags, want) {
		t.Fatalf("Tags = %v, want %v", meta.Tags, want)
	}
}

func TestParseFrontmatter_None(t *testing.T) {
	if meta := ParseFrontmatter([]byte("# Just a heading\n")); !reflect.DeepEqual(meta, FileMeta{}) {
		t.Fatalf("meta = %+v, want zero", meta)
	}
}

func TestParseFrontmatter_InvalidYAMLFallback(t *testing.T) {
	if meta := ParseFrontmatter([]byte("---\n: invalid: yaml: {{{\n---\nBody\n")); !reflect.DeepEqual(meta, FileMeta{}) {
		t.Fatalf("meta = %+v, want zero", meta)
	}
}

func TestSplitTags(t *testing.T) {
	if got, want := SplitTags(" a, b\tc ,"), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitTags = %v, want %v", got, want)
	}
	if got := SplitTags(" , "); len(got) != 0 {
		t.Fatalf("SplitTags = %v, want empty", got)
	}
}
