package mapper

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/starford/mdcards/internal/apperr"
	"github.com/starford/mdcards/internal/models"
	"github.com/starford/mdcards/internal/parser"
	"github.com/starford/mdcards/internal/schema"
)

func source(rel string) models.SourceFile {
	root := filepath.FromSlash("/notes")
	return models.SourceFile{Path: rel, AbsPath: filepath.Join(root, filepath.FromSlash(rel))}
}

func payload(t *testing.T, text string) *parser.Payload {
	t.Helper()
	p, err := parser.ParsePayload(text)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	return p
}

func mapCard(t *testing.T, m *Mapper, rel, text string, meta parser.FileMeta) *Card {
	t.Helper()
	card, err := m.Map(source(rel), payload(t, text), meta)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	return card
}

func TestMap_DefaultModel(t *testing.T) {
	card := mapCard(t, New(schema.Default()), "a/b/c.md",
		"q: What is 2+2?\na: \"4\"\ntags: [math, basics]\nextra: ignored\n",
		parser.FileMeta{Tags: []string{"school"}})

	if want := []string{"What is 2+2?", "4", "a/b/c.md", "school math basics"}; !reflect.DeepEqual(card.Fields, want) {
		t.Fatalf("Fields = %q, want %q", card.Fields, want)
	}
	if want := []string{"school", "math", "basics"}; !reflect.DeepEqual(card.Tags, want) {
		t.Fatalf("Tags = %q, want %q", card.Tags, want)
	}
	if card.Source != "a/b/c.md" || card.Deck != "" || len(card.Assets) != 0 {
		t.Fatalf("card = %+v", card)
	}
}

func TestMap_AlternateKeys(t *testing.T) {
	card := mapCard(t, New(schema.Default()), "x.md", "question: Q\nanswer: A\n", parser.FileMeta{})
	if card.Fields[0] != "Q" || card.Fields[1] != "A" {
		t.Fatalf("Fields = %q", card.Fields)
	}
}

func TestMap_MissingKeysLeaveFieldsEmpty(t *testing.T) {
	card := mapCard(t, New(schema.Default()), "x.md", "q: only a question\n", parser.FileMeta{})
	if card.Fields[1] != "" || card.Fields[3] != "" {
		t.Fatalf("Fields = %q", card.Fields)
	}
}

func TestMap_EmptySortField(t *testing.T) {
	for _, text := range []string{"a: answer without question\n", "q: \"   \"\na: x\n"} {
		_, err := New(schema.Default()).Map(source("x.md"), payload(t, text), parser.FileMeta{})
		if !errors.Is(err, apperr.ErrEmptySortField) {
			t.Fatalf("Map(%q) err = %v, want ErrEmptySortField", text, err)
		}
	}
}

func TestMap_ListValueJoined(t *testing.T) {
	card := mapCard(t, New(schema.Default()), "x.md", "q: Primes?\na: [2, 3, 5]\n", parser.FileMeta{})
	if card.Fields[1] != "2, 3, 5" {
		t.Fatalf("Back = %q", card.Fields[1])
	}
}

func TestMap_DeckOverride(t *testing.T) {
	m := New(schema.Default())

	card := mapCard(t, m, "x.md", "q: Q\n", parser.FileMeta{Deck: "From::File"})
	if card.Deck != "From::File" {
		t.Fatalf("Deck = %q, want %q", card.Deck, "From::File")
	}

	card = mapCard(t, m, "x.md", "q: Q\ndeck: \" Custom::Topic \"\n", parser.FileMeta{Deck: "From::File"})
	if card.Deck != "Custom::Topic" {
		t.Fatalf("Deck = %q, want %q", card.Deck, "Custom::Topic")
	}
}

func TestMap_ScalarTags(t *testing.T) {
	card := mapCard(t, New(schema.Default()), "x.md", "q: Q\ntags: \"a, b  c\"\n", parser.FileMeta{})
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(card.Tags, want) {
		t.Fatalf("Tags = %q, want %q", card.Tags, want)
	}
}

func TestMap_CollectsImages(t *testing.T) {
	card := mapCard(t, New(schema.Default()), "sub/file.md",
		"q: \"![chart](img/chart.png) and ![chart](img/chart.png)\"\na: '<img src=\"../shared/pic.jpg\">'\n",
		parser.FileMeta{})

	if want := `<img src="chart.png" alt="chart"> and <img src="chart.png" alt="chart">`; card.Fields[0] != want {
		t.Fatalf("Front = %q, want %q", card.Fields[0], want)
	}
	if want := `<img src="pic.jpg">`; card.Fields[1] != want {
		t.Fatalf("Back = %q, want %q", card.Fields[1], want)
	}
	if len(card.Assets) != 2 {
		t.Fatalf("assets = %+v, want 2", card.Assets)
	}
	if want := filepath.Join(filepath.FromSlash("/notes/sub/img"), "chart.png"); card.Assets[0].Path != want {
		t.Fatalf("asset 0 = %q, want %q", card.Assets[0].Path, want)
	}
	if want := filepath.Join(filepath.FromSlash("/notes/shared"), "pic.jpg"); card.Assets[1].Path != want {
		t.Fatalf("asset 1 = %q, want %q", card.Assets[1].Path, want)
	}
}

func TestMap_Renderer(t *testing.T) {
	m := New(schema.Default(), WithRenderer(NewMarkdown(nil)))
	card := mapCard(t, m, "x.md", "q: \"**bold** question\"\na: plain\n", parser.FileMeta{Tags: []string{"t"}})

	want := []string{"<strong>bold</strong> question", "plain", "x.md", "t"}
	if !reflect.DeepEqual(card.Fields, want) {
		t.Fatalf("Fields = %q, want %q", card.Fields, want)
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags(
		[]string{" python ", "#history", "two words"},
		[]string{"python", "", "  ", "two  words", "new"},
	)
	if want := []string{"python", "history", "two_words", "new"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeTags = %q, want %q", got, want)
	}
	if got := NormalizeTags(nil, []string{" "}); len(got) != 0 {
		t.Fatalf("NormalizeTags = %q, want empty", got)
	}
}
