package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/adrg/frontmatter"
)

// FileMeta holds the card defaults a markdown file may declare in its
// frontmatter.
type FileMeta struct {
	Deck string   // anki_deck or deck: deck override for every card in the file
	Tags []string // tags added to every card in the file
}

type metaEnvelope struct {
	AnkiDeck string      `yaml:"anki_deck"`
	Deck     string      `yaml:"deck"`
	Tags     interface{} `yaml:"tags"`
}

// ParseFrontmatter reads the file-level card defaults from data. Files
// without frontmatter, or with frontmatter that does not parse, yield an
// empty FileMeta.
func ParseFrontmatter(data []byte) FileMeta {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte("---")) {
		return FileMeta{}
	}

	var env metaEnvelope
	if _, err := frontmatter.Parse(bytes.NewReader(trimmed), &env); err != nil {
		return FileMeta{}
	}

	deck := strings.TrimSpace(env.AnkiDeck)
	if deck == "" {
		deck = strings.TrimSpace(env.Deck)
	}
	return FileMeta{
		Deck: deck,
		Tags: metaTags(env.Tags),
	}
}

// metaTags accepts both a YAML list and a single space or comma separated
// string, the two forms note-taking apps write.
func metaTags(raw interface{}) []string {
	var out []string
	switch v := raw.(type) {
	case string:
		out = append(out, SplitTags(v)...)
	case []interface{}:
		for _, item := range v {
			if item == nil {
				continue
			}
			s := strings.TrimSpace(fmt.Sprint(item))
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// SplitTags splits a scalar tag string on commas and whitespace.
func SplitTags(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}
