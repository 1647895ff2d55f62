package mapper

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmparser "github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

var extensionRegistry = map[string]goldmark.Extender{
	"gfm":           extension.GFM,
	"table":         extension.Table,
	"tables":        extension.Table,
	"strikethrough": extension.Strikethrough,
	"linkify":       extension.Linkify,
	"autolink":      extension.Linkify,
	"tasklist":      extension.TaskList,
	"definition":    extension.DefinitionList,
	"footnote":      extension.Footnote,
}

// MathJax delimiters used by Anki. Backslash escapes inside them must reach
// the card untouched.
var mathRe = regexp.MustCompile(`(?s)\\\(.+?\\\)|\\\[.+?\\\]`)

const mathPlaceholder = "MDCARDSMATH"

// Markdown renders field values from markdown to HTML with goldmark. Raw
// HTML in the source is passed through.
type Markdown struct {
	engine goldmark.Markdown
}

// NewMarkdown builds a renderer with the named goldmark extensions. Unknown
// names are ignored; an empty list selects GFM.
func NewMarkdown(extensions []string) *Markdown {
	return &Markdown{
		engine: goldmark.New(
			goldmark.WithExtensions(collectExtensions(extensions)...),
			goldmark.WithParserOptions(gmparser.WithAttribute()),
			goldmark.WithRendererOptions(html.WithUnsafe(), html.WithHardWraps()),
		),
	}
}

// Render converts src. A single paragraph loses its <p> wrapper so short
// answers stay inline on the card.
func (m *Markdown) Render(src string) (string, error) {
	var spans []string
	protected := mathRe.ReplaceAllStringFunc(src, func(s string) string {
		spans = append(spans, s)
		return mathPlaceholder + strconv.Itoa(len(spans)-1) + "X"
	})

	var buf bytes.Buffer
	if err := m.engine.Convert([]byte(protected), &buf); err != nil {
		return "", fmt.Errorf("markdown: %w", err)
	}
	out := strings.TrimSpace(buf.String())
	if strings.HasPrefix(out, "<p>") && strings.HasSuffix(out, "</p>") &&
		strings.Count(out, "<p>") == 1 {
		out = strings.TrimSuffix(strings.TrimPrefix(out, "<p>"), "</p>")
	}

	for i := len(spans) - 1; i >= 0; i-- {
		out = strings.ReplaceAll(out, mathPlaceholder+strconv.Itoa(i)+"X", spans[i])
	}
	return out, nil
}

// KnownExtension reports whether name selects a goldmark extension.
func KnownExtension(name string) bool {
	_, ok := extensionRegistry[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func collectExtensions(names []string) []goldmark.Extender {
	if len(names) == 0 {
		return []goldmark.Extender{extension.GFM}
	}

	var out []goldmark.Extender
	seen := map[goldmark.Extender]struct{}{}
	for _, name := range names {
		ext, ok := extensionRegistry[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		if _, dup := seen[ext]; dup {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}
