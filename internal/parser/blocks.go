// Package parser extracts anki card blocks from Markdown text and parses
// their key/value payloads.
package parser

import (
	"iter"
	"strings"

	"github.com/starford/mdcards/internal/apperr"
)

// Tag is the info-string word that marks a fenced region as a card block.
const Tag = "anki"

// RawBlock is the payload of one card block and its position in the file.
type RawBlock struct {
	Payload string
	Ordinal int // 1-based position among the card blocks of the file
	Line    int // 1-based line of the opening fence
}

type fence struct {
	char   byte
	size   int
	indent int
	tagged bool
}

// Blocks returns the card blocks of src in document order. Scanning is
// lexical: only fence lines are recognised, and fenced regions that are not
// tagged anki are skipped without looking inside them.
//
// An anki fence that is never closed yields a single
// *apperr.UnterminatedBlockError and ends the sequence; an unclosed plain
// fence yields *apperr.UnterminatedFenceError the same way. Each range over
// the returned sequence rescans src.
func Blocks(src []byte) iter.Seq2[RawBlock, error] {
	return func(yield func(RawBlock, error) bool) {
		lines := splitLines(string(src))
		ordinal := 0

		for i := 0; i < len(lines); i++ {
			f, ok := openingFence(lines[i])
			if !ok {
				continue
			}
			end := closingLine(lines, i+1, f)

			if !f.tagged {
				if end < 0 {
					// An unclosed fence runs to the end of the document.
					yield(RawBlock{}, &apperr.UnterminatedFenceError{Line: i + 1})
					return
				}
				i = end
				continue
			}

			ordinal++
			if end < 0 {
				yield(RawBlock{}, &apperr.UnterminatedBlockError{Ordinal: ordinal, Line: i + 1})
				return
			}

			block := RawBlock{
				Payload: dedent(lines[i+1:end], f.indent),
				Ordinal: ordinal,
				Line:    i + 1,
			}
			if !yield(block, nil) {
				return
			}
			i = end
		}
	}
}

// Collect drains Blocks into a slice. The returned error, if any, is the
// unterminated-fence diagnostic; blocks before it are still returned.
func Collect(src []byte) ([]RawBlock, error) {
	var out []RawBlock
	for b, err := range Blocks(src) {
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
	return out, nil
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func openingFence(line string) (fence, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if len(trimmed) < 3 || (trimmed[0] != '`' && trimmed[0] != '~') {
		return fence{}, false
	}
	ch := trimmed[0]
	n := runLength(trimmed, ch)
	if n < 3 {
		return fence{}, false
	}
	info := strings.TrimSpace(trimmed[n:])
	// A backtick in the info string means this is inline code, not a fence.
	if ch == '`' && strings.IndexByte(info, '`') >= 0 {
		return fence{}, false
	}
	word := info
	if i := strings.IndexAny(info, " \t{"); i >= 0 {
		word = info[:i]
	}
	return fence{
		char:   ch,
		size:   n,
		indent: len(line) - len(trimmed),
		tagged: strings.EqualFold(word, Tag),
	}, true
}

// closingLine returns the index of the line closing f, or -1. A closing
// fence may not be indented deeper than the opening one, so fences nested
// inside a block scalar stay part of the payload.
func closingLine(lines []string, from int, f fence) int {
	for j := from; j < len(lines); j++ {
		trimmed := strings.TrimLeft(lines[j], " \t")
		if len(lines[j])-len(trimmed) > f.indent {
			continue
		}
		n := runLength(trimmed, f.char)
		if n >= f.size && strings.TrimSpace(trimmed[n:]) == "" {
			return j
		}
	}
	return -1
}

func runLength(s string, ch byte) int {
	n := 0
	for n < len(s) && s[n] == ch {
		n++
	}
	return n
}

// dedent strips up to indent leading blanks from every line, so blocks
// nested in list items parse the same as top-level ones.
func dedent(lines []string, indent int) string {
	out := make([]string, len(lines))
	for i, l := range lines {
		k := 0
		for k < indent && k < len(l) && (l[k] == ' ' || l[k] == '\t') {
			k++
		}
		out[i] = l[k:]
	}
	return strings.Join(out, "\n")
}
