package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/mdcards/internal/schema"
)

const cardFormatIntro = `# mdcards Card Format Contract

Flashcards live inside ordinary Markdown notes (.md or .markdown) as fenced
code blocks whose info string is ` + "`anki`" + `. Everything else in the note is
ignored.

## Structure

` + "````" + `markdown
---
deck: Languages::Python          # OPTIONAL – deck for every card in the file
tags: [python, basics]           # OPTIONAL – added to every card in the file
---

# Lists

` + "```" + `anki
q: "What does list.append return?"
a: "None; it mutates the list in place."
tags: [methods]
` + "```" + `
` + "````" + `

## Rules

1. **The block body is a YAML mapping.** Anything else (a list, a scalar, a
   syntax error) skips the card and is reported.
2. **The first model field must be set.** Cards whose first field is empty are
   skipped.
3. **Decks** default to the note's directory path below the notes root
   (` + "`notes/py/lists.md`" + ` → ` + "`notes::py`" + `). A ` + "`deck`" + ` key in the block, or a
   ` + "`deck`" + ` / ` + "`anki_deck`" + ` key in the frontmatter, overrides it; use ` + "`::`" + ` to nest.
4. **Tags** are a YAML list or a space-separated string. A leading ` + "`#`" + ` is
   dropped and inner spaces become underscores.
5. **Images** are referenced with ` + "`![alt](path)`" + ` or ` + "`<img src=\"path\">`" + `, relative
   to the note. They are bundled into the package; remote URLs are left as-is.
6. **Fences** may use backticks or tildes, three or more, and must be closed
   with the same character and at least the same length, indented no deeper
   than the opening fence. Code blocks inside an answer are therefore safe as
   long as they are indented under a ` + "`|`" + ` block scalar.
`

// CardFormatContract describes the card block format for the given model,
// including the payload keys it accepts.
func CardFormatContract(m *schema.Model) string {
	var b strings.Builder
	b.WriteString(cardFormatIntro)
	fmt.Fprintf(&b, "\n## Note type: %s\n\n", m.Name)
	b.WriteString("| Payload key | Field |\n|---|---|\n")
	for _, km := range m.FieldMap {
		fmt.Fprintf(&b, "| `%s` | %s |\n", km.Key, km.Field)
	}
	b.WriteString("\nFields in order: " + strings.Join(m.Fields, ", ") + ".\n")
	if m.SourceField != "" {
		fmt.Fprintf(&b, "`%s` is filled with the note's path automatically.\n", m.SourceField)
	}
	if m.TagsField != "" {
		fmt.Fprintf(&b, "`%s` is filled with the card's tags automatically.\n", m.TagsField)
	}
	return b.String()
}
