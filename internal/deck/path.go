// Package deck derives deck paths for cards.
package deck

import (
	"path"
	"strings"

	"github.com/starford/mdcards/internal/models"
)

// Separator joins deck path segments into a deck name.
const Separator = "::"

// Resolver computes the deck path of a card.
type Resolver struct {
	// RootName is the first segment of every path derived from the file
	// system, normally the scan root's directory name.
	RootName string
	// IncludeFilename appends the file name without extension.
	IncludeFilename bool
}

// Resolve returns the deck path for a card from file. A non-empty override
// (a "::" separated deck name) wins over the file location.
func (r Resolver) Resolve(file models.SourceFile, override string) []string {
	if segs := Split(override); len(segs) > 0 {
		return segs
	}

	var segs []string
	if r.RootName != "" {
		segs = append(segs, Escape(r.RootName))
	}

	dir, name := path.Split(file.Path)
	for _, s := range strings.Split(strings.Trim(dir, "/"), "/") {
		if s == "" || s == "." {
			continue
		}
		segs = append(segs, Escape(s))
	}
	if r.IncludeFilename {
		stem := strings.TrimSuffix(name, path.Ext(name))
		if stem != "" {
			segs = append(segs, Escape(stem))
		}
	}
	return segs
}

// Split breaks a deck name into trimmed, non-empty segments.
func Split(name string) []string {
	var out []string
	for _, s := range strings.Split(name, Separator) {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Join renders a deck path as a deck name.
func Join(segs []string) string {
	return strings.Join(segs, Separator)
}

// Escape makes a file-system name safe to use as one deck segment. A name
// containing the separator, or starting or ending with ':', would be split
// or merged differently by Anki, so every ':' in it becomes '_'. Other
// names are returned unchanged.
func Escape(seg string) string {
	if !NeedsEscape(seg) {
		return seg
	}
	return strings.ReplaceAll(seg, ":", "_")
}

// NeedsEscape reports whether Escape would change seg.
func NeedsEscape(seg string) bool {
	return strings.Contains(seg, Separator) ||
		strings.HasPrefix(seg, ":") ||
		strings.HasSuffix(seg, ":")
}

// Ancestors returns every proper prefix of segs, shortest first.
func Ancestors(segs []string) [][]string {
	out := make([][]string, 0, len(segs))
	for i := 1; i < len(segs); i++ {
		out = append(out, segs[:i:i])
	}
	return out
}
