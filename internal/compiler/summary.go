package compiler

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/starford/mdcards/internal/apperr"
)

// Skip records a block or card left out of the graph, or kept with a
// problem, and why.
type Skip struct {
	File   string `json:"file"`
	Block  int    `json:"block,omitempty"`
	Line   int    `json:"line,omitempty"`
	Reason error  `json:"-"`
}

// Kind classifies the skip reason.
func (s Skip) Kind() string {
	var (
		parseErr  *apperr.ParseError
		unterm    *apperr.UnterminatedBlockError
		fence     *apperr.UnterminatedFenceError
		missing   *apperr.MissingAssetError
		conflict  *apperr.MediaConflictError
		duplicate *apperr.DuplicateNoteError
	)
	switch {
	case errors.As(s.Reason, &parseErr):
		return "parse"
	case errors.As(s.Reason, &unterm), errors.As(s.Reason, &fence):
		return "unterminated"
	case errors.As(s.Reason, &missing):
		return "missing_asset"
	case errors.As(s.Reason, &conflict):
		return "media_conflict"
	case errors.As(s.Reason, &duplicate):
		return "duplicate"
	case errors.Is(s.Reason, apperr.ErrEmptySortField):
		return "empty_sort_field"
	case s.Block == 0:
		return "read"
	default:
		return "other"
	}
}

// MarshalJSON adds the kind and reason text.
func (s Skip) MarshalJSON() ([]byte, error) {
	type plain Skip
	out := struct {
		plain
		Kind  string `json:"kind"`
		Error string `json:"error"`
	}{plain: plain(s), Kind: s.Kind()}
	if s.Reason != nil {
		out.Error = s.Reason.Error()
	}
	return json.Marshal(out)
}

// Summary describes one compilation.
type Summary struct {
	Files    int           `json:"files"`
	Blocks   int           `json:"blocks"`
	Notes    int           `json:"notes"`
	Decks    int           `json:"decks"`
	Assets   int           `json:"assets"`
	Duration time.Duration `json:"duration"`
	Skipped  []Skip        `json:"skipped,omitempty"`
	Warnings []Skip        `json:"warnings,omitempty"`
}

// SkippedByKind counts skips per Kind.
func (s Summary) SkippedByKind() map[string]int {
	out := make(map[string]int)
	for _, sk := range s.Skipped {
		out[sk.Kind()]++
	}
	return out
}
