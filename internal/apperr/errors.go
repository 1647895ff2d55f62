// Package apperr defines the error kinds reported by the card compiler.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoCards is returned when a scan produced no valid card at all.
	ErrNoCards = errors.New("no valid anki card blocks found")

	// ErrEmptySortField is returned for a card whose first field is empty.
	ErrEmptySortField = errors.New("first field is empty")

	// ErrInvalidSchema is the sentinel every SchemaError unwraps to.
	ErrInvalidSchema = errors.New("invalid model schema")

	// ErrNotFound is returned when a deck or note does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotReady is returned before the first successful build.
	ErrNotReady = errors.New("no build available yet")
)

// SchemaError reports a model definition that failed validation.
type SchemaError struct {
	Source string // file path, or "default"
	Issues []string
	Err    error
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("model schema")
	if e.Source != "" {
		b.WriteString(" " + e.Source)
	}
	b.WriteString(": ")
	switch {
	case len(e.Issues) > 0:
		b.WriteString(strings.Join(e.Issues, "; "))
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(ErrInvalidSchema.Error())
	}
	return b.String()
}

func (e *SchemaError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidSchema, e.Err}
	}
	return []error{ErrInvalidSchema}
}

// ParseError reports a card block whose payload could not be parsed.
type ParseError struct {
	File    string
	Ordinal int
	Line    int
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: block %d (line %d): %v", e.File, e.Ordinal, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnterminatedBlockError reports an anki fence that is never closed.
// Nothing after the opening fence is extracted.
type UnterminatedBlockError struct {
	Ordinal int
	Line    int
}

func (e *UnterminatedBlockError) Error() string {
	return fmt.Sprintf("block %d (line %d): unterminated anki fence, rest of file ignored", e.Ordinal, e.Line)
}

// UnterminatedFenceError reports a plain code fence that is never closed.
// Any anki fence after it is swallowed by the open code block.
type UnterminatedFenceError struct {
	Line int
}

func (e *UnterminatedFenceError) Error() string {
	return fmt.Sprintf("line %d: unterminated code fence, rest of file ignored", e.Line)
}

// MissingAssetError reports a local image reference that does not exist on disk.
type MissingAssetError struct {
	Path string
}

func (e *MissingAssetError) Error() string {
	return fmt.Sprintf("image not found: %s", e.Path)
}

// MediaConflictError reports two different image files that would share
// one name inside the package.
type MediaConflictError struct {
	Name     string
	Path     string
	Existing string
}

func (e *MediaConflictError) Error() string {
	return fmt.Sprintf("media name %q for %s already used by %s", e.Name, e.Path, e.Existing)
}

// DuplicateNoteError reports a card identical to one already assembled.
type DuplicateNoteError struct {
	GUID  string
	First string // "file#block" of the kept note
}

func (e *DuplicateNoteError) Error() string {
	return fmt.Sprintf("duplicate of note %s from %s", e.GUID, e.First)
}
