// Package mapper maps parsed card payloads onto the fields of a note model.
package mapper

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starford/mdcards/internal/apperr"
	"github.com/starford/mdcards/internal/models"
	"github.com/starford/mdcards/internal/parser"
	"github.com/starford/mdcards/internal/schema"
)

// Card is a mapped card block, ready for deck resolution and assembly.
type Card struct {
	Source string // scan-root-relative file path
	Block  int
	Line   int

	Fields []string // aligned with the model's field order
	Tags   []string
	Deck   string // explicit deck override, empty when none
	Assets []AssetRef

	DeckPath []string // filled in by the deck resolver
}

// Renderer converts a field value before it is stored, e.g. markdown to HTML.
type Renderer interface {
	Render(src string) (string, error)
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithRenderer renders every text field through r after image rewriting.
func WithRenderer(r Renderer) Option {
	return func(m *Mapper) {
		m.render = r
	}
}

// Mapper applies a model's bindings to payloads. It holds no mutable state
// and is safe for concurrent use.
type Mapper struct {
	model  *schema.Model
	render Renderer
}

// New creates a mapper for model.
func New(model *schema.Model, opts ...Option) *Mapper {
	m := &Mapper{model: model}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map builds the field values of one card. Fields with no value in p are
// empty; payload keys no binding uses are ignored. meta carries the
// defaults of the card's file.
func (m *Mapper) Map(file models.SourceFile, p *parser.Payload, meta parser.FileMeta) (*Card, error) {
	card := &Card{
		Source: file.Path,
		Tags:   NormalizeTags(meta.Tags, payloadTags(p)),
		Deck:   meta.Deck,
	}
	if v, ok := p.Get(schema.KeyDeck); ok && strings.TrimSpace(v.String()) != "" {
		card.Deck = strings.TrimSpace(v.String())
	}

	dir := filepath.Dir(file.AbsPath)
	bindings := m.model.Bindings()
	card.Fields = make([]string, len(bindings))

	for i, b := range bindings {
		switch b.Role {
		case schema.RoleText:
			value, refs := RewriteImages(firstValue(p, b.Keys), dir)
			card.Assets = appendRefs(card.Assets, refs)
			if m.render != nil && value != "" {
				rendered, err := m.render.Render(value)
				if err != nil {
					return nil, fmt.Errorf("field %s: %w", b.Field, err)
				}
				value = rendered
			}
			card.Fields[i] = value
		case schema.RoleTags:
			card.Fields[i] = strings.Join(card.Tags, " ")
		case schema.RoleProvenance:
			card.Fields[i] = file.Path
		}
	}

	if len(card.Fields) > 0 && strings.TrimSpace(card.Fields[0]) == "" {
		return nil, fmt.Errorf("field %s: %w", m.model.Fields[0], apperr.ErrEmptySortField)
	}
	return card, nil
}

func firstValue(p *parser.Payload, keys []string) string {
	for _, k := range keys {
		if v, ok := p.Get(k); ok {
			return v.String()
		}
	}
	return ""
}

func payloadTags(p *parser.Payload) []string {
	v, ok := p.Get(schema.KeyTags)
	if !ok {
		return nil
	}
	if v.IsList {
		return v.List
	}
	return parser.SplitTags(v.Scalar)
}

// NormalizeTags merges tag groups in order: each tag is trimmed, loses a
// leading '#', has inner whitespace replaced by '_', and is kept only the
// first time it appears.
func NormalizeTags(groups ...[]string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, g := range groups {
		for _, t := range g {
			t = strings.TrimPrefix(strings.TrimSpace(t), "#")
			t = strings.Join(strings.Fields(t), "_")
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func appendRefs(dst, refs []AssetRef) []AssetRef {
outer:
	for _, r := range refs {
		for _, d := range dst {
			if d.Path == r.Path {
				continue outer
			}
		}
		dst = append(dst, r)
	}
	return dst
}
