// Package assembler turns mapped cards into the note/deck graph.
package assembler

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"

	"github.com/starford/mdcards/internal/apperr"
	"github.com/starford/mdcards/internal/checksum"
	"github.com/starford/mdcards/internal/deck"
	"github.com/starford/mdcards/internal/mapper"
	"github.com/starford/mdcards/internal/models"
	"github.com/starford/mdcards/internal/schema"
)

// MissingPolicy decides what happens to a card that references an image
// which does not exist.
type MissingPolicy string

const (
	// MissingSkip leaves the card out of the graph.
	MissingSkip MissingPolicy = "skip"
	// MissingKeep keeps the card with its broken reference; nothing is bundled.
	MissingKeep MissingPolicy = "keep"
)

// StatFunc reports file info for an asset path.
type StatFunc func(path string) (fs.FileInfo, error)

// Option configures an Assembler.
type Option func(*Assembler)

// WithMissingPolicy sets the missing image policy. The default is MissingSkip.
func WithMissingPolicy(p MissingPolicy) Option {
	return func(a *Assembler) {
		a.policy = p
	}
}

// WithStat replaces os.Stat for asset checks.
func WithStat(fn StatFunc) Option {
	return func(a *Assembler) {
		a.stat = fn
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		a.logger = l
	}
}

// Assembler accumulates cards in the order they are added. It is not safe
// for concurrent use; callers add cards from a single goroutine so the
// result does not depend on scheduling.
type Assembler struct {
	model  *schema.Model
	policy MissingPolicy
	stat   StatFunc
	logger *slog.Logger

	decks  map[string]*models.Deck
	seen   map[uint64]string
	assets map[string]*models.ImageAsset
}

// New creates an assembler for notes of model.
func New(model *schema.Model, opts ...Option) *Assembler {
	a := &Assembler{
		model:  model,
		policy: MissingSkip,
		stat:   os.Stat,
		logger: slog.Default(),
		decks:  make(map[string]*models.Deck),
		seen:   make(map[uint64]string),
		assets: make(map[string]*models.ImageAsset),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add places c in its deck. A non-nil error means the card was left out.
// Warnings describe problems with a card that was still included, such as a
// missing image under MissingKeep.
func (a *Assembler) Add(c *mapper.Card) (warnings []error, err error) {
	if len(c.DeckPath) == 0 {
		return nil, errors.New("card has no deck")
	}

	id := checksum.NoteID(a.model.ID, c.Fields)
	guid := checksum.GUID(id)
	if first, dup := a.seen[id]; dup {
		return nil, &apperr.DuplicateNoteError{GUID: guid, First: first}
	}

	var bundle []mapper.AssetRef
	claimed := make(map[string]string, len(c.Assets))
	for _, ref := range c.Assets {
		if !a.exists(ref.Path) {
			missing := &apperr.MissingAssetError{Path: ref.Path}
			if a.policy != MissingKeep {
				return nil, missing
			}
			warnings = append(warnings, missing)
			continue
		}
		if existing, ok := a.assets[ref.Name]; ok && existing.Path != ref.Path {
			return nil, &apperr.MediaConflictError{Name: ref.Name, Path: ref.Path, Existing: existing.Path}
		}
		if other, ok := claimed[ref.Name]; ok && other != ref.Path {
			return nil, &apperr.MediaConflictError{Name: ref.Name, Path: ref.Path, Existing: other}
		}
		claimed[ref.Name] = ref.Path
		bundle = append(bundle, ref)
	}

	for _, ref := range bundle {
		asset, ok := a.assets[ref.Name]
		if !ok {
			asset = &models.ImageAsset{Path: ref.Path, Name: ref.Name}
			a.assets[ref.Name] = asset
		}
		asset.Refs++
	}

	d := a.deck(c.DeckPath, c.Deck == "")
	d.Notes = append(d.Notes, &models.Note{
		ID:     id,
		GUID:   guid,
		Fields: c.Fields,
		Tags:   c.Tags,
		Deck:   d.Name,
		Source: c.Source,
		Block:  c.Block,
	})
	a.seen[id] = fmt.Sprintf("%s#%d", c.Source, c.Block)
	return warnings, nil
}

func (a *Assembler) exists(path string) bool {
	info, err := a.stat(path)
	return err == nil && !info.IsDir()
}

// deck returns the deck for path, creating it as needed. Directory decks
// also get their ancestors; Anki creates the parents of explicit decks on
// import.
func (a *Assembler) deck(path []string, directory bool) *models.Deck {
	if directory {
		for _, anc := range deck.Ancestors(path) {
			a.ensure(anc)
		}
	}
	return a.ensure(path)
}

func (a *Assembler) ensure(path []string) *models.Deck {
	name := deck.Join(path)
	if d, ok := a.decks[name]; ok {
		return d
	}
	d := &models.Deck{
		ID:   checksum.DeckID(name),
		Name: name,
		Path: append([]string(nil), path...),
	}
	a.decks[name] = d
	a.logger.Debug("deck created", slog.String("deck", name))
	return d
}

// Len returns the number of notes assembled so far.
func (a *Assembler) Len() int {
	return len(a.seen)
}

// Graph returns the assembled graph. Decks and assets are sorted by name;
// notes keep the order they were added in.
func (a *Assembler) Graph() *models.Graph {
	g := &models.Graph{Model: a.model.NoteModel()}
	for _, d := range a.decks {
		g.Decks = append(g.Decks, d)
	}
	sort.Slice(g.Decks, func(i, j int) bool { return g.Decks[i].Name < g.Decks[j].Name })

	for _, asset := range a.assets {
		g.Assets = append(g.Assets, asset)
	}
	sort.Slice(g.Assets, func(i, j int) bool { return g.Assets[i].Name < g.Assets[j].Name })
	return g
}
