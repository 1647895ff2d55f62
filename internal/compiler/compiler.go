// Package compiler runs the scan → extract → parse → map → assemble pipeline
// over a notes directory.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/mdcards/internal/apperr"
	"github.com/starford/mdcards/internal/assembler"
	"github.com/starford/mdcards/internal/deck"
	"github.com/starford/mdcards/internal/mapper"
	"github.com/starford/mdcards/internal/models"
	"github.com/starford/mdcards/internal/parser"
	"github.com/starford/mdcards/internal/schema"
	"github.com/starford/mdcards/internal/storage"
)

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// WithWorkers bounds the number of files processed concurrently.
func WithWorkers(n int) Option {
	return func(c *Compiler) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithFilters sets doublestar include and exclude patterns for the scan.
func WithFilters(include, exclude []string) Option {
	return func(c *Compiler) {
		c.include = include
		c.exclude = exclude
	}
}

// WithDeckRoot names the first segment of directory-derived deck paths.
// The default is the base name of the scan root.
func WithDeckRoot(name string) Option {
	return func(c *Compiler) { c.resolver.RootName = name }
}

// WithFilenameDecks appends the file name to directory-derived deck paths.
func WithFilenameDecks(on bool) Option {
	return func(c *Compiler) { c.resolver.IncludeFilename = on }
}

// WithMissingPolicy sets what happens to cards with missing images.
func WithMissingPolicy(p assembler.MissingPolicy) Option {
	return func(c *Compiler) { c.missing = p }
}

// WithRenderer renders text fields, e.g. with mapper.NewMarkdown.
func WithRenderer(r mapper.Renderer) Option {
	return func(c *Compiler) { c.renderer = r }
}

// WithVerbose logs every skipped block at warn level.
func WithVerbose(on bool) Option {
	return func(c *Compiler) { c.verbose = on }
}

// Compiler compiles notes directories against one model.
type Compiler struct {
	model    *schema.Model
	mapper   *mapper.Mapper
	resolver deck.Resolver
	logger   *slog.Logger
	workers  int
	include  []string
	exclude  []string
	missing  assembler.MissingPolicy
	renderer mapper.Renderer
	verbose  bool
}

// New creates a compiler for an already validated model.
func New(model *schema.Model, opts ...Option) *Compiler {
	c := &Compiler{
		model:   model,
		logger:  slog.Default(),
		workers: runtime.NumCPU(),
		missing: assembler.MissingSkip,
	}
	for _, opt := range opts {
		opt(c)
	}
	var mopts []mapper.Option
	if c.renderer != nil {
		mopts = append(mopts, mapper.WithRenderer(c.renderer))
	}
	c.mapper = mapper.New(model, mopts...)
	return c
}

// Result is the outcome of one compilation.
type Result struct {
	Graph   *models.Graph
	Summary Summary
}

// fileResult is what one worker produces for one file.
type fileResult struct {
	blocks int
	cards  []*mapper.Card
	skips  []Skip
}

// Compile scans root and builds the note/deck graph. Per-block problems are
// reported in the summary and do not fail the run. It returns
// apperr.ErrNoCards, together with the result, when nothing was assembled.
func (c *Compiler) Compile(ctx context.Context, root string) (*Result, error) {
	start := time.Now()

	fsys, err := storage.NewFS(root, storage.WithInclude(c.include...), storage.WithExclude(c.exclude...))
	if err != nil {
		return nil, fmt.Errorf("compiler: open root: %w", err)
	}
	files, err := fsys.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("compiler: scan: %w", err)
	}

	resolver := c.resolver
	if resolver.RootName == "" {
		resolver.RootName = filepath.Base(fsys.Root())
	}

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.processFile(fsys, f, resolver)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}

	asm := assembler.New(c.model, assembler.WithMissingPolicy(c.missing), assembler.WithLogger(c.logger))
	sum := Summary{Files: len(files)}
	for _, r := range results {
		sum.Blocks += r.blocks
		sum.Skipped = append(sum.Skipped, r.skips...)
		for _, card := range r.cards {
			warnings, err := asm.Add(card)
			for _, w := range warnings {
				sum.Warnings = append(sum.Warnings, skipFor(card, w))
			}
			if err != nil {
				sum.Skipped = append(sum.Skipped, skipFor(card, err))
			}
		}
	}

	graph := asm.Graph()
	sum.Notes = graph.NoteCount()
	sum.Decks = len(graph.Decks)
	sum.Assets = len(graph.Assets)
	sum.Duration = time.Since(start)
	c.report(sum)

	res := &Result{Graph: graph, Summary: sum}
	if sum.Notes == 0 {
		return res, apperr.ErrNoCards
	}
	return res, nil
}

func (c *Compiler) processFile(fsys *storage.FS, f models.SourceFile, resolver deck.Resolver) fileResult {
	var r fileResult

	data, err := fsys.Read(f.Path)
	if err != nil {
		r.skips = append(r.skips, Skip{File: f.Path, Reason: err})
		return r
	}
	meta := parser.ParseFrontmatter(data)

	if meta.Deck == "" {
		for _, seg := range strings.Split(f.Path, "/") {
			if deck.NeedsEscape(seg) {
				c.logger.Debug("deck segment escaped",
					slog.String("file", f.Path),
					slog.String("segment", seg),
				)
			}
		}
	}

	for blk, err := range parser.Blocks(data) {
		if err != nil {
			var (
				ute *apperr.UnterminatedBlockError
				ufe *apperr.UnterminatedFenceError
			)
			switch {
			case errors.As(err, &ute):
				r.skips = append(r.skips, Skip{File: f.Path, Block: ute.Ordinal, Line: ute.Line, Reason: err})
			case errors.As(err, &ufe):
				r.skips = append(r.skips, Skip{File: f.Path, Line: ufe.Line, Reason: err})
			default:
				r.skips = append(r.skips, Skip{File: f.Path, Reason: err})
			}
			break
		}
		r.blocks++

		payload, err := parser.ParsePayload(blk.Payload)
		if err != nil {
			perr := &apperr.ParseError{File: f.Path, Ordinal: blk.Ordinal, Line: blk.Line, Err: err}
			r.skips = append(r.skips, Skip{File: f.Path, Block: blk.Ordinal, Line: blk.Line, Reason: perr})
			continue
		}

		card, err := c.mapper.Map(f, payload, meta)
		if err != nil {
			r.skips = append(r.skips, Skip{File: f.Path, Block: blk.Ordinal, Line: blk.Line, Reason: err})
			continue
		}
		card.Block = blk.Ordinal
		card.Line = blk.Line
		card.DeckPath = resolver.Resolve(f, card.Deck)
		r.cards = append(r.cards, card)
	}
	return r
}

func skipFor(card *mapper.Card, err error) Skip {
	return Skip{File: card.Source, Block: card.Block, Line: card.Line, Reason: err}
}

func (c *Compiler) report(sum Summary) {
	if c.verbose {
		for _, s := range sum.Skipped {
			c.logger.Warn("card skipped",
				slog.String("file", s.File),
				slog.Int("block", s.Block),
				slog.Int("line", s.Line),
				slog.String("kind", s.Kind()),
				slog.String("error", s.Reason.Error()),
			)
		}
		for _, s := range sum.Warnings {
			c.logger.Warn("card kept with problems",
				slog.String("file", s.File),
				slog.Int("block", s.Block),
				slog.String("error", s.Reason.Error()),
			)
		}
	}

	attrs := []any{
		slog.Int("files", sum.Files),
		slog.Int("blocks", sum.Blocks),
		slog.Int("notes", sum.Notes),
		slog.Int("decks", sum.Decks),
		slog.Int("assets", sum.Assets),
		slog.Int("skipped", len(sum.Skipped)),
		slog.Duration("took", sum.Duration),
	}
	for kind, n := range sum.SkippedByKind() {
		attrs = append(attrs, slog.Int("skipped_"+kind, n))
	}
	c.logger.Info("compile finished", attrs...)
}
