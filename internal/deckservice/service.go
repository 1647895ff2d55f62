// Package deckservice holds the latest compiled graph for the preview server
// and the MCP tools, and serializes rebuilds.
package deckservice

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/starford/mdcards/internal/apperr"
	"github.com/starford/mdcards/internal/checksum"
	"github.com/starford/mdcards/internal/compiler"
	"github.com/starford/mdcards/internal/deck"
	"github.com/starford/mdcards/internal/models"
)

// BuildFunc compiles the notes tree.
type BuildFunc func(ctx context.Context) (*compiler.Result, error)

// PublishFunc writes a successful build somewhere, e.g. an .apkg file.
type PublishFunc func(ctx context.Context, g *models.Graph) error

// Status describes the latest build.
type Status struct {
	Ready    bool             `json:"ready"`
	BuiltAt  time.Time        `json:"built_at,omitempty"`
	Checksum string           `json:"checksum,omitempty"`
	Summary  compiler.Summary `json:"summary"`
	Error    string           `json:"error,omitempty"`
}

// DeckItem is a deck in a list response.
type DeckItem struct {
	ID    int64    `json:"id"`
	Name  string   `json:"name"`
	Path  []string `json:"path"`
	Notes int      `json:"notes"`
	Total int      `json:"total"` // including sub-decks
}

// FieldValue is one named field of a note.
type FieldValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NoteView is the external representation of a note.
type NoteView struct {
	ID     string       `json:"id"`
	GUID   string       `json:"guid"`
	Deck   string       `json:"deck"`
	Source string       `json:"source"`
	Block  int          `json:"block"`
	Tags   []string     `json:"tags"`
	Fields []FieldValue `json:"fields"`
}

// DeckDetail is a deck with its notes.
type DeckDetail struct {
	DeckItem
	Items []NoteView `json:"items"`
}

// Option configures a Service.
type Option func(*Service)

// WithPublish runs fn after every successful build.
func WithPublish(fn PublishFunc) Option {
	return func(s *Service) { s.publish = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// OnBuild registers a callback invoked with the status after every build.
func OnBuild(fn func(Status)) Option {
	return func(s *Service) { s.onBuild = append(s.onBuild, fn) }
}

// Service serves read access to the latest graph. Reads never block on a
// running build; the previous graph stays visible until the next one is
// complete.
type Service struct {
	build   BuildFunc
	publish PublishFunc
	logger  *slog.Logger
	onBuild []func(Status)

	buildMu sync.Mutex

	mu     sync.RWMutex
	graph  *models.Graph
	status Status
}

// New creates a service. Nothing is built until Rebuild is called.
func New(build BuildFunc, opts ...Option) *Service {
	s := &Service{build: build, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rebuild compiles the tree and, on success, swaps in the new graph and
// publishes it. A failed build keeps the previous graph.
func (s *Service) Rebuild(ctx context.Context) (Status, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	res, err := s.build(ctx)
	if err == nil && s.publish != nil {
		err = s.publish(ctx, res.Graph)
	}

	s.mu.Lock()
	if err != nil {
		s.status.Error = err.Error()
		if res != nil {
			s.status.Summary = res.Summary
		}
	} else {
		s.graph = res.Graph
		s.status = Status{
			Ready:    true,
			BuiltAt:  time.Now(),
			Checksum: graphChecksum(res.Graph),
			Summary:  res.Summary,
		}
	}
	st := s.status
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("rebuild failed", slog.String("error", err.Error()))
	} else {
		s.logger.Info("rebuild complete",
			slog.Int("notes", st.Summary.Notes),
			slog.Int("decks", st.Summary.Decks),
			slog.String("checksum", st.Checksum))
	}
	for _, fn := range s.onBuild {
		fn(st)
	}
	return st, err
}

// Status returns the latest build status.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Ready reports whether a graph is available.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph != nil
}

func (s *Service) current() (*models.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		return nil, apperr.ErrNotReady
	}
	return s.graph, nil
}

// Decks lists every deck, sorted by name.
func (s *Service) Decks(_ context.Context) ([]DeckItem, error) {
	g, err := s.current()
	if err != nil {
		return nil, err
	}
	items := make([]DeckItem, len(g.Decks))
	for i, d := range g.Decks {
		items[i] = deckItem(g, d)
	}
	return items, nil
}

// Deck returns a deck and the notes assigned directly to it.
func (s *Service) Deck(_ context.Context, name string) (*DeckDetail, error) {
	g, err := s.current()
	if err != nil {
		return nil, err
	}
	d := g.Deck(name)
	if d == nil {
		return nil, apperr.ErrNotFound
	}
	out := &DeckDetail{DeckItem: deckItem(g, d), Items: make([]NoteView, len(d.Notes))}
	for i, n := range d.Notes {
		out.Items[i] = view(g, n)
	}
	return out, nil
}

// Notes lists notes, optionally limited to a deck and its sub-decks.
func (s *Service) Notes(_ context.Context, deckName string, limit int) ([]NoteView, error) {
	g, err := s.current()
	if err != nil {
		return nil, err
	}
	if deckName != "" && g.Deck(deckName) == nil {
		return nil, apperr.ErrNotFound
	}
	var out []NoteView
	for _, n := range g.Notes() {
		if deckName != "" && !within(n.Deck, deckName) {
			continue
		}
		out = append(out, view(g, n))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return nonNilSlice(out), nil
}

// Note returns the note with the given decimal ID.
func (s *Service) Note(_ context.Context, id string) (*NoteView, error) {
	g, err := s.current()
	if err != nil {
		return nil, err
	}
	want, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, apperr.ErrNotFound
	}
	for _, n := range g.Notes() {
		if n.ID == want {
			v := view(g, n)
			return &v, nil
		}
	}
	return nil, apperr.ErrNotFound
}

// Search returns notes whose fields or tags contain query, case-insensitively.
func (s *Service) Search(_ context.Context, query string, limit int) ([]NoteView, error) {
	g, err := s.current()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []NoteView{}, nil
	}
	var out []NoteView
	for _, n := range g.Notes() {
		if !matches(n, q) {
			continue
		}
		out = append(out, view(g, n))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return nonNilSlice(out), nil
}

// Model returns the note model of the latest graph.
func (s *Service) Model(_ context.Context) (models.NoteModel, error) {
	g, err := s.current()
	if err != nil {
		return models.NoteModel{}, err
	}
	return g.Model, nil
}

// Asset returns the source path of the media file bundled under name.
func (s *Service) Asset(_ context.Context, name string) (string, error) {
	g, err := s.current()
	if err != nil {
		return "", err
	}
	for _, a := range g.Assets {
		if a.Name == name {
			return a.Path, nil
		}
	}
	return "", apperr.ErrNotFound
}

func matches(n *models.Note, q string) bool {
	for _, f := range n.Fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	for _, t := range n.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

func within(name, parent string) bool {
	return name == parent || strings.HasPrefix(name, parent+deck.Separator)
}

func deckItem(g *models.Graph, d *models.Deck) DeckItem {
	total := 0
	for _, other := range g.Decks {
		if within(other.Name, d.Name) {
			total += len(other.Notes)
		}
	}
	return DeckItem{ID: d.ID, Name: d.Name, Path: d.Path, Notes: len(d.Notes), Total: total}
}

func view(g *models.Graph, n *models.Note) NoteView {
	fields := make([]FieldValue, len(n.Fields))
	for i, v := range n.Fields {
		name := strconv.Itoa(i)
		if i < len(g.Model.Fields) {
			name = g.Model.Fields[i]
		}
		fields[i] = FieldValue{Name: name, Value: v}
	}
	return NoteView{
		ID:     strconv.FormatUint(n.ID, 10),
		GUID:   n.GUID,
		Deck:   n.Deck,
		Source: n.Source,
		Block:  n.Block,
		Tags:   nonNilSlice(n.Tags),
		Fields: fields,
	}
}

// graphChecksum identifies the content of a graph: note GUIDs with their
// decks, and bundled media.
func graphChecksum(g *models.Graph) string {
	var parts []string
	for _, n := range g.Notes() {
		parts = append(parts, n.Deck+"\x1f"+n.GUID)
	}
	for _, a := range g.Assets {
		parts = append(parts, "media\x1f"+a.Name+"\x1f"+a.Path)
	}
	sort.Strings(parts)
	return checksum.Sum([]byte(strings.Join(parts, "\n")))
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
