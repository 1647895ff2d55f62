// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes mdcards tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mdcards/internal/deckservice"
	"github.com/starford/mdcards/internal/parser"
	"github.com/starford/mdcards/internal/schema"
	"github.com/starford/mdcards/internal/storage"
)

// CardFormatURI is the resource holding the card format contract.
const CardFormatURI = "mdcards://card-format"

const defaultLimit = 50

// Server wraps the MCP server with mdcards tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *deckservice.Service
	store storage.Provider
	model *schema.Model
}

// New creates a new MCP server with all mdcards tools registered.
func New(svc *deckservice.Service, store storage.Provider, model *schema.Model) *Server {
	s := &Server{svc: svc, store: store, model: model}

	s.mcp = server.NewMCPServer(
		"mdcards",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_decks",
		mcp.WithDescription("List every deck of the compiled notes with note counts."),
	), s.listDecks)

	s.mcp.AddTool(mcp.NewTool("list_cards",
		mcp.WithDescription("List compiled cards, optionally limited to a deck and its sub-decks."),
		mcp.WithString("deck", mcp.Description("Deck name, e.g. notes::py (empty for all)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of cards (default 50)")),
	), s.listCards)

	s.mcp.AddTool(mcp.NewTool("search_cards",
		mcp.WithDescription("Case-insensitive search through card fields and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 50)")),
	), s.searchCards)

	s.mcp.AddTool(mcp.NewTool("get_card_format",
		mcp.WithDescription("Returns the card block format contract and the payload keys "+
			"of the active note type. Call this before writing cards."),
	), s.getCardFormat)

	s.mcp.AddTool(mcp.NewTool("add_card",
		mcp.WithDescription("Append a card block to a Markdown note (created if missing) and "+
			"recompile. The card is the YAML body of the block; read the contract first via "+
			"the get_card_format tool or the "+CardFormatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the note (must end with .md)")),
		mcp.WithString("card", mcp.Required(), mcp.Description("YAML mapping, e.g. q: ...\\na: ...")),
	), s.addCard)

	// Resource: card format contract.
	s.mcp.AddResource(
		mcp.NewResource(CardFormatURI, "Card Format Contract",
			mcp.WithResourceDescription("How flashcards are written inside Markdown notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCardFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listDecks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	decks, err := s.svc.Decks(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(decks)
}

func (s *Server) listCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deck := req.GetString("deck", "")
	limit := req.GetInt("limit", defaultLimit)

	notes, err := s.svc.Notes(ctx, deck, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list cards %q: %v", deck, err)), nil
	}
	return jsonResult(notes)
}

func (s *Server) searchCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", defaultLimit))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getCardFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CardFormatContract(s.model)), nil
}

func (s *Server) readCardFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      CardFormatURI,
			MIMEType: "text/markdown",
			Text:     CardFormatContract(s.model),
		},
	}, nil
}

func (s *Server) addCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	card, err := req.RequireString("card")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !storage.IsMarkdown(path) {
		return mcp.NewToolResultError(fmt.Sprintf("not a markdown file: %s", path)), nil
	}
	if err := s.checkCard(card); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	existing, err := s.store.Read(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.store.Write(path, appendBlock(existing, card)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	st, err := s.svc.Rebuild(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("card written to %s but rebuild failed: %v", path, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added card to %s (%d notes in %d decks)",
		path, st.Summary.Notes, st.Summary.Decks)), nil
}

// checkCard rejects payloads that would be skipped by the compiler: invalid
// YAML and cards without a value for the first field.
func (s *Server) checkCard(card string) error {
	p, err := parser.ParsePayload(card)
	if err != nil {
		return fmt.Errorf("invalid card: %w", err)
	}
	first := s.model.Fields[0]
	for _, e := range p.Entries() {
		if target, ok := s.model.FieldMap.Target(e.Key); ok && target == first && strings.TrimSpace(e.Value.String()) != "" {
			return nil
		}
	}
	return fmt.Errorf("invalid card: no value for %s", first)
}

func appendBlock(existing []byte, card string) []byte {
	var b strings.Builder
	b.Write(existing)
	if len(existing) > 0 {
		if !strings.HasSuffix(string(existing), "\n") {
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	fence := fenceFor(card)
	b.WriteString(fence + parser.Tag + "\n")
	b.WriteString(strings.TrimRight(card, "\n"))
	b.WriteString("\n" + fence + "\n")
	return []byte(b.String())
}

// fenceFor returns a backtick fence longer than any backtick run in body.
func fenceFor(body string) string {
	longest, run := 0, 0
	for i := 0; i < len(body); i++ {
		if body[i] != '`' {
			run = 0
			continue
		}
		run++
		longest = max(longest, run)
	}
	return strings.Repeat("`", max(3, longest+1))
}
