package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mdcards/internal/deckservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *deckservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	mh := NewMediaHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Decks.
	r.Get("/decks", h.ListDecks)
	r.Get("/decks/*", h.GetDeck)

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Get("/notes/{id}", h.GetNote)

	// Search.
	r.Get("/search", h.Search)

	// Build status and manual rebuild.
	r.Get("/summary", h.Summary)
	r.Post("/rebuild", h.Rebuild)

	// Bundled media of the latest build.
	r.Get("/media/{filename}", mh.ServeFile)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
