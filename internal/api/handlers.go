package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mdcards/internal/deckservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *deckservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *deckservice.Service) *Handler {
	return &Handler{svc: svc}
}

// deckName extracts the deck name from the URL (everything after /api/decks/).
// Supports encoded separators from clients (e.g. notes%3A%3Apy).
func deckName(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListDecks handles GET /api/decks.
//
//	@Summary		List every deck of the latest build
//	@Tags			decks
//	@Produce		json
//	@Success		200	{object}	DeckListResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/decks [get]
func (h *Handler) ListDecks(w http.ResponseWriter, r *http.Request) {
	decks, err := h.svc.Decks(r.Context())
	if err != nil {
		writeServiceError(w, "list decks", err)
		return
	}
	writeJSON(w, http.StatusOK, DeckListResponse{Decks: decks})
}

// GetDeck handles GET /api/decks/*.
//
//	@Summary		Get a deck with its notes
//	@Tags			decks
//	@Produce		json
//	@Param			name	path		string	true	"Deck name, e.g. notes::py"
//	@Success		200		{object}	DeckDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/decks/{name} [get]
func (h *Handler) GetDeck(w http.ResponseWriter, r *http.Request) {
	name := deckName(r)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("deck name is required"))
		return
	}
	d, err := h.svc.Deck(r.Context(), name)
	if err != nil {
		writeServiceError(w, "get deck", err, slog.String("deck", name))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes, optionally limited to a deck and its sub-decks
//	@Tags			notes
//	@Produce		json
//	@Param			deck	query		string	false	"Deck name"
//	@Param			limit	query		int		false	"Max notes"
//	@Success		200		{object}	NoteListResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	deck := q.Get("deck")

	notes, err := h.svc.Notes(r.Context(), deck, limit)
	if err != nil {
		writeServiceError(w, "list notes", err, slog.String("deck", deck))
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: len(notes)})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note by its decimal ID
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note ID"
//	@Success		200	{object}	NoteView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	note, err := h.svc.Note(r.Context(), id)
	if err != nil {
		writeServiceError(w, "get note", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Search handles GET /api/search.
//
//	@Summary		Case-insensitive search across note fields and tags
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Summary handles GET /api/summary.
//
//	@Summary		Status and run summary of the latest build
//	@Tags			build
//	@Produce		json
//	@Success		200	{object}	BuildStatus
//	@Security		BearerAuth
//	@Router			/summary [get]
func (h *Handler) Summary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// Rebuild handles POST /api/rebuild.
//
//	@Summary		Recompile the notes tree
//	@Tags			build
//	@Produce		json
//	@Success		200	{object}	BuildStatus
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rebuild [post]
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Rebuild(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  err.Error(),
			"status": st,
		})
		return
	}
	writeJSON(w, http.StatusOK, st)
}
