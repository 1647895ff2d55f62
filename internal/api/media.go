package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mdcards/internal/deckservice"
)

// MediaHandler serves the image files bundled by the latest build, under
// the names the rendered fields refer to.
type MediaHandler struct {
	svc *deckservice.Service
}

// NewMediaHandler creates a media handler backed by the deck service.
func NewMediaHandler(svc *deckservice.Service) *MediaHandler {
	return &MediaHandler{svc: svc}
}

// validName reports whether name is a plain file name (no path separators,
// no traversal).
func validName(name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return false
	}
	cleaned := filepath.Clean(name)
	return cleaned == name && cleaned != "." && cleaned != ".."
}

// ServeFile handles GET /api/media/{filename}.
func (h *MediaHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !validName(filename) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid filename"))
		return
	}
	abs, err := h.svc.Asset(r.Context(), filename)
	if err != nil {
		writeServiceError(w, "serve media", err)
		return
	}
	if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}
