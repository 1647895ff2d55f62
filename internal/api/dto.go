package api

import (
	"github.com/starford/mdcards/internal/deckservice"
)

// DeckItem is a deck in a list response (aliased from the domain layer).
type DeckItem = deckservice.DeckItem

// DeckDetail is a deck with the notes assigned directly to it.
type DeckDetail = deckservice.DeckDetail

// NoteView is the full note response type.
type NoteView = deckservice.NoteView

// BuildStatus describes the latest build.
type BuildStatus = deckservice.Status

// DeckListResponse wraps deck listings.
type DeckListResponse struct {
	Decks []DeckItem `json:"decks" validate:"required"`
}

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []NoteView `json:"notes" validate:"required"`
	Total int        `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []NoteView `json:"results" validate:"required"`
}
