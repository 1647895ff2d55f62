// Package models defines the domain types shared by the mdcards pipeline.
package models

// SourceFile is one markdown file found under the scan root.
type SourceFile struct {
	Path    string `json:"path"` // relative to the scan root, slash separated
	AbsPath string `json:"-"`
	Content []byte `json:"-"`
}

// Note is one flashcard instance with field values aligned to the model.
type Note struct {
	ID     uint64   `json:"id"`
	GUID   string   `json:"guid"`
	Fields []string `json:"fields"`
	Tags   []string `json:"tags,omitempty"`
	Deck   string   `json:"deck"`
	Source string   `json:"source"`
	Block  int      `json:"block"`
}

// Deck is a node of the deck tree. Notes holds only the notes assigned
// directly to it; ancestors of populated decks exist with no notes.
type Deck struct {
	ID    int64    `json:"id"`
	Name  string   `json:"name"`
	Path  []string `json:"path"`
	Notes []*Note  `json:"notes,omitempty"`
}

// ImageAsset is a local image referenced by at least one included note.
type ImageAsset struct {
	Path string `json:"path"` // absolute path on disk
	Name string `json:"name"` // file name inside the package
	Refs int    `json:"refs"`
}

// NoteModel is the part of the note type the package writer needs.
type NoteModel struct {
	ID        int64
	Name      string
	Fields    []string
	Templates []Template
	CSS       string
}

// Template is a card template of a note model.
type Template struct {
	Name string `json:"name"`
	QFmt string `json:"qfmt"`
	AFmt string `json:"afmt"`
	// QFields are the indexes of the fields QFmt references. A card is
	// generated when one of them is non-empty, or when there are none.
	QFields []int `json:"-"`
}

// Graph is the compiled note/deck graph handed to the package writer.
type Graph struct {
	Model  NoteModel     `json:"-"`
	Decks  []*Deck       `json:"decks"`
	Assets []*ImageAsset `json:"assets"`
}

// NoteCount returns the number of notes across all decks.
func (g *Graph) NoteCount() int {
	n := 0
	for _, d := range g.Decks {
		n += len(d.Notes)
	}
	return n
}

// Deck returns the deck with the given full name, or nil.
func (g *Graph) Deck(name string) *Deck {
	for _, d := range g.Decks {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// Notes returns every note in deck order.
func (g *Graph) Notes() []*Note {
	out := make([]*Note, 0, g.NoteCount())
	for _, d := range g.Decks {
		out = append(out, d.Notes...)
	}
	return out
}
