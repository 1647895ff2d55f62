// Package checksum derives the stable identifiers of notes and decks.
package checksum

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

const (
	fieldSep  = 0x1f
	deckIDMax = 1<<52 - 1
)

// Anki's base91 table, as used by genanki's guid_for.
const base91Table = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!#$%&()*+,-./:;<=>?@[]^_`{|}~"

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// NoteID hashes a model ID and the field values of a note. Equal inputs
// give equal IDs on every run and platform.
func NoteID(modelID int64, fields []string) uint64 {
	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(modelID, 10)))
	for _, f := range fields {
		h.Write([]byte{fieldSep})
		h.Write([]byte(f))
	}
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

// GUID encodes a note ID the way Anki stores note GUIDs.
func GUID(id uint64) string {
	if id == 0 {
		return base91Table[:1]
	}
	var buf []byte
	for id > 0 {
		buf = append(buf, base91Table[id%91])
		id /= 91
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// DeckID derives a deck ID from the full deck name. IDs fit in 52 bits so
// they survive a round trip through JavaScript numbers, and never collide
// with Anki's Default deck (1).
func DeckID(name string) int64 {
	sum := sha256.Sum256([]byte("deck\x1f" + name))
	id := int64(binary.BigEndian.Uint64(sum[:8]) & deckIDMax)
	if id < 2 {
		id += 2
	}
	return id
}

// FieldChecksum is Anki's duplicate-detection checksum of a sort field:
// the first 8 hex digits of its SHA-1, as an integer.
func FieldChecksum(sortField string) int64 {
	sum := sha1.Sum([]byte(sortField))
	return int64(binary.BigEndian.Uint32(sum[:4]))
}
