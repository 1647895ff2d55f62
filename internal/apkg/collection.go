package apkg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/mdcards/internal/checksum"
	"github.com/starford/mdcards/internal/models"
)

var (
	tagRe     = regexp.MustCompile(`(?s)<[^>]*>`)
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
)

// writeCollection creates the collection database at dbPath.
func writeCollection(ctx context.Context, dbPath string, g *models.Graph, now time.Time) error {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("apkg: open collection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, collectionSchemaSQL); err != nil {
		return fmt.Errorf("apkg: apply schema: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apkg: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := insertCol(ctx, tx, g, now); err != nil {
		return err
	}
	if err := insertNotes(ctx, tx, g, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apkg: commit: %w", err)
	}
	return nil
}

func insertCol(ctx context.Context, tx *sql.Tx, g *models.Graph, now time.Time) error {
	conf, err := json.Marshal(collectionConf)
	if err != nil {
		return fmt.Errorf("apkg: encode conf: %w", err)
	}
	modelsJSON, err := json.Marshal(map[string]any{
		strconv.FormatInt(g.Model.ID, 10): modelDoc(g, now),
	})
	if err != nil {
		return fmt.Errorf("apkg: encode models: %w", err)
	}
	decks, err := json.Marshal(deckDocs(g, now))
	if err != nil {
		return fmt.Errorf("apkg: encode decks: %w", err)
	}
	dconf, err := json.Marshal(deckOptions)
	if err != nil {
		return fmt.Errorf("apkg: encode deck options: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
		VALUES (1, ?, ?, ?, ?, 0, 0, 0, ?, ?, ?, ?, '{}')
	`, now.Unix(), now.UnixMilli(), now.UnixMilli(), schemaVersion,
		string(conf), string(modelsJSON), string(decks), string(dconf))
	if err != nil {
		return fmt.Errorf("apkg: insert col: %w", err)
	}
	return nil
}

func modelDoc(g *models.Graph, now time.Time) map[string]any {
	m := g.Model
	flds := make([]map[string]any, len(m.Fields))
	for i, f := range m.Fields {
		flds[i] = map[string]any{
			"name":   f,
			"ord":    i,
			"font":   "Arial",
			"size":   20,
			"media":  []string{},
			"rtl":    false,
			"sticky": false,
		}
	}
	tmpls := make([]map[string]any, len(m.Templates))
	req := make([]any, len(m.Templates))
	for i, t := range m.Templates {
		tmpls[i] = map[string]any{
			"name":  t.Name,
			"ord":   i,
			"qfmt":  t.QFmt,
			"afmt":  t.AFmt,
			"bqfmt": "",
			"bafmt": "",
			"did":   nil,
		}
		fields := t.QFields
		if fields == nil {
			fields = []int{}
		}
		kind := "any"
		if len(fields) == 0 {
			kind = "none"
		}
		req[i] = []any{i, kind, fields}
	}

	did := int64(defaultDeckID)
	if len(g.Decks) > 0 {
		did = g.Decks[0].ID
	}
	return map[string]any{
		"id":        m.ID,
		"name":      m.Name,
		"type":      0,
		"mod":       now.Unix(),
		"usn":       -1,
		"sortf":     0,
		"did":       did,
		"tmpls":     tmpls,
		"flds":      flds,
		"css":       m.CSS,
		"latexPre":  latexPre,
		"latexPost": latexPost,
		"req":       req,
		"tags":      []string{},
		"vers":      []string{},
	}
}

func deckDocs(g *models.Graph, now time.Time) map[string]any {
	out := map[string]any{
		strconv.Itoa(defaultDeckID): deckDoc(defaultDeckID, "Default", now),
	}
	for _, d := range g.Decks {
		out[strconv.FormatInt(d.ID, 10)] = deckDoc(d.ID, d.Name, now)
	}
	return out
}

func deckDoc(id int64, name string, now time.Time) map[string]any {
	return map[string]any{
		"id":        id,
		"name":      name,
		"desc":      "",
		"mod":       now.Unix(),
		"usn":       -1,
		"conf":      1,
		"dyn":       0,
		"collapsed": false,
		"extendNew": 10,
		"extendRev": 50,
		"newToday":  []int{0, 0},
		"revToday":  []int{0, 0},
		"lrnToday":  []int{0, 0},
		"timeToday": []int{0, 0},
	}
}

func insertNotes(ctx context.Context, tx *sql.Tx, g *models.Graph, now time.Time) error {
	noteStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
		VALUES (?, ?, ?, ?, -1, ?, ?, ?, ?, 0, '')
	`)
	if err != nil {
		return fmt.Errorf("apkg: prepare note insert: %w", err)
	}
	defer noteStmt.Close()

	cardStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data)
		VALUES (?, ?, ?, ?, ?, -1, 0, 0, ?, 0, 0, 0, 0, 0, 0, 0, 0, '')
	`)
	if err != nil {
		return fmt.Errorf("apkg: prepare card insert: %w", err)
	}
	defer cardStmt.Close()

	// Row IDs are creation timestamps in milliseconds, as Anki assigns them.
	base := now.UnixMilli()
	noteID, cardID := base, base
	due := 0

	for _, d := range g.Decks {
		for _, n := range d.Notes {
			sfld := SortField(n.Fields)
			_, err := noteStmt.ExecContext(ctx, noteID, n.GUID, g.Model.ID, now.Unix(),
				joinTags(n.Tags), strings.Join(n.Fields, fieldSep), sfld, checksum.FieldChecksum(sfld))
			if err != nil {
				return fmt.Errorf("apkg: insert note %s: %w", n.GUID, err)
			}

			due++
			for ord, t := range g.Model.Templates {
				if !generates(t, n.Fields) {
					continue
				}
				if _, err := cardStmt.ExecContext(ctx, cardID, noteID, d.ID, ord, now.Unix(), due); err != nil {
					return fmt.Errorf("apkg: insert card %s/%d: %w", n.GUID, ord, err)
				}
				cardID++
			}
			noteID++
		}
	}
	return nil
}

// generates reports whether template t yields a card for fields.
func generates(t models.Template, fields []string) bool {
	if len(t.QFields) == 0 {
		return true
	}
	for _, i := range t.QFields {
		if i >= 0 && i < len(fields) && strings.TrimSpace(fields[i]) != "" {
			return true
		}
	}
	return false
}

// SortField is the first field with markup removed, as Anki indexes it.
func SortField(fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	s := commentRe.ReplaceAllString(fields[0], "")
	s = tagRe.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}

func joinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " " + strings.Join(tags, " ") + " "
}
