package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/mdcards/internal/compiler"
	"github.com/starford/mdcards/internal/deckservice"
	"github.com/starford/mdcards/internal/schema"
	"github.com/starford/mdcards/internal/testutil"
)

// testEnv sets up a temp notes tree, a deck service, and a router for testing.
// An empty authToken means disabled mode. build=false leaves the service
// without a graph.
func testEnv(t *testing.T, authToken string, build bool) (*deckservice.Service, http.Handler, string) {
	t.Helper()

	dir, _ := testutil.TestNotes(t, map[string]string{
		"py/basics.md":  testutil.Card(`q: "What is a list? <img src='chart.png'>"`, `a: "A mutable sequence"`, "tags: [python]"),
		"py/chart.png":  "PNGDATA",
		"py/history.md": testutil.Card(`deck: "Python::History"`, `q: "Who created Python?"`, `a: "Guido"`),
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := compiler.New(schema.Default(), compiler.WithLogger(logger))
	svc := deckservice.New(func(ctx context.Context) (*compiler.Result, error) {
		return c.Compile(ctx, dir)
	}, deckservice.WithLogger(logger))
	if build {
		if _, err := svc.Rebuild(context.Background()); err != nil {
			t.Fatalf("Rebuild: %v", err)
		}
	}

	router := NewRouter(svc, authToken != "", authToken, nil)
	return svc, router, dir
}

func do(t *testing.T, router http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListDecks(t *testing.T) {
	_, router, _ := testEnv(t, "", true)

	w := do(t, router, http.MethodGet, "/decks")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp DeckListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, d := range resp.Decks {
		names = append(names, d.Name)
	}
	want := []string{"Python::History", "notes", "notes::py"}
	if len(names) != len(want) {
		t.Fatalf("decks = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("decks[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestGetDeckAndNote(t *testing.T) {
	_, router, _ := testEnv(t, "", true)

	w := do(t, router, http.MethodGet, "/decks/"+url.PathEscape("notes::py"))
	if w.Code != http.StatusOK {
		t.Fatalf("get deck = %d, body = %s", w.Code, w.Body.String())
	}
	var deck DeckDetail
	_ = json.Unmarshal(w.Body.Bytes(), &deck)
	if len(deck.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(deck.Items))
	}
	id := deck.Items[0].ID

	w = do(t, router, http.MethodGet, "/notes/"+id)
	if w.Code != http.StatusOK {
		t.Fatalf("get note = %d", w.Code)
	}
	var note NoteView
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Source != "py/basics.md" {
		t.Errorf("source = %q", note.Source)
	}
	if len(note.Tags) != 1 || note.Tags[0] != "python" {
		t.Errorf("tags = %v", note.Tags)
	}
}

func TestGetDeck_RawSeparator(t *testing.T) {
	_, router, _ := testEnv(t, "", true)

	w := do(t, router, http.MethodGet, "/decks/Python::History")
	if w.Code != http.StatusOK {
		t.Fatalf("get deck = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestGetDeck_NotFound(t *testing.T) {
	_, router, _ := testEnv(t, "", true)

	if w := do(t, router, http.MethodGet, "/decks/nope"); w.Code != http.StatusNotFound {
		t.Errorf("missing deck = %d, want 404", w.Code)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, router, _ := testEnv(t, "", true)

	if w := do(t, router, http.MethodGet, "/notes/12345"); w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestListNotes(t *testing.T) {
	_, router, _ := testEnv(t, "", true)

	w := do(t, router, http.MethodGet, "/notes?deck=notes")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}

	w = do(t, router, http.MethodGet, "/notes?limit=1")
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("limited total = %d, want 1", resp.Total)
	}

	if w := do(t, router, http.MethodGet, "/notes?deck=nope"); w.Code != http.StatusNotFound {
		t.Errorf("unknown deck = %d, want 404", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router, _ := testEnv(t, "", true)

	w := do(t, router, http.MethodGet, "/search?q=guido")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Deck != "Python::History" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router, _ := testEnv(t, "", true)

	if w := do(t, router, http.MethodGet, "/search"); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestNotReady(t *testing.T) {
	_, router, _ := testEnv(t, "", false)

	for _, target := range []string{"/decks", "/notes", "/search?q=x", "/media/chart.png"} {
		if w := do(t, router, http.MethodGet, target); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s before build = %d, want 503", target, w.Code)
		}
	}
}

func TestSummaryAndRebuild(t *testing.T) {
	_, router, dir := testEnv(t, "", false)

	w := do(t, router, http.MethodPost, "/rebuild")
	if w.Code != http.StatusOK {
		t.Fatalf("rebuild = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/summary")
	var st BuildStatus
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if !st.Ready || st.Summary.Notes != 2 || st.Summary.Assets != 1 {
		t.Errorf("status = %+v", st)
	}

	// Breaking the tree fails the rebuild but keeps the previous graph.
	if err := os.RemoveAll(filepath.Join(dir, "py")); err != nil {
		t.Fatal(err)
	}
	w = do(t, router, http.MethodPost, "/rebuild")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("failed rebuild = %d, want 422", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/decks"); w.Code != http.StatusOK {
		t.Errorf("decks after failed rebuild = %d, want 200", w.Code)
	}
}

func TestServeMedia(t *testing.T) {
	_, router, _ := testEnv(t, "", true)

	w := do(t, router, http.MethodGet, "/media/chart.png")
	if w.Code != http.StatusOK {
		t.Fatalf("media = %d", w.Code)
	}
	if w.Body.String() != "PNGDATA" {
		t.Errorf("body = %q", w.Body.String())
	}

	if w := do(t, router, http.MethodGet, "/media/other.png"); w.Code != http.StatusNotFound {
		t.Errorf("unknown media = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/media/.."); w.Code != http.StatusBadRequest {
		t.Errorf("traversal = %d, want 400", w.Code)
	}
}

func TestValidName(t *testing.T) {
	cases := map[string]bool{
		"a.png":   true,
		"":        false,
		"..":      false,
		"a/b.png": false,
		`a\b.png`: false,
	}
	for name, want := range cases {
		if got := validName(name); got != want {
			t.Errorf("validName(%q) = %v, want %v", name, got, want)
		}
	}
}

// Auth middleware tests.

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123", true)

	req := httptest.NewRequest(http.MethodGet, "/decks", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123", true)

	if w := do(t, router, http.MethodGet, "/decks"); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123", true)

	req := httptest.NewRequest(http.MethodGet, "/decks", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	// No token → 401.
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	router := testEnvWithSSE(t, false, "")

	// Disabled mode → should not 401. SSE handler will write 200 and block,
	// so we cancel the context after a short time.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// testEnvWithSSE creates a router with a dummy SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()

	svc, _, _ := testEnv(t, "", false)

	// Minimal SSE handler stub: writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})

	return NewRouter(svc, authEnabled, token, sseHandler)
}
