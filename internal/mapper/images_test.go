package mapper

import (
	"path/filepath"
	"testing"
)

func TestRewriteImages_Markdown(t *testing.T) {
	dir := filepath.FromSlash("/notes/topic")
	out, refs := RewriteImages(`See ![a "graph"](figs/graph.png "Title").`, dir)

	if want := `See <img src="graph.png" alt="a &#34;graph&#34;">.`; out != want {
		t.Fatalf("out = %q, want %q", out, want)
	}
	if len(refs) != 1 {
		t.Fatalf("refs = %+v, want 1", refs)
	}
	if want := (AssetRef{Path: filepath.Join(dir, "figs", "graph.png"), Name: "graph.png"}); refs[0] != want {
		t.Fatalf("ref = %+v, want %+v", refs[0], want)
	}
}

func TestRewriteImages_HTML(t *testing.T) {
	out, refs := RewriteImages(`<IMG class="x" SRC='pics/cat.gif' width=10>`, filepath.FromSlash("/notes"))

	if want := `<IMG class="x" SRC='cat.gif' width=10>`; out != want {
		t.Fatalf("out = %q, want %q", out, want)
	}
	if len(refs) != 1 || refs[0].Name != "cat.gif" {
		t.Fatalf("refs = %+v", refs)
	}
}

func TestRewriteImages_RemoteUntouched(t *testing.T) {
	for _, in := range []string{
		`<img src="https://example.com/a.png">`,
		`<img src="//cdn.example.com/a.png">`,
		`![x](http://example.com/b.png)`,
		`<img src="data:image/png;base64,AAAA">`,
	} {
		out, refs := RewriteImages(in, "/notes")
		if out != in || len(refs) != 0 {
			t.Errorf("RewriteImages(%q) = %q, %+v", in, out, refs)
		}
	}
}

func TestRewriteImages_EscapedPathWithQuery(t *testing.T) {
	dir := filepath.FromSlash("/notes")
	out, refs := RewriteImages(`![p](my%20pic.png?v=2#top)`, dir)

	if want := `<img src="my pic.png" alt="p">`; out != want {
		t.Fatalf("out = %q, want %q", out, want)
	}
	if len(refs) != 1 || refs[0].Path != filepath.Join(dir, "my pic.png") {
		t.Fatalf("refs = %+v", refs)
	}
}

func TestRewriteImages_NoImages(t *testing.T) {
	in := "plain text with ![ but no image"
	out, refs := RewriteImages(in, "/notes")
	if out != in {
		t.Fatalf("out = %q, want input unchanged", out)
	}
	if refs != nil {
		t.Fatalf("refs = %+v, want nil", refs)
	}
}

func TestIsRemote(t *testing.T) {
	cases := map[string]bool{
		"HTTPS://x":     true,
		"ftp://x":       true,
		"C:/pics/a.png": false,
		"pics/a.png":    false,
		"a b:c.png":     false,
	}
	for in, want := range cases {
		if got := isRemote(in); got != want {
			t.Errorf("isRemote(%q) = %v, want %v", in, got, want)
		}
	}
}
