package mapper

import (
	"html"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	htmlImgRe = regexp.MustCompile(`(?is)<img\b[^>]*?\bsrc\s*=\s*(?:"([^"]*)"|'([^']*)')[^>]*>`)
	mdImgRe   = regexp.MustCompile(`!\[([^\]]*)\]\(\s*<?([^)\s>]+)>?(?:\s+(?:"[^"]*"|'[^']*'))?\s*\)`)
)

// AssetRef is a local image referenced from a field.
type AssetRef struct {
	Path string // absolute, cleaned
	Name string // name the field now refers to
}

// RewriteImages rewrites local image references in s to the flat media
// names a package uses and returns the referenced files. Both <img src>
// tags and markdown ![alt](path) images are recognised; markdown images
// become <img> tags. Relative paths resolve against dir. Remote and data:
// URLs are left alone and not returned.
func RewriteImages(s, dir string) (string, []AssetRef) {
	if !strings.Contains(s, "<img") && !strings.Contains(s, "<IMG") && !strings.Contains(s, "![") {
		return s, nil
	}
	var refs []AssetRef

	s = htmlImgRe.ReplaceAllStringFunc(s, func(tag string) string {
		m := htmlImgRe.FindStringSubmatchIndex(tag)
		start, end := m[2], m[3]
		if start < 0 {
			start, end = m[4], m[5]
		}
		ref, ok := resolveLocal(html.UnescapeString(tag[start:end]), dir)
		if !ok {
			return tag
		}
		refs = append(refs, ref)
		return tag[:start] + html.EscapeString(ref.Name) + tag[end:]
	})

	s = mdImgRe.ReplaceAllStringFunc(s, func(img string) string {
		m := mdImgRe.FindStringSubmatch(img)
		ref, ok := resolveLocal(m[2], dir)
		if !ok {
			return img
		}
		refs = append(refs, ref)
		return `<img src="` + html.EscapeString(ref.Name) + `" alt="` + html.EscapeString(m[1]) + `">`
	})

	return s, refs
}

func resolveLocal(src, dir string) (AssetRef, bool) {
	src = strings.TrimSpace(src)
	if src == "" || isRemote(src) {
		return AssetRef{}, false
	}
	p := src
	if u, err := url.Parse(src); err == nil && u.Path != "" {
		p = u.Path
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	p = filepath.FromSlash(p)
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	p = filepath.Clean(p)
	return AssetRef{Path: p, Name: filepath.Base(p)}, true
}

func isRemote(src string) bool {
	lower := strings.ToLower(src)
	if strings.HasPrefix(lower, "//") {
		return true
	}
	i := strings.Index(lower, ":")
	if i <= 1 {
		// No scheme, or a Windows drive letter.
		return false
	}
	scheme := lower[:i]
	for _, r := range scheme {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return false
		}
	}
	return true
}
