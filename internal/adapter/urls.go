package adapter

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

var assetExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true, ".avif": true,
	".mp4": true, ".webm": true, ".mov": true, ".m3u8": true, ".ts": true,
}

// Resolver rewrites relative URLs against a source's hosts. Asset paths go to the CDN when
// one is configured; everything else goes to the base host.
type Resolver struct {
	base *url.URL
	cdn  *url.URL
}

// NewResolver builds a Resolver. Unparseable hosts are ignored.
func NewResolver(baseURL, cdnURL string) Resolver {
	return Resolver{base: absolute(baseURL), cdn: absolute(cdnURL)}
}

// Resolve returns an absolute URL for raw, or "" when raw is empty or inline data.
func (r Resolver) Resolve(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "javascript:") || raw == "#" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return raw
	}
	host := r.base
	if r.cdn != nil && assetExtensions[strings.ToLower(path.Ext(ref.Path))] {
		host = r.cdn
	}
	if host == nil {
		return raw
	}
	if strings.HasPrefix(raw, "//") {
		ref.Scheme = host.Scheme
		return ref.String()
	}
	return host.ResolveReference(ref).String()
}

// Canonical resolves raw and strips volatile parts so it can serve as a key.
func (r Resolver) Canonical(raw string) string {
	resolved := r.Resolve(raw)
	if resolved == "" {
		return ""
	}
	return ingest.NormalizeURL(resolved)
}

func absolute(raw string) *url.URL {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return nil
	}
	return u
}

var postPathPattern = regexp.MustCompile(`/(?:post|posts|p|video|videos|v|watch|media)/([A-Za-z0-9_-]+)`)

// idsFromURL derives post and media ids from a media page URL such as /post/123/456 or
// /video/abc.
func idsFromURL(raw string) (postID, mediaID string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", ""
	}
	m := postPathPattern.FindStringSubmatchIndex(u.Path)
	if m == nil {
		return "", ""
	}
	postID = u.Path[m[2]:m[3]]
	rest := strings.Trim(u.Path[m[1]:], "/")
	if rest != "" {
		mediaID = strings.Split(rest, "/")[0]
	}
	if mediaID == "" {
		mediaID = u.Query().Get("media")
	}
	return postID, mediaID
}

// assetID is the file name of an asset URL without extension and size or blur suffixes.
func assetID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	for _, suffix := range []string{"_blur", "-blur", "_thumb", "-thumb", "_poster", "_small", "_preview"} {
		base = strings.TrimSuffix(base, suffix)
	}
	return base
}
