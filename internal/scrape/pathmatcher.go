package scrape

import (
	"net/url"
	"path"
	"strings"
)

// DefaultExcludePaths skip pages that never carry company contact details.
var DefaultExcludePaths = []string{
	"/blog/*",
	"/news/*",
	"/press/*",
	"/careers/*",
	"/*.pdf",
}

// PathMatcher drops candidate links by glob pattern on the URL path.
// "/blog/*" also matches "/blog" itself and nested paths such as
// "/blog/2024/post".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher lowercases patterns. Nil or empty falls back to
// DefaultExcludePaths.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = DefaultExcludePaths
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &PathMatcher{patterns: lowered}
}

// IsExcluded reports whether rawURL matches any pattern. Unparseable URLs
// are excluded.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
		if dir, found := strings.CutSuffix(pattern, "/*"); found && (p == dir || strings.HasPrefix(p, dir+"/")) {
			return true
		}
		// "/*.pdf" should catch "/files/brochure.pdf" too.
		if ext, found := strings.CutPrefix(pattern, "/*"); found && strings.HasPrefix(ext, ".") && strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}
