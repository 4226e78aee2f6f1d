package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathMatcher_IsExcluded(t *testing.T) {
	t.Parallel()
	m := NewPathMatcher([]string{"/blog/*", "/news/*", "/*.pdf", "/careers/*"})

	tests := []struct {
		name     string
		url      string
		excluded bool
	}{
		{"blog post", "https://acme.com/blog/post1", true},
		{"blog root", "https://acme.com/blog", true},
		{"blog deep path", "https://acme.com/blog/2024/01/post", true},
		{"news article", "https://acme.com/news/article", true},
		{"careers job", "https://acme.com/careers/job1", true},
		{"pdf file", "https://acme.com/report.pdf", true},
		{"nested pdf", "https://acme.com/docs/brochure.pdf", true},
		{"contact page", "https://acme.com/contact", false},
		{"about page", "https://acme.com/about-us", false},
		{"homepage", "https://acme.com/", false},
		{"blogger lookalike", "https://acme.com/blogger", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.excluded, m.IsExcluded(tt.url))
		})
	}
}

func TestPathMatcher_DefaultPatterns(t *testing.T) {
	m := NewPathMatcher(nil)

	assert.True(t, m.IsExcluded("https://acme.com/blog/post"))
	assert.True(t, m.IsExcluded("https://acme.com/press/release"))
	assert.True(t, m.IsExcluded("https://acme.com/files/catalog.PDF"))
	assert.False(t, m.IsExcluded("https://acme.com/contact"))
	assert.False(t, m.IsExcluded("https://acme.com/support"))
}

func TestPathMatcher_CaseInsensitive(t *testing.T) {
	m := NewPathMatcher([]string{"/Blog/*"})

	assert.True(t, m.IsExcluded("https://acme.com/blog/post"))
	assert.True(t, m.IsExcluded("https://acme.com/BLOG/POST"))
}

func TestPathMatcher_InvalidURL(t *testing.T) {
	m := NewPathMatcher([]string{"/blog/*"})

	assert.True(t, m.IsExcluded("://invalid"))
}
