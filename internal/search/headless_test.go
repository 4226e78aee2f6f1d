package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGoogleResults(t *testing.T) {
	page := `<html><body><div id="search">
  <div class="g"><div class="yuRUbf"><a href="https://www.acme.com/"><h3>Acme Corp</h3></a></div></div>
  <div class="g"><div class="yuRUbf"><span><a href="https://www.acme.com/"><h3>Acme Corp again</h3></a></span></div></div>
  <div class="g"><div class="yuRUbf"><a href="/search?q=related">Related</a></div></div>
  <div class="g"><div class="yuRUbf"><a href="https://en.wikipedia.org/wiki/Acme"><h3>Acme - Wikipedia</h3></a></div></div>
</div></body></html>`

	urls, err := ParseGoogleResults(page, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.acme.com/", "https://en.wikipedia.org/wiki/Acme"}, urls)

	urls, err = ParseGoogleResults(page, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.acme.com/"}, urls)
}

func TestParseGoogleResults_Captcha(t *testing.T) {
	_, err := ParseGoogleResults(`<html><body><form id="captcha-form"></form></body></html>`, 10)
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestNewHeadless_Defaults(t *testing.T) {
	h := NewHeadless(true, 0, nil)
	assert.Equal(t, "headless", h.Name())
	assert.Equal(t, DefaultGoogleURL, h.searchURL)
	assert.NotZero(t, h.timeout)
}
