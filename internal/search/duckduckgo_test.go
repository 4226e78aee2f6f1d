package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ddgResultsHTML = `<html><body>
<div class="results">
  <div class="result result--ad">
    <a class="result__a" href="https://duckduckgo.com/y.js?ad_domain=ads.example&u3=x">Sponsored</a>
  </div>
  <div class="result">
    <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.linkedin.com%2Fcompany%2Facme&rut=abc">Acme | LinkedIn</a>
  </div>
  <div class="result">
    <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.acme.com%2F&rut=def">Acme Corp</a>
  </div>
  <div class="result">
    <a class="result__a" href="https://acme-industries.de/kontakt">Acme Industries</a>
  </div>
  <div class="result">
    <a class="result__a" href="javascript:void(0)">Broken</a>
  </div>
</div>
</body></html>`

func TestParseDuckDuckGo(t *testing.T) {
	urls, err := ParseDuckDuckGo(strings.NewReader(ddgResultsHTML), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.linkedin.com/company/acme",
		"https://www.acme.com/",
		"https://acme-industries.de/kontakt",
	}, urls)
}

func TestParseDuckDuckGo_MaxResults(t *testing.T) {
	urls, err := ParseDuckDuckGo(strings.NewReader(ddgResultsHTML), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.linkedin.com/company/acme"}, urls)
}

func TestParseDuckDuckGo_Captcha(t *testing.T) {
	page := `<html><body><form id="captcha-form"><div class="g-recaptcha"></div></form></body></html>`
	_, err := ParseDuckDuckGo(strings.NewReader(page), 10)
	assert.ErrorIs(t, err, ErrBlocked)

	anomaly := `<html><body><p>Unfortunately, bots use DuckDuckGo too. We detected unusual traffic.</p></body></html>`
	_, err = ParseDuckDuckGo(strings.NewReader(anomaly), 10)
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestParseDuckDuckGo_NoResults(t *testing.T) {
	page := `<html><body><div class="no-results">No results found for this query.</div></body></html>`
	urls, err := ParseDuckDuckGo(strings.NewReader(page), 10)
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestDuckDuckGo_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Acme Corp official website", r.URL.Query().Get("q"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(ddgResultsHTML))
	}))
	defer srv.Close()

	p := NewDuckDuckGo(srv.URL+"/html/", nil, nil)
	assert.Equal(t, "duckduckgo", p.Name())

	urls, err := p.Search(context.Background(), "Acme Corp official website", 5)
	require.NoError(t, err)
	assert.Len(t, urls, 3)
}

func TestDuckDuckGo_AnomalyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	_, err := NewDuckDuckGo(srv.URL, nil, nil).Search(context.Background(), "acme", 5)
	assert.True(t, errors.Is(err, ErrBlocked))
}

func TestDuckDuckGo_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewDuckDuckGo(srv.URL, nil, nil).Search(context.Background(), "acme", 5)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBlocked))
}
