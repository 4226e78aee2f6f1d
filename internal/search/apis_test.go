package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-scraper/pkg/brave"
	"github.com/sells-group/contact-scraper/pkg/jina"
)

func TestJinaProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jina.SearchResponse{Code: 200, Data: []jina.SearchResult{
			{URL: "https://a.com"}, {URL: "https://b.com"}, {URL: "https://c.com"},
		}})
	}))
	defer srv.Close()

	p := NewJina(jina.NewClient("k", jina.WithSearchBaseURL(srv.URL)))
	assert.Equal(t, "jina", p.Name())

	urls, err := p.Search(context.Background(), "acme official website", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.com", "https://b.com"}, urls)
}

func TestBraveProvider_RateLimitIsBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewBrave(brave.NewClient("tok", brave.WithBaseURL(srv.URL)))
	_, err := p.Search(context.Background(), "acme", 5)
	assert.True(t, errors.Is(err, ErrBlocked))
}

func TestBraveProvider_Unauthorized(t *testing.T) {
	p := NewBrave(brave.NewClient(""))
	_, err := p.Search(context.Background(), "acme", 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, brave.ErrUnauthorized))
}
