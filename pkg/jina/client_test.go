package jina

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	want := SearchResponse{
		Code: 200,
		Data: []SearchResult{
			{Title: "Acme Corp - Official Site", URL: "https://acme.com"},
			{Title: "Acme Corp | LinkedIn", URL: "https://linkedin.com/company/acme"},
			{Title: "blank", URL: " "},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "/Acme Corp official website", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithSearchBaseURL(srv.URL))
	got, err := client.Search(context.Background(), "Acme Corp official website")

	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.com", "https://linkedin.com/company/acme"}, got.URLs())
}

func TestSearch_NoResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	got, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(context.Background(), "zzzz")
	require.NoError(t, err)
	assert.Empty(t, got.URLs())
}

func TestSearch_RetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(SearchResponse{Code: 200, Data: []SearchResult{{URL: "https://acme.com"}}})
	}))
	defer srv.Close()

	client := NewClient("k", WithSearchBaseURL(srv.URL), WithBackoff(time.Millisecond))
	got, err := client.Search(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.com"}, got.URLs())
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearch_RetriesExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient("k", WithSearchBaseURL(srv.URL), WithBackoff(time.Millisecond))
	_, err := client.Search(context.Background(), "acme")
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_Unauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient("bad", WithSearchBaseURL(srv.URL)).Search(context.Background(), "acme")
	assert.True(t, errors.Is(err, ErrUnauthorized))

	_, err = NewClient("").Search(context.Background(), "acme")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestSearch_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(context.Background(), "acme")
	assert.Error(t, err)
}
