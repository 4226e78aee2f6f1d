package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-scraper/internal/config"
	"github.com/sells-group/contact-scraper/internal/model"
)

func TestBuildProviders(t *testing.T) {
	cfg := &config.Config{}
	cfg.Search.Providers = []string{"duckduckgo", "jina", "brave", "headless"}
	cfg.Brave.Key = "tok"

	providers, err := BuildProviders(cfg)
	require.NoError(t, err)

	var names []string
	for _, p := range providers {
		names = append(names, p.Name())
	}
	// jina has no key and is skipped.
	assert.Equal(t, []string{"duckduckgo", "brave", "headless"}, names)
}

func TestBuildProviders_Errors(t *testing.T) {
	cfg := &config.Config{}
	cfg.Search.Providers = []string{"altavista"}
	_, err := BuildProviders(cfg)
	assert.Error(t, err)

	cfg.Search.Providers = []string{"jina"}
	_, err = BuildProviders(cfg)
	assert.Error(t, err)
}

func TestNewResolverFromConfig_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"search","web":{"results":[
			{"url":"https://www.kompass.com/acme"},
			{"url":"https://www.yelp.com/biz/acme"},
			{"url":"https://acme-valves.com/"}]}}`))
	}))
	defer srv.Close()

	denyFile := filepath.Join(t.TempDir(), "deny.yaml")
	require.NoError(t, os.WriteFile(denyFile, []byte("- kompass.com\n"), 0o600))

	cfg := &config.Config{}
	cfg.Search.Providers = []string{"brave"}
	cfg.Search.DenylistFile = denyFile
	cfg.Brave.Key = "tok"
	cfg.Brave.BaseURL = srv.URL

	r, err := NewResolverFromConfig(cfg, nil)
	require.NoError(t, err)

	cand, err := r.Resolve(context.Background(), model.CompanyRecord{Name: "Acme Valves"})
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "https://acme-valves.com/", cand.URL)
	assert.Equal(t, 3, cand.Rank)
}

func TestNewResolverFromConfig_MissingDenylistFile(t *testing.T) {
	cfg := &config.Config{}
	cfg.Search.Providers = []string{"duckduckgo"}
	cfg.Search.DenylistFile = filepath.Join(t.TempDir(), "nope.yaml")

	_, err := NewResolverFromConfig(cfg, nil)
	assert.Error(t, err)
}
