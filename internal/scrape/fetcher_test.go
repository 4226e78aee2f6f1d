package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-scraper/internal/model"
)

func testFetcher(opts ...FetcherOption) *HTTPFetcher {
	return NewHTTPFetcher(FetchOptions{
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	}, opts...)
}

type countingPacer struct{ calls atomic.Int32 }

func (p *countingPacer) BeforeRequest(ctx context.Context) error {
	p.calls.Add(1)
	return ctx.Err()
}

func TestHTTPFetcher_Fetched(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><a href="mailto:info@acme.com">Mail</a></body></html>`))
	}))
	defer srv.Close()

	page, err := testFetcher().Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, model.PageFetched, page.Outcome)
	assert.True(t, page.OK())
	assert.Equal(t, 200, page.StatusCode)
	assert.Contains(t, page.HTML, "info@acme.com")
	assert.Contains(t, DefaultUserAgents, ua.Load())
}

func TestHTTPFetcher_NotFoundIsFailed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<html><body>Page not found</body></html>"))
	}))
	defer srv.Close()

	page, err := testFetcher().Fetch(context.Background(), srv.URL+"/contact")
	require.NoError(t, err)
	assert.Equal(t, model.PageFailed, page.Outcome)
	assert.Equal(t, 404, page.StatusCode)
	assert.Equal(t, "Not Found", page.Error)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>Back online</body></html>"))
	}))
	defer srv.Close()

	page, err := testFetcher().Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, model.PageFetched, page.Outcome)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	page, err := testFetcher().Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, model.PageFailed, page.Outcome)
	assert.Equal(t, 500, page.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_RateLimitedBecomesBlocked(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	page, err := testFetcher().Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, model.PageBlocked, page.Outcome)
	assert.Equal(t, string(BlockRateLimit), page.BlockType)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_CloudflareBlockNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Cf-Ray", "8a1b2c3d")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("<html><body>Checking your browser</body></html>"))
	}))
	defer srv.Close()

	page, err := testFetcher().Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, model.PageBlocked, page.Outcome)
	assert.Equal(t, string(BlockCloudflare), page.BlockType)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcher_NonHTMLSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 brochure body that is long enough to not look like a shell page"))
	}))
	defer srv.Close()

	page, err := testFetcher().Fetch(context.Background(), srv.URL+"/brochure")
	require.NoError(t, err)
	assert.Equal(t, model.PageFailed, page.Outcome)
	assert.Equal(t, http.StatusUnsupportedMediaType, page.StatusCode)
	assert.Empty(t, page.HTML)
}

func TestHTTPFetcher_DecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1252")
		_, _ = w.Write([]byte("<html><body>Soci\xe9t\xe9 G\xe9n\xe9rale</body></html>"))
	}))
	defer srv.Close()

	page, err := testFetcher().Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Contains(t, page.HTML, "Société Générale")
}

func TestHTTPFetcher_MetaCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><meta charset="iso-8859-1"></head><body>M\xfcller GmbH</body></html>`))
	}))
	defer srv.Close()

	page, err := testFetcher().Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Contains(t, page.HTML, "Müller GmbH")
}

func TestHTTPFetcher_PacerCalledPerAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	pacer := &countingPacer{}
	_, err := testFetcher(WithPacer(pacer)).Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, int32(2), pacer.calls.Load())
}

func TestHTTPFetcher_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page, err := testFetcher().Fetch(ctx, srv.URL+"/")
	assert.Error(t, err)
	assert.Nil(t, page)
}

func TestHTTPFetcher_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	page, err := testFetcher().Fetch(context.Background(), addr+"/")
	require.NoError(t, err)
	assert.Equal(t, model.PageFailed, page.Outcome)
	assert.NotEmpty(t, page.Error)
}

func TestHTTPFetcher_RespectsRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(FetchOptions{Timeout: 2 * time.Second, RespectRobots: true})

	page, err := f.Fetch(context.Background(), srv.URL+"/private/contact")
	require.NoError(t, err)
	assert.Equal(t, model.PageFailed, page.Outcome)
	assert.Equal(t, "disallowed by robots.txt", page.Error)

	page, err = f.Fetch(context.Background(), srv.URL+"/contact")
	require.NoError(t, err)
	assert.Equal(t, model.PageFetched, page.Outcome)
}
