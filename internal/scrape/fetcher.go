package scrape

import (
	"context"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/contact-scraper/internal/model"
	"github.com/sells-group/contact-scraper/internal/resilience"
)

// Pacer is called before every outbound page request.
type Pacer interface {
	BeforeRequest(ctx context.Context) error
}

// FetchOptions configures an HTTPFetcher.
type FetchOptions struct {
	Timeout       time.Duration
	MaxRetries    int
	Backoff       time.Duration
	MaxBodyBytes  int64
	UserAgents    []string
	RespectRobots bool
}

// HTTPFetcher downloads pages with rotating user agents, bounded retry on
// 429/5xx and anti-bot detection. A failed or blocked page is reported in
// the returned page, never as an error.
type HTTPFetcher struct {
	client  *http.Client
	agents  *UserAgents
	retry   resilience.RetryConfig
	maxBody int64
	robots  *RobotsCache
	pacer   Pacer
}

// FetcherOption configures optional HTTPFetcher behavior.
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) FetcherOption {
	return func(f *HTTPFetcher) { f.client = hc }
}

// WithPacer installs a pacer consulted before each request.
func WithPacer(p Pacer) FetcherOption {
	return func(f *HTTPFetcher) { f.pacer = p }
}

// NewHTTPFetcher creates a fetcher. A zero Timeout or MaxBodyBytes falls
// back to 12s and 2 MiB.
func NewHTTPFetcher(opts FetchOptions, fopts ...FetcherOption) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 << 20
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = opts.MaxRetries + 1
	if opts.Backoff > 0 {
		retry.InitialBackoff = opts.Backoff
	}

	f := &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: 8 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 8 * time.Second,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     60 * time.Second,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return eris.New("scrape: too many redirects")
				}
				return nil
			},
		},
		agents:  NewUserAgents(opts.UserAgents),
		retry:   retry,
		maxBody: opts.MaxBodyBytes,
	}
	for _, o := range fopts {
		o(f)
	}
	if opts.RespectRobots {
		f.robots = NewRobotsCache(f.client, f.agents.Next())
	}
	return f
}

// Fetch downloads targetURL. The error is non-nil only when ctx is done.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string) (*model.FetchedPage, error) {
	page := &model.FetchedPage{URL: targetURL}

	if f.robots != nil && !f.robots.Allowed(ctx, targetURL) {
		page.Outcome = model.PageFailed
		page.Error = "disallowed by robots.txt"
		return page, nil
	}

	retry := f.retry
	retry.OnRetry = resilience.RetryLogger("fetcher", targetURL)

	res, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*attempt, error) {
		return f.attempt(ctx, targetURL)
	})
	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "scrape: fetch cancelled")
	}

	// Exhausted retries on 429 leave a rate-limit block behind.
	if res == nil {
		var te *resilience.TransientError
		if errors.As(err, &te) && te.StatusCode == http.StatusTooManyRequests {
			page.StatusCode = te.StatusCode
			page.Outcome = model.PageBlocked
			page.BlockType = string(BlockRateLimit)
			page.Error = err.Error()
			return page, nil
		}
		page.Outcome = model.PageFailed
		if te != nil {
			page.StatusCode = te.StatusCode
		}
		if err != nil {
			page.Error = err.Error()
		}
		return page, nil
	}

	page.StatusCode = res.status
	page.FinalURL = res.finalURL
	page.HTML = res.html
	switch {
	case res.block != BlockNone:
		page.Outcome = model.PageBlocked
		page.BlockType = string(res.block)
	case res.status >= 400:
		page.Outcome = model.PageFailed
		page.Error = http.StatusText(res.status)
	default:
		page.Outcome = model.PageFetched
	}
	return page, nil
}

type attempt struct {
	status   int
	finalURL string
	html     string
	block    BlockType
}

// attempt performs one GET. 429/5xx and transient network errors come back
// as TransientError so the caller retries them.
func (f *HTTPFetcher) attempt(ctx context.Context, targetURL string) (*attempt, error) {
	if f.pacer != nil {
		if err := f.pacer.BeforeRequest(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: create request")
	}
	req.Header.Set("User-Agent", f.agents.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		if resilience.IsTransient(err) {
			return nil, resilience.NewTransientError(eris.Wrap(err, "scrape: fetch"), 0)
		}
		return nil, eris.Wrap(err, "scrape: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "scrape: read body"), resp.StatusCode)
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		// 503 with a challenge page is a block, not an outage.
		if blocked, bt := DetectBlock(resp, body); blocked && bt != BlockRateLimit {
			return &attempt{status: resp.StatusCode, finalURL: resp.Request.URL.String(), block: bt}, nil
		}
		return nil, resilience.NewTransientError(
			eris.Errorf("scrape: status %d from %s", resp.StatusCode, targetURL), resp.StatusCode)
	}

	a := &attempt{status: resp.StatusCode, finalURL: resp.Request.URL.String()}
	if blocked, bt := DetectBlock(resp, body); blocked {
		a.block = bt
		return a, nil
	}
	if resp.StatusCode >= 400 {
		return a, nil
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !isHTML(ct) {
		zap.L().Debug("scrape: skipping non-html page", zap.String("url", targetURL), zap.String("content_type", ct))
		a.status = http.StatusUnsupportedMediaType
		return a, nil
	}
	a.html = decodeBody(body, ct)
	return a, nil
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mt == "text/html" || mt == "application/xhtml+xml" || mt == "text/plain"
}

var metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?\s*([a-z0-9_\-:]+)`)

// decodeBody converts body to UTF-8 using the Content-Type charset, then a
// <meta charset>, falling back to the raw bytes.
func decodeBody(body []byte, contentType string) string {
	name := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		name = params["charset"]
	}
	if name == "" {
		head := body
		if len(head) > 4096 {
			head = head[:4096]
		}
		if m := metaCharsetRe.FindSubmatch(head); m != nil {
			name = string(m[1])
		}
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		return string(body)
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return string(body)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(out)
}
