// Package brave provides a client for the Brave Search web API.
package brave

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrUnauthorized is returned when the subscription token is missing or
// rejected.
var ErrUnauthorized = eris.New("brave: unauthorized")

// ErrRateLimited is returned on HTTP 429. Brave quotas are per second and
// per month, so the caller decides whether to wait or move on.
var ErrRateLimited = eris.New("brave: rate limited")

// Client defines the Brave Search operations.
type Client interface {
	WebSearch(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// SearchResponse is the subset of the web search response we consume.
type SearchResponse struct {
	Type string      `json:"type"`
	Web  *WebResults `json:"web,omitempty"`
}

// WebResults holds ranked web hits.
type WebResults struct {
	Type    string      `json:"type"`
	Results []WebResult `json:"results"`
}

// WebResult is a single web hit.
type WebResult struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	MetaURL     *MetaURL `json:"meta_url,omitempty"`
}

// MetaURL is Brave's parsed form of a result URL.
type MetaURL struct {
	Scheme   string `json:"scheme"`
	Netloc   string `json:"netloc"`
	Hostname string `json:"hostname"`
}

// URLs returns web result URLs in rank order.
func (r *SearchResponse) URLs() []string {
	if r == nil || r.Web == nil {
		return nil
	}
	out := make([]string, 0, len(r.Web.Results))
	for _, res := range r.Web.Results {
		if u := strings.TrimSpace(res.URL); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// SearchOption configures a search request.
type SearchOption func(url.Values)

// WithCount caps the number of results (Brave allows 1-20).
func WithCount(n int) SearchOption {
	return func(v url.Values) {
		if n < 1 {
			return
		}
		if n > 20 {
			n = 20
		}
		v.Set("count", strconv.Itoa(n))
	}
}

// WithCountry biases results to a two-letter country code.
func WithCountry(code string) SearchOption {
	return func(v url.Values) {
		if len(code) == 2 {
			v.Set("country", strings.ToLower(code))
		}
	}
}

// Option configures the Brave client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a Brave Search client authenticated with token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: "https://api.search.brave.com/res/v1",
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) WebSearch(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	if c.token == "" {
		return nil, ErrUnauthorized
	}
	params := url.Values{}
	params.Set("q", query)
	for _, o := range opts {
		o(params)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/web/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "brave: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "brave: search request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, eris.Wrap(err, "brave: read response body")
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, eris.Wrapf(ErrUnauthorized, "status %d", resp.StatusCode)
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, eris.Errorf("brave: unexpected status %d: %s", resp.StatusCode, msg)
	}

	var out SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "brave: unmarshal response")
	}
	return &out, nil
}
