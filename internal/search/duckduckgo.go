package search

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-scraper/internal/scrape"
)

// DefaultDuckDuckGoURL is the JavaScript-free results endpoint.
const DefaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"

var ddgBlockPhrases = []string{
	"unusual traffic",
	"anomaly",
	"please complete the following challenge",
	"are you a robot",
}

// DuckDuckGo scrapes the DuckDuckGo HTML results page. It needs no API key.
type DuckDuckGo struct {
	baseURL string
	client  *http.Client
	agents  *scrape.UserAgents
}

// NewDuckDuckGo creates the provider. Empty baseURL uses
// DefaultDuckDuckGoURL and a nil client gets a 15s timeout.
func NewDuckDuckGo(baseURL string, client *http.Client, agents *scrape.UserAgents) *DuckDuckGo {
	if baseURL == "" {
		baseURL = DefaultDuckDuckGoURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if agents == nil {
		agents = scrape.NewUserAgents(nil)
	}
	return &DuckDuckGo{baseURL: baseURL, client: client, agents: agents}
}

// Name implements Provider.
func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search implements Provider.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	reqURL := d.baseURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "duckduckgo: create request")
	}
	req.Header.Set("User-Agent", d.agents.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "duckduckgo: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusAccepted, http.StatusForbidden, http.StatusTooManyRequests:
		// 202 is DuckDuckGo's anomaly response.
		return nil, eris.Wrapf(ErrBlocked, "duckduckgo: status %d", resp.StatusCode)
	default:
		return nil, eris.Errorf("duckduckgo: unexpected status %d", resp.StatusCode)
	}

	return ParseDuckDuckGo(io.LimitReader(resp.Body, 2<<20), maxResults)
}

// ParseDuckDuckGo extracts organic result URLs from an HTML results page,
// unwrapping "/l/?uddg=" redirect links and skipping ads.
func ParseDuckDuckGo(r io.Reader, maxResults int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "duckduckgo: parse results")
	}

	if doc.Find("form#captcha-form, div.g-recaptcha, div.anomaly-modal__modal").Length() > 0 {
		return nil, ErrBlocked
	}

	var out []string
	doc.Find("a.result__a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if maxResults > 0 && len(out) >= maxResults {
			return false
		}
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		if u := unwrapDuckDuckGo(href); u != "" {
			out = append(out, u)
		}
		return true
	})

	if len(out) == 0 && doc.Find(".no-results").Length() == 0 {
		text := strings.ToLower(doc.Find("body").Text())
		for _, p := range ddgBlockPhrases {
			if strings.Contains(text, p) {
				return nil, ErrBlocked
			}
		}
	}
	return out, nil
}

func unwrapDuckDuckGo(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") {
		if strings.HasPrefix(u.Path, "/y.js") {
			return ""
		}
		target := u.Query().Get("uddg")
		if target == "" {
			return ""
		}
		if tu, err := url.Parse(target); err != nil || (tu.Scheme != "http" && tu.Scheme != "https") {
			return ""
		}
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
