package search

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-scraper/internal/scrape"
)

// DefaultGoogleURL is the results page the headless provider drives.
const DefaultGoogleURL = "https://www.google.com/search"

// Headless runs a Google search in headless Chrome. It is the slowest
// provider and is only used when listed explicitly.
type Headless struct {
	searchURL string
	headless  bool
	timeout   time.Duration
	agents    *scrape.UserAgents
}

// NewHeadless creates the provider. headless=false shows the browser,
// which helps when solving a consent wall by hand.
func NewHeadless(headless bool, timeout time.Duration, agents *scrape.UserAgents) *Headless {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if agents == nil {
		agents = scrape.NewUserAgents(nil)
	}
	return &Headless{searchURL: DefaultGoogleURL, headless: headless, timeout: timeout, agents: agents}
}

// Name implements Provider.
func (h *Headless) Name() string { return "headless" }

// Search implements Provider.
func (h *Headless) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", h.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(h.agents.Next()),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, h.timeout)
	defer cancel()

	target := h.searchURL + "?hl=en&q=" + url.QueryEscape(query)
	var html, location string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Second),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, eris.Wrap(err, "headless: run browser")
	}
	if strings.Contains(location, "/sorry/") {
		return nil, eris.Wrap(ErrBlocked, "headless: google sorry page")
	}
	return ParseGoogleResults(html, maxResults)
}

// ParseGoogleResults extracts organic result URLs from a Google results
// page.
func ParseGoogleResults(html string, maxResults int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "headless: parse results")
	}
	if doc.Find("form#captcha-form, div.g-recaptcha").Length() > 0 {
		return nil, ErrBlocked
	}

	var out []string
	doc.Find("div.yuRUbf a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if maxResults > 0 && len(out) >= maxResults {
			return false
		}
		href, _ := s.Attr("href")
		u, err := url.Parse(href)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return true
		}
		for _, seen := range out {
			if seen == href {
				return true
			}
		}
		out = append(out, href)
		return true
	})
	return out, nil
}
