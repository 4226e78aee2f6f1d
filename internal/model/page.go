package model

// SearchCandidate is a URL returned by a search provider.
type SearchCandidate struct {
	URL      string `json:"url"`
	FetchURL string `json:"fetch_url"`
	Domain   string `json:"domain"`
	Provider string `json:"provider"`
	Rank     int    `json:"rank"`
}

// Target is the URL to fetch, falling back to URL.
func (c *SearchCandidate) Target() string {
	if c.FetchURL != "" {
		return c.FetchURL
	}
	return c.URL
}

// PageOutcome describes what happened when a page was requested.
type PageOutcome string

const (
	PageFetched PageOutcome = "fetched"
	PageFailed  PageOutcome = "failed"
	PageBlocked PageOutcome = "blocked"
)

// FetchedPage is a downloaded page with its decoded HTML.
type FetchedPage struct {
	URL        string      `json:"url"`
	FinalURL   string      `json:"final_url,omitempty"`
	StatusCode int         `json:"status_code"`
	HTML       string      `json:"-"`
	Outcome    PageOutcome `json:"outcome"`
	BlockType  string      `json:"block_type,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// OK reports whether the page body can be used for extraction.
func (p *FetchedPage) OK() bool {
	return p != nil && p.Outcome == PageFetched
}
