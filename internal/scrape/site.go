package scrape

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/contact-scraper/internal/model"
)

// PageFetcher fetches a single page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*model.FetchedPage, error)
}

// SiteResult is everything fetched for one website.
type SiteResult struct {
	Homepage     *model.FetchedPage
	Pages        []*model.FetchedPage // successfully fetched pages, homepage first
	Unreachable  bool
	Blocked      bool
	BlockType    string
	BlockedPages int
	Attempted    int
}

// SiteFetcher walks a site's homepage and contact pages.
type SiteFetcher struct {
	fetcher      PageFetcher
	contactPaths []string
	matcher      *PathMatcher
	maxPages     int
}

// NewSiteFetcher creates a SiteFetcher. Nil contactPaths use
// DefaultContactPaths.
func NewSiteFetcher(f PageFetcher, contactPaths []string, matcher *PathMatcher, maxPages int) *SiteFetcher {
	if matcher == nil {
		matcher = NewPathMatcher(nil)
	}
	return &SiteFetcher{
		fetcher:      f,
		contactPaths: contactPaths,
		matcher:      matcher,
		maxPages:     maxPages,
	}
}

// FetchSite fetches homepage, then the remaining targets one at a time.
// A failed homepage marks the site unreachable and a blocked one marks it
// blocked; no further pages are requested in either case. The error is
// non-nil only when ctx is done.
func (s *SiteFetcher) FetchSite(ctx context.Context, homepage string) (*SiteResult, error) {
	res := &SiteResult{}

	home, err := s.fetcher.Fetch(ctx, homepage)
	if err != nil {
		return res, err
	}
	res.Homepage = home
	res.Attempted = 1

	switch home.Outcome {
	case model.PageFailed:
		res.Unreachable = true
		return res, nil
	case model.PageBlocked:
		res.Blocked = true
		res.BlockType = home.BlockType
		return res, nil
	}
	res.Pages = append(res.Pages, home)

	base := homepage
	if home.FinalURL != "" {
		base = home.FinalURL
	}
	targets := Targets(base, home.HTML, s.contactPaths, s.matcher, s.maxPages)
	if len(targets) < 2 {
		return res, nil
	}

	for _, target := range targets[1:] {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page, err := s.fetcher.Fetch(ctx, target)
		if err != nil {
			return res, err
		}
		res.Attempted++
		switch page.Outcome {
		case model.PageFetched:
			res.Pages = append(res.Pages, page)
		case model.PageBlocked:
			res.BlockedPages++
			if res.BlockType == "" {
				res.BlockType = page.BlockType
			}
		default:
			zap.L().Debug("scrape: page skipped",
				zap.String("url", target),
				zap.Int("status", page.StatusCode),
				zap.String("error", page.Error),
			)
		}
	}
	return res, nil
}
