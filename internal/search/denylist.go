package search

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/contact-scraper/internal/scrape"
)

// DefaultDenylist holds directories, social networks and aggregators that
// rank well for company names but are never the company's own site.
var DefaultDenylist = []string{
	"linkedin.com", "facebook.com", "instagram.com", "twitter.com", "x.com",
	"youtube.com", "wikipedia.org", "crunchbase.com", "glassdoor.com",
	"indeed.com", "yelp.com", "bloomberg.com", "zoominfo.com", "dnb.com",
	"yellowpages.com", "bbb.org", "google.com", "bing.com", "duckduckgo.com",
	"amazon.com", "pinterest.com", "tiktok.com", "reddit.com",
	"trustpilot.com", "mapquest.com", "opencorporates.com", "manta.com",
}

// Denylist matches URLs whose host equals or is a subdomain of a listed
// domain.
type Denylist struct {
	domains map[string]struct{}
}

// NewDenylist returns DefaultDenylist extended with extra.
func NewDenylist(extra ...string) *Denylist {
	d := &Denylist{domains: make(map[string]struct{}, len(DefaultDenylist)+len(extra))}
	d.Add(DefaultDenylist...)
	d.Add(extra...)
	return d
}

// Add extends the list. Entries may be bare domains or URLs.
func (d *Denylist) Add(domains ...string) {
	for _, raw := range domains {
		h := scrape.Host(strings.TrimSpace(raw))
		if h == "" {
			continue
		}
		d.domains[h] = struct{}{}
	}
}

// Len returns the number of listed domains.
func (d *Denylist) Len() int { return len(d.domains) }

// Blocked reports whether rawURL points at a listed domain.
func (d *Denylist) Blocked(rawURL string) bool {
	h := scrape.Host(rawURL)
	if h == "" {
		return true
	}
	for {
		if _, ok := d.domains[h]; ok {
			return true
		}
		i := strings.IndexByte(h, '.')
		if i < 0 {
			return false
		}
		h = h[i+1:]
	}
}

// denylistFile accepts either a bare YAML list or a "domains:" key.
type denylistFile struct {
	Domains []string `yaml:"domains"`
}

// LoadDenylistFile reads extra domains from a YAML file.
func LoadDenylistFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "search: read denylist %s", path)
	}

	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var f denylistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "search: parse denylist %s", path)
	}
	return f.Domains, nil
}
