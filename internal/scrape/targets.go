package scrape

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultContactPaths are probed on every site after the homepage.
var DefaultContactPaths = []string{
	"/contact",
	"/contact-us",
	"/about",
	"/about-us",
	"/support",
}

// contactHints mark anchors worth following from the homepage.
var contactHints = []string{"contact", "about", "support", "kontakt", "impressum"}

// Targets lists the pages to fetch for a site: the homepage, the fixed
// contact paths, then same-site homepage anchors that look like contact
// pages. Duplicates and excluded paths are dropped and the list is capped
// at max (the homepage always survives).
func Targets(homepage, html string, contactPaths []string, matcher *PathMatcher, max int) []string {
	base, err := url.Parse(homepage)
	if err != nil || base.Host == "" {
		return nil
	}
	if contactPaths == nil {
		contactPaths = DefaultContactPaths
	}
	if matcher == nil {
		matcher = NewPathMatcher(nil)
	}
	if max <= 0 {
		max = 1 + len(contactPaths)
	}

	out := []string{homepage}
	seen := map[string]bool{targetKey(base): true}
	add := func(u *url.URL) {
		if len(out) >= max {
			return
		}
		u.Fragment = ""
		if u.Path == "" {
			u.Path = "/"
		}
		key := targetKey(u)
		if seen[key] {
			return
		}
		seen[key] = true
		s := u.String()
		if matcher.IsExcluded(s) {
			return
		}
		out = append(out, s)
	}

	for _, p := range contactPaths {
		ref, err := url.Parse(p)
		if err != nil {
			continue
		}
		add(base.ResolveReference(ref))
	}

	if html == "" {
		return out
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return out
	}
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(out) >= max {
			return false
		}
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return true
		}
		if !looksLikeContact(href) && !looksLikeContact(s.Text()) {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		u := base.ResolveReference(ref)
		if u.Scheme != "http" && u.Scheme != "https" {
			return true
		}
		if !SameSite(u.String(), base.String()) {
			return true
		}
		add(u)
		return true
	})
	return out
}

func looksLikeContact(s string) bool {
	s = strings.ToLower(s)
	for _, h := range contactHints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

// targetKey ignores scheme, "www." and a trailing slash.
func targetKey(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	p := strings.TrimSuffix(strings.ToLower(u.Path), "/")
	key := host + p
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}
