package scrape

import (
	"net"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/publicsuffix"
)

// NormalizeURL adds an https scheme when missing, lowercases the host and
// guarantees a path.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("scrape: empty url")
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + strings.TrimLeft(raw, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(err, "scrape: parse url %q", raw)
	}
	if u.Hostname() == "" {
		return "", eris.Errorf("scrape: url %q has no host", raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// BaseURL returns scheme://host of rawURL.
func BaseURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

// Host returns the lowercase host of rawURL without port or leading "www.".
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	h := u.Hostname()
	if h == "" && !strings.Contains(rawURL, "://") {
		// Bare "acme.com/path".
		if u2, err := url.Parse("https://" + rawURL); err == nil {
			h = u2.Hostname()
		}
	}
	return strings.TrimPrefix(strings.ToLower(h), "www.")
}

// RegistrableDomain returns the eTLD+1 of rawURL's host ("shop.acme.co.uk"
// becomes "acme.co.uk"). IP addresses and single-label hosts are returned
// as-is.
func RegistrableDomain(rawURL string) string {
	h := Host(rawURL)
	if h == "" || net.ParseIP(h) != nil || !strings.Contains(h, ".") {
		return h
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(h)
	if err != nil {
		return h
	}
	return d
}

// SameSite reports whether two hosts share a registrable domain, so
// "www.acme.com" and "acme.com" count as the same site.
func SameSite(a, b string) bool {
	da, db := RegistrableDomain(a), RegistrableDomain(b)
	return da != "" && da == db
}
