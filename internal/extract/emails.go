package extract

import (
	"regexp"
	"strings"
)

var emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)*\.[A-Za-z]{2,}`)

// placeholderDomains never belong to a real company contact.
var placeholderDomains = []string{
	"example.com",
	"example.org",
	"example.net",
	"test.com",
	"email.com",
	"domain.com",
	"yourdomain.com",
	"yourcompany.com",
	"company.com",
	"sentry.io",
	"wixpress.com",
}

// assetSuffixes catch retina image names like logo@2x.png.
var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}

// FindEmails returns every plausible address in text, lowercased, in order of
// appearance. Duplicates are kept; callers dedup.
func FindEmails(text string) []string {
	matches := emailRe.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if e, ok := NormalizeEmail(m); ok {
			out = append(out, e)
		}
	}
	return out
}

// NormalizeEmail lowercases a candidate and rejects placeholders, asset
// file names and malformed local parts.
func NormalizeEmail(raw string) (string, bool) {
	e := strings.ToLower(strings.TrimSpace(raw))
	e = strings.TrimPrefix(e, "mailto:")

	at := strings.LastIndexByte(e, '@')
	if at <= 0 || at == len(e)-1 {
		return "", false
	}
	local := strings.Trim(e[:at], ".")
	domain := strings.Trim(e[at+1:], ".")
	if local == "" || strings.Contains(local, "..") || strings.HasPrefix(local, "%") {
		return "", false
	}
	if !emailRe.MatchString(local + "@" + domain) {
		return "", false
	}

	for _, suf := range assetSuffixes {
		if strings.HasSuffix(domain, suf) {
			return "", false
		}
	}
	for _, p := range placeholderDomains {
		if domain == p || strings.HasSuffix(domain, "."+p) {
			return "", false
		}
	}
	return local + "@" + domain, true
}

// EmailDomain returns the part after the last @.
func EmailDomain(email string) string {
	if at := strings.LastIndexByte(email, '@'); at >= 0 {
		return email[at+1:]
	}
	return ""
}

// PreferDomain keeps only emails whose domain part contains primaryDomain
// when there is at least one; otherwise it returns emails unchanged.
func PreferDomain(emails []string, primaryDomain string) []string {
	primary := strings.TrimPrefix(strings.ToLower(primaryDomain), "www.")
	if primary == "" {
		return emails
	}
	var own []string
	for _, e := range emails {
		d := EmailDomain(e)
		if strings.Contains(d, primary) {
			own = append(own, e)
		}
	}
	if len(own) == 0 {
		return emails
	}
	return own
}
