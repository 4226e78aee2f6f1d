// Package extract pulls email addresses and phone numbers out of HTML pages.
package extract

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"
)

// Options tunes extraction.
type Options struct {
	MinPhoneDigits int
	MaxPhoneDigits int
}

// DefaultOptions accepts phone numbers with 8 to 15 digits.
func DefaultOptions() Options {
	return Options{MinPhoneDigits: 8, MaxPhoneDigits: 15}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MinPhoneDigits <= 0 {
		o.MinPhoneDigits = def.MinPhoneDigits
	}
	if o.MaxPhoneDigits < o.MinPhoneDigits {
		o.MaxPhoneDigits = max(def.MaxPhoneDigits, o.MinPhoneDigits)
	}
	return o
}

// Contacts is the deduplicated set of contacts found on one or more pages.
// Emails are lowercase; phones are display forms unique by digits.
type Contacts struct {
	Emails []string `json:"emails"`
	Phones []string `json:"phones"`
}

// Empty reports whether nothing was found.
func (c Contacts) Empty() bool {
	return len(c.Emails) == 0 && len(c.Phones) == 0
}

// ExtractContacts finds emails and phones in html. When primaryDomain is set
// and at least one email belongs to it, only those emails are returned.
// The function is pure: the same input always yields the same sets.
func ExtractContacts(html, primaryDomain string, opts Options) Contacts {
	opts = opts.withDefaults()

	var text string
	var mailtos, tels []string

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		text = html
	} else {
		text = VisibleText(doc)
		mailtos, tels = contactLinks(doc)
	}

	emails := newSet()
	for _, raw := range mailtos {
		for _, e := range FindEmails(raw) {
			emails.add(e, e)
		}
	}
	for _, e := range FindEmails(text) {
		emails.add(e, e)
	}

	// Text first so the on-page formatting wins over tel: hrefs.
	phones := newSet()
	for _, p := range FindPhones(text, opts) {
		phones.add(digitsOnly(p), p)
	}
	for _, raw := range tels {
		if p, ok := NormalizePhone(raw, opts); ok {
			phones.add(digitsOnly(p), p)
		}
	}

	return Contacts{
		Emails: PreferDomain(emails.sorted(), primaryDomain),
		Phones: phones.sorted(),
	}
}

// Merge unions two contact sets and re-applies the domain preference.
func Merge(primaryDomain string, sets ...Contacts) Contacts {
	emails := newSet()
	phones := newSet()
	for _, c := range sets {
		for _, e := range c.Emails {
			emails.add(e, e)
		}
		for _, p := range c.Phones {
			phones.add(digitsOnly(p), p)
		}
	}
	return Contacts{
		Emails: PreferDomain(emails.sorted(), primaryDomain),
		Phones: phones.sorted(),
	}
}

var hiddenTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "svg": true, "head": true,
}

// VisibleText returns the document text in document order, skipping
// script, style and other non-rendered elements.
func VisibleText(doc *goquery.Document) string {
	var sb strings.Builder
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		switch n.Type {
		case xhtml.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
			return
		case xhtml.ElementNode:
			if hiddenTags[n.Data] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// contactLinks collects raw mailto: and tel: href values.
func contactLinks(doc *goquery.Document) (mailtos, tels []string) {
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		lower := strings.ToLower(href)
		switch {
		case strings.HasPrefix(lower, "mailto:"):
			addr := href[len("mailto:"):]
			if i := strings.IndexByte(addr, '?'); i >= 0 {
				addr = addr[:i]
			}
			if dec, err := url.PathUnescape(addr); err == nil {
				addr = dec
			}
			// mailto:a@x.com,b@x.com is valid.
			mailtos = append(mailtos, strings.Split(addr, ",")...)
		case strings.HasPrefix(lower, "tel:"):
			num := href[len("tel:"):]
			if dec, err := url.PathUnescape(num); err == nil {
				num = dec
			}
			tels = append(tels, num)
		}
	})
	return mailtos, tels
}

// set keeps the first display value seen per key.
type set struct {
	items map[string]string
}

func newSet() *set { return &set{items: make(map[string]string)} }

func (s *set) add(key, display string) {
	if key == "" {
		return
	}
	if _, ok := s.items[key]; !ok {
		s.items[key] = display
	}
}

func (s *set) sorted() []string {
	out := make([]string, 0, len(s.items))
	for _, v := range s.items {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
