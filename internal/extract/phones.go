package extract

import (
	"regexp"
	"strings"
)

// phoneRe is deliberately permissive; digit-count bounds do the filtering.
var phoneRe = regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?(?:\(?\d{2,4}\)?[\s.-]?)?\d{3,5}(?:[\s.-]?\d{3,5}){1,3}`)

var separatorRe = regexp.MustCompile(`[\s.\-]+`)

// FindPhones returns display forms of phone-like runs in text whose digit
// count lies within the configured bounds. Matches glued to other digits or
// letters are ignored.
func FindPhones(text string, opts Options) []string {
	opts = opts.withDefaults()
	var out []string
	for _, loc := range phoneRe.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isWordByte(text[start-1]) {
			continue
		}
		if end < len(text) && isWordByte(text[end]) {
			continue
		}
		if p, ok := NormalizePhone(text[start:end], opts); ok {
			out = append(out, p)
		}
	}
	return out
}

// NormalizePhone collapses separators to single spaces and checks the digit
// count against opts.
func NormalizePhone(raw string, opts Options) (string, bool) {
	opts = opts.withDefaults()
	p := strings.TrimSpace(raw)
	n := len(digitsOnly(p))
	if n < opts.MinPhoneDigits || n > opts.MaxPhoneDigits {
		return "", false
	}
	p = separatorRe.ReplaceAllString(p, " ")
	return strings.TrimSpace(p), true
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isWordByte(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
