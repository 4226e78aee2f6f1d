package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot response detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockRateLimit  BlockType = "rate_limit"
	BlockForbidden  BlockType = "forbidden"
	BlockJSShell    BlockType = "js_shell"
)

// challengeMarkers are phrases of interstitial challenge pages.
var challengeMarkers = []string{
	"unusual traffic",
	"are you a robot",
	"are you human",
	"verify you are human",
	"bot detection",
}

var forbiddenMarkers = []string{
	"access denied",
	"request blocked",
	"you have been blocked",
}

// DetectBlock checks a response for signs of anti-bot protection. body is
// the (possibly truncated) response body.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return true, BlockRateLimit
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cf-challenge") {
		return true, BlockCloudflare
	}

	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			return true, BlockCaptcha
		}
	}
	// Contact forms embed reCAPTCHA, so a bare "captcha" only counts on
	// error statuses or near-empty pages.
	if (resp.StatusCode >= 400 || len(body) < 4000) && strings.Contains(lower, "captcha") {
		return true, BlockCaptcha
	}

	if resp.StatusCode == http.StatusForbidden {
		for _, m := range forbiddenMarkers {
			if strings.Contains(lower, m) {
				return true, BlockForbidden
			}
		}
	}

	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "enable javascript") {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
