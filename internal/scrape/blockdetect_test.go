package scrape

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBlock_Cloudflare403(t *testing.T) {
	resp := &http.Response{
		StatusCode: 403,
		Header:     http.Header{"Cf-Ray": {"abc123"}},
	}
	blocked, bt := DetectBlock(resp, nil)
	assert.True(t, blocked)
	assert.Equal(t, BlockCloudflare, bt)
}

func TestDetectBlock_Cloudflare503Server(t *testing.T) {
	resp := &http.Response{
		StatusCode: 503,
		Header:     http.Header{"Server": {"cloudflare"}},
	}
	blocked, bt := DetectBlock(resp, nil)
	assert.True(t, blocked)
	assert.Equal(t, BlockCloudflare, bt)
}

func TestDetectBlock_RateLimit(t *testing.T) {
	resp := &http.Response{StatusCode: 429, Header: http.Header{}}
	blocked, bt := DetectBlock(resp, nil)
	assert.True(t, blocked)
	assert.Equal(t, BlockRateLimit, bt)
}

func TestDetectBlock_ChallengePhrases(t *testing.T) {
	tests := []struct {
		name string
		body string
		want BlockType
	}{
		{"browser check", "<p>Checking your browser before accessing acme.com</p>", BlockCloudflare},
		{"unusual traffic", "<p>Our systems have detected unusual traffic from your network</p>", BlockCaptcha},
		{"robot", "<h1>Are you a robot?</h1>", BlockCaptcha},
		{"bare captcha on tiny page", "<div>Please complete the reCAPTCHA to continue</div>", BlockCaptcha},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: 200, Header: http.Header{}}
			blocked, bt := DetectBlock(resp, []byte("<html><body>"+tt.body+"</body></html>"))
			assert.True(t, blocked)
			assert.Equal(t, tt.want, bt)
		})
	}
}

func TestDetectBlock_ContactFormCaptchaIsNotBlock(t *testing.T) {
	// A long, real page that embeds a reCAPTCHA widget on its contact form.
	body := "<html><body><h1>Contact Acme</h1>" +
		strings.Repeat("<p>We build industrial valves and fittings for every market.</p>", 100) +
		`<form><div class="g-recaptcha"></div></form></body></html>`
	resp := &http.Response{StatusCode: 200, Header: http.Header{}}
	blocked, _ := DetectBlock(resp, []byte(body))
	assert.False(t, blocked)
}

func TestDetectBlock_ChallengeOnLargePage(t *testing.T) {
	body := "<html><body>" +
		strings.Repeat("<p>Search results and navigation chrome padding the interstitial.</p>", 400) +
		"<p>Our systems have detected unusual traffic from your computer network.</p></body></html>"
	assert.Greater(t, len(body), 20_000)

	resp := &http.Response{StatusCode: 200, Header: http.Header{}}
	blocked, bt := DetectBlock(resp, []byte(body))
	assert.True(t, blocked)
	assert.Equal(t, BlockCaptcha, bt)
}

func TestDetectBlock_Forbidden(t *testing.T) {
	resp := &http.Response{StatusCode: 403, Header: http.Header{}}
	blocked, bt := DetectBlock(resp, []byte("<html><body>Access Denied</body></html>"))
	assert.True(t, blocked)
	assert.Equal(t, BlockForbidden, bt)
}

func TestDetectBlock_Plain404IsNotBlock(t *testing.T) {
	resp := &http.Response{StatusCode: 404, Header: http.Header{}}
	blocked, bt := DetectBlock(resp, []byte("<html><body>Page not found</body></html>"))
	assert.False(t, blocked)
	assert.Equal(t, BlockNone, bt)
}

func TestDetectBlock_JSShell(t *testing.T) {
	resp := &http.Response{
		StatusCode: 200,
		Header:     http.Header{},
	}
	body := []byte("<html><noscript>Enable JavaScript to continue</noscript></html>")
	blocked, bt := DetectBlock(resp, body)
	assert.True(t, blocked)
	assert.Equal(t, BlockJSShell, bt)
}

func TestDetectBlock_NilResponse(t *testing.T) {
	blocked, bt := DetectBlock(nil, nil)
	assert.False(t, blocked)
	assert.Equal(t, BlockNone, bt)
}

func TestDetectBlock_CleanPage(t *testing.T) {
	resp := &http.Response{
		StatusCode: 200,
		Header:     http.Header{},
	}
	body := []byte("<html><body>Welcome to Acme Corp. Call us at +1 415 555 0100.</body></html>")
	blocked, bt := DetectBlock(resp, body)
	assert.False(t, blocked)
	assert.Equal(t, BlockNone, bt)
}
