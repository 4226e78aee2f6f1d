package search

import (
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-scraper/internal/config"
	"github.com/sells-group/contact-scraper/internal/resilience"
	"github.com/sells-group/contact-scraper/internal/scrape"
	"github.com/sells-group/contact-scraper/pkg/brave"
	"github.com/sells-group/contact-scraper/pkg/jina"
)

// BuildProviders instantiates cfg.Search.Providers in order. Keyed
// providers without a key are skipped with a warning; unknown names are
// an error.
func BuildProviders(cfg *config.Config) ([]Provider, error) {
	timeout := time.Duration(cfg.Search.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	hc := &http.Client{Timeout: timeout}
	agents := scrape.NewUserAgents(cfg.Fetch.UserAgents)

	var out []Provider
	for _, name := range cfg.Search.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "duckduckgo", "ddg":
			out = append(out, NewDuckDuckGo(cfg.Search.DuckDuckGoURL, hc, agents))
		case "jina":
			if cfg.Jina.Key == "" {
				zap.L().Warn("search: jina listed but no key set, skipping")
				continue
			}
			opts := []jina.Option{jina.WithHTTPClient(hc)}
			if cfg.Jina.SearchBaseURL != "" {
				opts = append(opts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
			}
			out = append(out, NewJina(jina.NewClient(cfg.Jina.Key, opts...)))
		case "brave":
			if cfg.Brave.Key == "" {
				zap.L().Warn("search: brave listed but no key set, skipping")
				continue
			}
			opts := []brave.Option{brave.WithHTTPClient(hc)}
			if cfg.Brave.BaseURL != "" {
				opts = append(opts, brave.WithBaseURL(cfg.Brave.BaseURL))
			}
			out = append(out, NewBrave(brave.NewClient(cfg.Brave.Key, opts...)))
		case "headless", "google":
			out = append(out, NewHeadless(cfg.Search.Headless, 2*timeout, agents))
		case "":
		default:
			return nil, eris.Errorf("search: unknown provider %q", name)
		}
	}
	if len(out) == 0 {
		return nil, eris.New("search: no usable providers configured")
	}
	return out, nil
}

// NewResolverFromConfig wires providers, denylist and breakers from cfg.
func NewResolverFromConfig(cfg *config.Config, pacer Pacer) (*Resolver, error) {
	providers, err := BuildProviders(cfg)
	if err != nil {
		return nil, err
	}

	deny := NewDenylist(cfg.Search.Denylist...)
	if cfg.Search.DenylistFile != "" {
		extra, err := LoadDenylistFile(cfg.Search.DenylistFile)
		if err != nil {
			return nil, err
		}
		deny.Add(extra...)
	}

	return NewResolver(providers, deny, ResolverOptions{
		QuerySuffix: cfg.Search.QuerySuffix,
		MaxResults:  cfg.Search.MaxResults,
		Pacer:       pacer,
		Breaker:     resilience.FromCircuitConfig(cfg.Search.BreakerFailures, cfg.Search.BreakerResetSecs),
	}), nil
}
