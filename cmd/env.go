package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-scraper/internal/extract"
	"github.com/sells-group/contact-scraper/internal/pacing"
	"github.com/sells-group/contact-scraper/internal/pipeline"
	"github.com/sells-group/contact-scraper/internal/scrape"
	"github.com/sells-group/contact-scraper/internal/search"
	"github.com/sells-group/contact-scraper/internal/store"
)

// scraperEnv holds everything the run/serve/resolve/extract commands need.
type scraperEnv struct {
	Store    store.Store // nil when store.driver is "none" or not requested
	Pacer    *pacing.Controller
	Resolver *search.Resolver
	Sites    *scrape.SiteFetcher
	Pipeline *pipeline.Pipeline
	Runner   *pipeline.Runner
}

// Close releases resources held by the environment.
func (e *scraperEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initScraper wires the resolver, fetcher, pacing controller and pipeline
// from cfg. The store is opened only when withStore is set. Callers should
// defer env.Close().
func initScraper(ctx context.Context, withStore bool) (*scraperEnv, error) {
	pacer := pacing.New(pacing.FromConfig(cfg.Pacing))

	resolver, err := search.NewResolverFromConfig(cfg, pacer)
	if err != nil {
		return nil, eris.Wrap(err, "build resolver")
	}

	sites := newSiteFetcher(pacer)

	extractOpts := extract.Options{
		MinPhoneDigits: cfg.Extract.MinPhoneDigits,
		MaxPhoneDigits: cfg.Extract.MaxPhoneDigits,
	}
	opts := []pipeline.Option{pipeline.WithBlockRecorder(pacer)}
	if cfg.Extract.VerifyMX {
		opts = append(opts, pipeline.WithEmailVerifier(extract.NewMXVerifier(cfg.Extract.DNSServers, 0)))
		zap.L().Info("mx verification enabled", zap.Strings("dns_servers", cfg.Extract.DNSServers))
	}
	p := pipeline.New(resolver, sites, extractOpts, opts...)

	env := &scraperEnv{
		Pacer:    pacer,
		Resolver: resolver,
		Sites:    sites,
		Pipeline: p,
		Runner:   pipeline.NewRunner(p, pacer),
	}

	if withStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}

	zap.L().Info("scraper initialized",
		zap.Strings("providers", resolver.Providers()),
		zap.Int("max_pages", cfg.Fetch.MaxPages),
		zap.String("store", cfg.Store.Driver),
	)
	return env, nil
}

func newSiteFetcher(pacer scrape.Pacer) *scrape.SiteFetcher {
	fetcher := scrape.NewHTTPFetcher(scrape.FetchOptions{
		Timeout:       time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries:    cfg.Fetch.MaxRetries,
		Backoff:       time.Duration(cfg.Fetch.InitialBackoffMs) * time.Millisecond,
		MaxBodyBytes:  cfg.Fetch.MaxBodyBytes,
		UserAgents:    cfg.Fetch.UserAgents,
		RespectRobots: cfg.Fetch.RespectRobots,
	}, scrape.WithPacer(pacer))

	return scrape.NewSiteFetcher(fetcher,
		cfg.Fetch.ContactPaths,
		scrape.NewPathMatcher(cfg.Fetch.ExcludePaths),
		cfg.Fetch.MaxPages,
	)
}

// initStore opens and migrates the configured checkpoint store. It returns
// nil for the "none" driver.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}
