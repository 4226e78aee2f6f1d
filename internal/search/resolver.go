package search

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-scraper/internal/model"
	"github.com/sells-group/contact-scraper/internal/resilience"
	"github.com/sells-group/contact-scraper/internal/scrape"
)

// DefaultQuerySuffix is appended to every company query.
const DefaultQuerySuffix = "official website"

// Pacer is consulted before each provider call.
type Pacer interface {
	BeforeSearch(ctx context.Context) error
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	QuerySuffix string
	MaxResults  int
	Pacer       Pacer
	Breaker     resilience.CircuitBreakerConfig
}

// Resolver turns a company record into a website candidate.
type Resolver struct {
	providers   []Provider
	breakers    *resilience.ServiceBreakers
	denylist    *Denylist
	pacer       Pacer
	querySuffix string
	maxResults  int

	mu   sync.Mutex
	memo map[string]*model.SearchCandidate
}

// NewResolver creates a Resolver trying providers in order. A nil denylist
// uses NewDenylist().
func NewResolver(providers []Provider, denylist *Denylist, opts ResolverOptions) *Resolver {
	if denylist == nil {
		denylist = NewDenylist()
	}
	if opts.QuerySuffix == "" {
		opts.QuerySuffix = DefaultQuerySuffix
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	if opts.Breaker.FailureThreshold <= 0 {
		opts.Breaker = resilience.DefaultCircuitBreakerConfig()
	}
	if opts.Breaker.ShouldTrip == nil {
		// A cancelled run says nothing about the provider's health. Blocks
		// are left to the pacing cooldown.
		opts.Breaker.ShouldTrip = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) &&
				!errors.Is(err, ErrBlocked)
		}
	}
	return &Resolver{
		providers:   providers,
		breakers:    resilience.NewServiceBreakers(opts.Breaker),
		denylist:    denylist,
		pacer:       opts.Pacer,
		querySuffix: opts.QuerySuffix,
		maxResults:  opts.MaxResults,
		memo:        make(map[string]*model.SearchCandidate),
	}
}

// Providers returns provider names in fallback order.
func (r *Resolver) Providers() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// BreakerStates reports each provider's circuit state.
func (r *Resolver) BreakerStates() map[string]resilience.CircuitState {
	return r.breakers.States()
}

// BuildQuery returns "<name> [<country>] <suffix>".
func (r *Resolver) BuildQuery(rec model.CompanyRecord) string {
	parts := []string{rec.Query()}
	if c := strings.TrimSpace(rec.Country); c != "" {
		parts = append(parts, c)
	}
	parts = append(parts, r.querySuffix)
	return strings.Join(parts, " ")
}

// Resolve returns the first non-denylisted result from the first provider
// that yields one. (nil, nil) means the providers answered but nothing
// usable came back. ErrAllProvidersFailed means every provider raised; the
// error also matches ErrBlocked when one of them was blocked.
func (r *Resolver) Resolve(ctx context.Context, rec model.CompanyRecord) (*model.SearchCandidate, error) {
	if rec.Query() == "" {
		return nil, nil
	}
	query := r.BuildQuery(rec)
	key := strings.ToLower(query)

	r.mu.Lock()
	cached, ok := r.memo[key]
	r.mu.Unlock()
	if ok {
		if cached == nil {
			return nil, nil
		}
		c := *cached
		return &c, nil
	}

	if len(r.providers) == 0 {
		return nil, eris.Wrap(ErrAllProvidersFailed, "no providers configured")
	}

	var lastErr error
	failures, blocked := 0, false
	for _, p := range r.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		urls, err := resilience.ExecuteVal(ctx, r.breakers.Get(p.Name()), func(ctx context.Context) ([]string, error) {
			if r.pacer != nil {
				if err := r.pacer.BeforeSearch(ctx); err != nil {
					return nil, err
				}
			}
			return p.Search(ctx, query, r.maxResults)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			lastErr = err
			if errors.Is(err, ErrBlocked) {
				blocked = true
			}
			zap.L().Warn("search: provider failed",
				zap.String("provider", p.Name()),
				zap.String("query", query),
				zap.Error(err),
			)
			continue
		}

		if cand := r.pick(urls, p.Name()); cand != nil {
			zap.L().Debug("search: resolved",
				zap.String("query", query),
				zap.String("provider", p.Name()),
				zap.String("url", cand.URL),
				zap.Int("rank", cand.Rank),
			)
			r.remember(key, cand)
			c := *cand
			return &c, nil
		}
		zap.L().Debug("search: no usable result",
			zap.String("provider", p.Name()),
			zap.String("query", query),
			zap.Int("results", len(urls)),
		)
	}

	if failures == len(r.providers) {
		return nil, &chainError{blocked: blocked, last: lastErr}
	}
	r.remember(key, nil)
	return nil, nil
}

func (r *Resolver) remember(key string, cand *model.SearchCandidate) {
	r.mu.Lock()
	r.memo[key] = cand
	r.mu.Unlock()
}

// pick returns the first http(s) result that survives the denylist. URL
// keeps the provider's text; FetchURL is its normalized form.
func (r *Resolver) pick(urls []string, provider string) *model.SearchCandidate {
	for i, raw := range urls {
		lower := strings.ToLower(strings.TrimSpace(raw))
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			continue
		}
		if r.denylist.Blocked(raw) {
			continue
		}
		norm, err := scrape.NormalizeURL(raw)
		if err != nil {
			continue
		}
		return &model.SearchCandidate{
			URL:      strings.TrimSpace(raw),
			FetchURL: norm,
			Domain:   scrape.RegistrableDomain(norm),
			Provider: provider,
			Rank:     i + 1,
		}
	}
	return nil
}
