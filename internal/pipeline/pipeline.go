// Package pipeline turns company records into contact results: resolve the
// website, fetch its contact pages, extract and classify.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-scraper/internal/extract"
	"github.com/sells-group/contact-scraper/internal/model"
	"github.com/sells-group/contact-scraper/internal/scrape"
	"github.com/sells-group/contact-scraper/internal/search"
)

// Resolver finds a company's website.
type Resolver interface {
	Resolve(ctx context.Context, rec model.CompanyRecord) (*model.SearchCandidate, error)
}

// SiteFetcher downloads a website's homepage and contact pages.
type SiteFetcher interface {
	FetchSite(ctx context.Context, homepage string) (*scrape.SiteResult, error)
}

// BlockRecorder receives block outcomes for cooldown decisions.
type BlockRecorder interface {
	RecordBlock(ctx context.Context) error
	RecordSuccess()
}

// EmailVerifier drops emails whose domain cannot receive mail.
type EmailVerifier interface {
	Filter(ctx context.Context, emails []string) []string
}

// ErrSiteUnreachable marks a resolved website whose homepage failed.
var ErrSiteUnreachable = eris.New("site unreachable")

// Pipeline processes one company at a time. It is safe for concurrent use
// when its dependencies are.
type Pipeline struct {
	resolver Resolver
	sites    SiteFetcher
	opts     extract.Options
	blocks   BlockRecorder
	verifier EmailVerifier
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBlockRecorder feeds block outcomes to r (usually the pacing
// controller).
func WithBlockRecorder(r BlockRecorder) Option {
	return func(p *Pipeline) { p.blocks = r }
}

// WithEmailVerifier filters extracted emails through v.
func WithEmailVerifier(v EmailVerifier) Option {
	return func(p *Pipeline) { p.verifier = v }
}

// New creates a Pipeline.
func New(resolver Resolver, sites SiteFetcher, opts extract.Options, options ...Option) *Pipeline {
	p := &Pipeline{resolver: resolver, sites: sites, opts: opts}
	for _, o := range options {
		o(p)
	}
	return p
}

// ProcessCompany runs one record through the pipeline. It never fails:
// every problem, including a panic, becomes an Error row.
func (p *Pipeline) ProcessCompany(ctx context.Context, rec model.CompanyRecord) model.ContactResult {
	return p.process(ctx, rec, nil)
}

func (p *Pipeline) process(ctx context.Context, rec model.CompanyRecord, onState func(model.CompanyState)) (res model.ContactResult) {
	if onState == nil {
		onState = func(model.CompanyState) {}
	}
	log := zap.L().With(zap.String("company", rec.Name), zap.Int("row", rec.Row))
	start := time.Now()
	website := ""

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline: panic while processing company", zap.Any("panic", r), zap.Stack("stack"))
			res = model.ErrorResult(rec, website, eris.Errorf("internal error: %v", r))
		}
		if err := res.Validate(); err != nil {
			log.Warn("pipeline: result violates status invariants", zap.Error(err))
		}
		log.Info("pipeline: company done",
			zap.String("status", string(res.Status)),
			zap.String("website", res.Website),
			zap.Int("emails", len(res.Emails)),
			zap.Int("phones", len(res.Phones)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()

	if rec.Query() == "" {
		return model.SkippedResult(rec)
	}

	onState(model.CompanySearching)
	cand, err := p.resolver.Resolve(ctx, rec)
	if err != nil {
		log.Warn("pipeline: search failed", zap.Error(err))
		if errors.Is(err, search.ErrBlocked) && ctx.Err() == nil {
			p.recordBlock(ctx, log)
			return model.ContactResult{
				Company: rec.Name,
				Website: model.NotFoundWebsite,
				Emails:  []string{},
				Phones:  []string{},
				Status:  model.StatusBlocked,
				Error:   err.Error(),
			}
		}
		return model.ErrorResult(rec, model.NotFoundWebsite, err)
	}
	if cand == nil {
		onState(model.CompanyNotFound)
		return model.NotFoundResult(rec)
	}
	website = cand.URL
	onState(model.CompanyFound)

	onState(model.CompanyFetching)
	site, err := p.sites.FetchSite(ctx, cand.Target())
	if err != nil {
		return model.ErrorResult(rec, website, eris.Wrap(err, "fetch site"))
	}

	res = model.ContactResult{
		Company:      rec.Name,
		Website:      website,
		Emails:       []string{},
		Phones:       []string{},
		Provider:     cand.Provider,
		PagesFetched: len(site.Pages),
	}

	switch {
	case site.Unreachable:
		res.Status = model.StatusError
		res.Error = ErrSiteUnreachable.Error()
		if site.Homepage != nil && site.Homepage.Error != "" {
			log.Debug("pipeline: homepage failed", zap.String("reason", site.Homepage.Error))
		}
		return res
	case site.Blocked:
		res.Status = model.StatusBlocked
		res.Error = "blocked: " + site.BlockType
		p.recordBlock(ctx, log)
		return res
	case site.BlockedPages > 0:
		p.recordBlock(ctx, log)
	default:
		if p.blocks != nil {
			p.blocks.RecordSuccess()
		}
	}

	primary := cand.Domain
	if site.Homepage != nil && site.Homepage.FinalURL != "" {
		primary = scrape.RegistrableDomain(site.Homepage.FinalURL)
	}
	sets := make([]extract.Contacts, 0, len(site.Pages))
	for _, page := range site.Pages {
		sets = append(sets, extract.ExtractContacts(page.HTML, "", p.opts))
	}
	contacts := extract.Merge(primary, sets...)

	if p.verifier != nil && len(contacts.Emails) > 0 {
		contacts.Emails = p.verifier.Filter(ctx, contacts.Emails)
	}

	res.Emails = contacts.Emails
	res.Phones = contacts.Phones
	if res.HasContacts() {
		res.Status = model.StatusOK
	} else {
		res.Status = model.StatusNoContacts
	}
	return res
}

func (p *Pipeline) recordBlock(ctx context.Context, log *zap.Logger) {
	if p.blocks == nil {
		return
	}
	if err := p.blocks.RecordBlock(ctx); err != nil {
		log.Debug("pipeline: block cooldown interrupted", zap.Error(err))
	}
}
