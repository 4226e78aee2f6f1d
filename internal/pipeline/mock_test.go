package pipeline

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/contact-scraper/internal/model"
	"github.com/sells-group/contact-scraper/internal/scrape"
)

// --- Resolver Mock ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, rec model.CompanyRecord) (*model.SearchCandidate, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SearchCandidate), args.Error(1)
}

// --- SiteFetcher Mock ---

type mockSiteFetcher struct {
	mock.Mock
}

func (m *mockSiteFetcher) FetchSite(ctx context.Context, homepage string) (*scrape.SiteResult, error) {
	args := m.Called(ctx, homepage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scrape.SiteResult), args.Error(1)
}

// --- BlockRecorder Mock ---

type mockBlockRecorder struct {
	mock.Mock
}

func (m *mockBlockRecorder) RecordBlock(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockBlockRecorder) RecordSuccess() {
	m.Called()
}

// --- EmailVerifier Mock ---

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Filter(ctx context.Context, emails []string) []string {
	return m.Called(ctx, emails).Get(0).([]string)
}

// --- Checkpointer fake ---

type memCheckpoint struct {
	mu   sync.Mutex
	rows map[int]model.ContactResult
	ids  map[string]bool
}

func newMemCheckpoint() *memCheckpoint {
	return &memCheckpoint{rows: map[int]model.ContactResult{}, ids: map[string]bool{}}
}

func (c *memCheckpoint) SaveResult(_ context.Context, runID string, index int, r model.ContactResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[index] = r
	c.ids[runID] = true
	return nil
}
