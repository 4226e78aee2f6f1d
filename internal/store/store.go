package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-scraper/internal/config"
	"github.com/sells-group/contact-scraper/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	State  model.RunState `json:"state,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Offset int            `json:"offset,omitempty"`
}

// Finish is the terminal summary written by FinishRun.
type Finish struct {
	State  model.RunState
	Counts map[model.Status]int
	Error  string
}

// Store checkpoints run output. Nothing read back from it feeds a later
// run's resolution.
type Store interface {
	CreateRun(ctx context.Context, source string, total int) (*model.Run, error)
	// SaveResult upserts the row at index.
	SaveResult(ctx context.Context, runID string, index int, r model.ContactResult) error
	FinishRun(ctx context.Context, runID string, f Finish) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	// LoadResults returns the saved rows in input order.
	LoadResults(ctx context.Context, runID string) ([]model.ContactResult, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open builds and migrates the store selected by cfg.Driver. The "none"
// driver returns a nil Store and no error.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return nil, nil
	case "sqlite":
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres", "postgresql":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func listLimit(f RunFilter) int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}
