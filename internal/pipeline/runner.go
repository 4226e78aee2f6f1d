package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/contact-scraper/internal/model"
)

// CompanyProcessor turns one record into a result, reporting intermediate
// states through onState (which may be nil).
type CompanyProcessor interface {
	Process(ctx context.Context, rec model.CompanyRecord, onState func(model.CompanyState)) model.ContactResult
}

// Process implements CompanyProcessor.
func (p *Pipeline) Process(ctx context.Context, rec model.CompanyRecord, onState func(model.CompanyState)) model.ContactResult {
	return p.process(ctx, rec, onState)
}

// BatchPacer is told when each company finishes.
type BatchPacer interface {
	CompanyDone(ctx context.Context) error
}

// Checkpointer persists each finished row as soon as it exists.
type Checkpointer interface {
	SaveResult(ctx context.Context, runID string, index int, r model.ContactResult) error
}

// Progress is one progress event.
type Progress struct {
	Index   int                  `json:"index"`
	Total   int                  `json:"total"`
	Done    int                  `json:"done"`
	Company string               `json:"company"`
	State   model.CompanyState   `json:"state"`
	Result  *model.ContactResult `json:"result,omitempty"`
}

// ProgressFunc receives progress events. Calls are serialized.
type ProgressFunc func(Progress)

// RunContext is the control surface of one run: stop token, result table
// and state. A run owns exactly one RunContext.
type RunContext struct {
	ID    string
	table *model.ResultTable
	stop  chan struct{}
	once  sync.Once

	mu       sync.Mutex
	state    model.RunState
	started  time.Time
	finished time.Time
}

// NewRunContext prepares a run over total records.
func NewRunContext(id string, total int) *RunContext {
	return &RunContext{
		ID:    id,
		table: model.NewResultTable(total),
		stop:  make(chan struct{}),
		state: model.RunPending,
	}
}

// Stop requests a cooperative stop: in-flight companies finish, no new
// company starts. Safe to call more than once.
func (rc *RunContext) Stop() {
	rc.once.Do(func() {
		close(rc.stop)
		rc.mu.Lock()
		if rc.state == model.RunRunning || rc.state == model.RunPending {
			rc.state = model.RunStopping
		}
		rc.mu.Unlock()
	})
}

// Stopped reports whether Stop was called.
func (rc *RunContext) Stopped() bool {
	select {
	case <-rc.stop:
		return true
	default:
		return false
	}
}

// State returns the current run state.
func (rc *RunContext) State() model.RunState {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

func (rc *RunContext) setState(s model.RunState) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if s == model.RunRunning && rc.state == model.RunStopping {
		return
	}
	rc.state = s
	now := time.Now()
	if s == model.RunRunning {
		rc.started = now
	}
	if s.Terminal() {
		rc.finished = now
	}
}

// Times returns when the run started and finished. Either is zero until
// it happens.
func (rc *RunContext) Times() (started, finished time.Time) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.started, rc.finished
}

// Table is the live result table.
func (rc *RunContext) Table() *model.ResultTable { return rc.table }

// Snapshot returns the rows finished so far, in input order.
func (rc *RunContext) Snapshot() []model.ContactResult { return rc.table.Snapshot() }

// RunOptions configures Runner.Run.
type RunOptions struct {
	// Concurrency above 1 processes companies in a bounded worker pool.
	Concurrency int
	// RunContext is created when nil.
	RunContext *RunContext
	Progress   ProgressFunc
	Checkpoint Checkpointer
}

// RunReport summarizes a finished run.
type RunReport struct {
	ID        string                `json:"id"`
	State     model.RunState        `json:"state"`
	Total     int                   `json:"total"`
	Processed int                   `json:"processed"`
	Counts    map[model.Status]int  `json:"counts"`
	Results   []model.ContactResult `json:"results"`
	Duration  time.Duration         `json:"duration"`
}

// Runner drives a batch of records through a CompanyProcessor.
type Runner struct {
	processor CompanyProcessor
	pacer     BatchPacer
}

// NewRunner creates a Runner. pacer may be nil.
func NewRunner(processor CompanyProcessor, pacer BatchPacer) *Runner {
	return &Runner{processor: processor, pacer: pacer}
}

// Run processes records and returns once every started company finished.
// Stop (or ctx cancellation) ends the run early with StoppedByUser; the
// report then holds the rows finished so far.
func (r *Runner) Run(ctx context.Context, records []model.CompanyRecord, opts RunOptions) (*RunReport, error) {
	rc := opts.RunContext
	if rc == nil {
		rc = NewRunContext("", len(records))
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var progressMu sync.Mutex
	report := func(p Progress) {
		if opts.Progress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		p.Total = len(records)
		p.Done = rc.table.Completed()
		opts.Progress(p)
	}

	rc.setState(model.RunRunning)
	start := time.Now()
	zap.L().Info("pipeline: run started",
		zap.String("run_id", rc.ID),
		zap.Int("companies", len(records)),
		zap.Int("concurrency", concurrency),
	)

	halted := func() bool { return rc.Stopped() || ctx.Err() != nil }

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, rec := range records {
		if halted() {
			break
		}
		g.Go(func() error {
			// The slot may have opened only after a stop request.
			if halted() {
				return nil
			}
			onState := func(s model.CompanyState) {
				report(Progress{Index: i, Company: rec.Name, State: s})
			}
			res := r.processor.Process(ctx, rec, onState)

			if ctx.Err() != nil && res.Status == model.StatusError {
				// Interrupted mid-flight; leave the row unfilled.
				return nil
			}
			rc.table.Set(i, res)

			if opts.Checkpoint != nil {
				if err := opts.Checkpoint.SaveResult(ctx, rc.ID, i, res); err != nil {
					zap.L().Warn("pipeline: checkpoint failed",
						zap.String("run_id", rc.ID),
						zap.Int("index", i),
						zap.Error(err),
					)
				}
			}
			report(Progress{Index: i, Company: rec.Name, State: model.StateForStatus(res.Status), Result: &res})

			if r.pacer != nil && !halted() {
				if err := r.pacer.CompanyDone(ctx); err != nil {
					zap.L().Debug("pipeline: cooldown interrupted", zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	final := model.RunCompleted
	if halted() && rc.table.Completed() < len(records) {
		final = model.RunStoppedByUser
	}
	rc.setState(final)

	out := &RunReport{
		ID:        rc.ID,
		State:     final,
		Total:     len(records),
		Processed: rc.table.Completed(),
		Counts:    rc.table.Counts(),
		Results:   rc.table.Snapshot(),
		Duration:  time.Since(start),
	}
	zap.L().Info("pipeline: run finished",
		zap.String("run_id", rc.ID),
		zap.String("state", string(final)),
		zap.Int("processed", out.Processed),
		zap.Int("total", out.Total),
		zap.Duration("duration", out.Duration),
	)
	return out, nil
}
