// Package server exposes batch runs over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-scraper/internal/model"
	"github.com/sells-group/contact-scraper/internal/pipeline"
	"github.com/sells-group/contact-scraper/internal/sheet"
	"github.com/sells-group/contact-scraper/internal/store"
)

// Engine executes one batch run.
type Engine interface {
	Run(ctx context.Context, records []model.CompanyRecord, opts pipeline.RunOptions) (*pipeline.RunReport, error)
}

// Options configures the API.
type Options struct {
	AllowedOrigins     []string
	MaxUploadBytes     int64
	DefaultConcurrency int
	MaxConcurrency     int
	ListSep            string
	// RetainFinished is how long a finished run stays in memory after its
	// final state reached the store. Runs without a store are never evicted.
	RetainFinished time.Duration
}

// Server holds the in-memory run registry. Runs execute in background
// goroutines bound to the context passed to New.
type Server struct {
	ctx    context.Context
	engine Engine
	store  store.Store
	opts   Options

	mu   sync.Mutex
	runs map[string]*runEntry
	wg   sync.WaitGroup
}

type runEntry struct {
	rc      *pipeline.RunContext
	source  string
	total   int
	created time.Time
	report  *pipeline.RunReport
	err     error
	// persisted is when FinishRun succeeded; zero until then.
	persisted time.Time
}

// RunStatus is the JSON view of a run.
type RunStatus struct {
	ID         string               `json:"id"`
	Source     string               `json:"source"`
	State      model.RunState       `json:"state"`
	Total      int                  `json:"total"`
	Processed  int                  `json:"processed"`
	Counts     map[model.Status]int `json:"counts"`
	Error      string               `json:"error,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
}

// New creates a Server. st may be nil, in which case runs live only in
// memory.
func New(ctx context.Context, engine Engine, st store.Store, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if opts.DefaultConcurrency < 1 {
		opts.DefaultConcurrency = 1
	}
	if opts.MaxConcurrency < opts.DefaultConcurrency {
		opts.MaxConcurrency = max(opts.DefaultConcurrency, 12)
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RetainFinished <= 0 {
		opts.RetainFinished = time.Hour
	}
	return &Server{
		ctx:    ctx,
		engine: engine,
		store:  st,
		opts:   opts,
		runs:   make(map[string]*runEntry),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Post("/", s.handleCreateRun)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Post("/stop", s.handleStopRun)
			r.Get("/results", s.handleResults)
		})
	})
	return r
}

// Wait blocks until every background run has returned.
func (s *Server) Wait() { s.wg.Wait() }

// StopAll asks every active run to stop.
func (s *Server) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.runs {
		e.rc.Stop()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	concurrency := s.opts.DefaultConcurrency
	if v := r.FormValue("concurrency"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > s.opts.MaxConcurrency {
			writeError(w, http.StatusBadRequest, "concurrency must be between 1 and "+strconv.Itoa(s.opts.MaxConcurrency))
			return
		}
		concurrency = n
	}

	records, err := sheet.Load(hdr.Filename, data, sheet.LoadOptions{
		Column: r.FormValue("column"),
		Header: r.FormValue("header") == "true",
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.newRunID(r.Context(), hdr.Filename, len(records))
	if err != nil {
		zap.L().Error("server: create run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create run")
		return
	}

	entry := &runEntry{
		rc:      pipeline.NewRunContext(id, len(records)),
		source:  hdr.Filename,
		total:   len(records),
		created: time.Now().UTC(),
	}
	s.prune(time.Now())
	s.mu.Lock()
	s.runs[id] = entry
	s.mu.Unlock()

	s.wg.Add(1)
	go s.execute(entry, records, concurrency)

	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "total": len(records)})
}

func (s *Server) newRunID(ctx context.Context, source string, total int) (string, error) {
	if s.store == nil {
		return uuid.New().String(), nil
	}
	run, err := s.store.CreateRun(ctx, source, total)
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

func (s *Server) execute(e *runEntry, records []model.CompanyRecord, concurrency int) {
	defer s.wg.Done()

	opts := pipeline.RunOptions{Concurrency: concurrency, RunContext: e.rc}
	if s.store != nil {
		opts.Checkpoint = s.store
	}
	report, err := s.engine.Run(s.ctx, records, opts)

	s.mu.Lock()
	e.report, e.err = report, err
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	fin := store.Finish{State: e.rc.State(), Counts: e.rc.Table().Counts()}
	if err != nil {
		fin.State = model.RunFailed
		fin.Error = err.Error()
	}
	// The request context is gone; the base context may be cancelled too.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 10*time.Second)
	defer cancel()
	if err := s.store.FinishRun(ctx, e.rc.ID, fin); err != nil {
		zap.L().Warn("server: finish run failed", zap.String("run_id", e.rc.ID), zap.Error(err))
		return
	}
	s.mu.Lock()
	e.persisted = time.Now()
	s.mu.Unlock()
}

// prune drops finished runs that have been in the store for longer than
// RetainFinished. Lookups for them fall back to the store.
func (s *Server) prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.runs {
		if e.persisted.IsZero() || now.Sub(e.persisted) < s.opts.RetainFinished {
			continue
		}
		delete(s.runs, id)
		n++
	}
	if n > 0 {
		zap.L().Debug("server: evicted finished runs", zap.Int("count", n))
	}
	return n
}

func (s *Server) lookup(id string) *runEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

func (s *Server) status(e *runEntry) RunStatus {
	st := RunStatus{
		ID:        e.rc.ID,
		Source:    e.source,
		State:     e.rc.State(),
		Total:     e.total,
		Processed: e.rc.Table().Completed(),
		Counts:    e.rc.Table().Counts(),
		CreatedAt: e.created,
	}
	s.mu.Lock()
	if e.err != nil {
		st.Error = e.err.Error()
	}
	s.mu.Unlock()
	if _, finished := e.rc.Times(); !finished.IsZero() {
		st.FinishedAt = &finished
	}
	return st
}

func fromStored(run *model.Run) RunStatus {
	return RunStatus{
		ID:         run.ID,
		Source:     run.Source,
		State:      run.State,
		Total:      run.Total,
		Processed:  run.Processed,
		Counts:     run.Counts,
		Error:      run.Error,
		CreatedAt:  run.CreatedAt,
		FinishedAt: run.FinishedAt,
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	s.prune(time.Now())
	s.mu.Lock()
	entries := make([]*runEntry, 0, len(s.runs))
	for _, e := range s.runs {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]RunStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.status(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if e := s.lookup(id); e != nil {
		writeJSON(w, http.StatusOK, s.status(e))
		return
	}
	if s.store != nil {
		run, err := s.store.GetRun(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, fromStored(run))
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Error("server: get run failed", zap.String("run_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not load run")
			return
		}
	}
	writeError(w, http.StatusNotFound, "run not found")
}

func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e := s.lookup(id)
	if e == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if e.rc.State().Terminal() {
		writeError(w, http.StatusConflict, "run already finished")
		return
	}
	e.rc.Stop()
	zap.L().Info("server: stop requested", zap.String("run_id", id))
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "state": e.rc.State()})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format, err := sheet.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var results []model.ContactResult
	if e := s.lookup(id); e != nil {
		results = e.rc.Snapshot()
	} else if s.store != nil {
		results, err = s.store.LoadResults(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			zap.L().Error("server: load results failed", zap.String("run_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not load results")
			return
		}
	} else {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="contacts-`+id+format.Ext()+`"`)
	if err := sheet.Export(w, results, sheet.ExportOptions{Format: format, ListSep: s.opts.ListSep}); err != nil {
		zap.L().Error("server: export failed", zap.String("run_id", id), zap.Error(eris.Wrap(err, "export")))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
