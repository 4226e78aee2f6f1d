package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/contact-scraper/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "contacts.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Concurrent workers checkpoint through one connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL DEFAULT 'pending',
	total       INTEGER NOT NULL DEFAULT 0,
	counts      TEXT,
	error       TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS run_results (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	idx           INTEGER NOT NULL,
	company       TEXT NOT NULL,
	website       TEXT NOT NULL DEFAULT '',
	emails        TEXT NOT NULL DEFAULT '[]',
	phones        TEXT NOT NULL DEFAULT '[]',
	status        TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL DEFAULT '',
	pages_fetched INTEGER NOT NULL DEFAULT 0,
	saved_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, source string, total int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, state, total, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, source, string(model.RunRunning), total, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Source:    source,
		State:     model.RunRunning,
		Total:     total,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) SaveResult(ctx context.Context, runID string, index int, r model.ContactResult) error {
	emails, phones, err := marshalLists(r)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_results (run_id, idx, company, website, emails, phones, status, error, provider, pages_fetched, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, idx) DO UPDATE SET
			company = excluded.company,
			website = excluded.website,
			emails = excluded.emails,
			phones = excluded.phones,
			status = excluded.status,
			error = excluded.error,
			provider = excluded.provider,
			pages_fetched = excluded.pages_fetched,
			saved_at = excluded.saved_at`,
		runID, index, r.Company, r.Website, emails, phones, string(r.Status), r.Error, r.Provider, r.PagesFetched, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save result %s/%d", runID, index)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE runs SET updated_at = ? WHERE id = ?`, now, runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, f Finish) error {
	counts, err := json.Marshal(f.Counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counts")
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, counts = ?, error = ?, updated_at = ?, finished_at = ? WHERE id = ?`,
		string(f.State), string(counts), f.Error, now, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const sqliteRunColumns = `id, source, state, total,
	(SELECT COUNT(*) FROM run_results rr WHERE rr.run_id = runs.id),
	counts, error, created_at, updated_at, finished_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) LoadResults(ctx context.Context, runID string) ([]model.ContactResult, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT company, website, emails, phones, status, error, provider, pages_fetched
		FROM run_results WHERE run_id = ? ORDER BY idx`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load results %s", runID)
	}
	defer rows.Close()

	out := []model.ContactResult{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: load results iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r        model.Run
		state    string
		counts   sql.NullString
		finished sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Source, &state, &r.Total, &r.Processed, &counts, &r.Error, &r.CreatedAt, &r.UpdatedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.State = model.RunState(state)
	if counts.Valid && counts.String != "" {
		if err := json.Unmarshal([]byte(counts.String), &r.Counts); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal counts")
		}
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

func scanResult(row scannable) (model.ContactResult, error) {
	var (
		r              model.ContactResult
		emails, phones string
		status         string
	)
	if err := row.Scan(&r.Company, &r.Website, &emails, &phones, &status, &r.Error, &r.Provider, &r.PagesFetched); err != nil {
		return r, eris.Wrap(err, "store: scan result")
	}
	r.Status = model.Status(status)
	if err := unmarshalLists(&r, emails, phones); err != nil {
		return r, err
	}
	return r, nil
}

func marshalLists(r model.ContactResult) (string, string, error) {
	emails := r.Emails
	if emails == nil {
		emails = []string{}
	}
	phones := r.Phones
	if phones == nil {
		phones = []string{}
	}
	e, err := json.Marshal(emails)
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal emails")
	}
	p, err := json.Marshal(phones)
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal phones")
	}
	return string(e), string(p), nil
}

func unmarshalLists(r *model.ContactResult, emails, phones string) error {
	r.Emails, r.Phones = []string{}, []string{}
	if err := json.Unmarshal([]byte(emails), &r.Emails); err != nil {
		return eris.Wrap(err, "store: unmarshal emails")
	}
	if err := json.Unmarshal([]byte(phones), &r.Phones); err != nil {
		return eris.Wrap(err, "store: unmarshal phones")
	}
	return nil
}
