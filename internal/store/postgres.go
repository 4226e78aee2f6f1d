package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-scraper/internal/model"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on each new connection.
var preparedStatements = map[string]string{
	"insert_run":  `INSERT INTO runs (id, source, state, total, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"save_result": postgresSaveResult,
	"touch_run":   `UPDATE runs SET updated_at = $1 WHERE id = $2`,
	"get_run":     `SELECT ` + postgresRunColumns + ` FROM runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// The tables may not exist before the first Migrate.
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
					continue
				}
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source      TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL DEFAULT 'pending',
	total       INTEGER NOT NULL DEFAULT 0,
	counts      JSONB,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS run_results (
	run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	idx           INTEGER NOT NULL,
	company       TEXT NOT NULL,
	website       TEXT NOT NULL DEFAULT '',
	emails        JSONB NOT NULL DEFAULT '[]',
	phones        JSONB NOT NULL DEFAULT '[]',
	status        TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL DEFAULT '',
	pages_fetched INTEGER NOT NULL DEFAULT 0,
	saved_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

const postgresSaveResult = `INSERT INTO run_results (run_id, idx, company, website, emails, phones, status, error, provider, pages_fetched, saved_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (run_id, idx) DO UPDATE SET
		company = EXCLUDED.company,
		website = EXCLUDED.website,
		emails = EXCLUDED.emails,
		phones = EXCLUDED.phones,
		status = EXCLUDED.status,
		error = EXCLUDED.error,
		provider = EXCLUDED.provider,
		pages_fetched = EXCLUDED.pages_fetched,
		saved_at = EXCLUDED.saved_at`

const postgresRunColumns = `id, source, state, total,
	(SELECT COUNT(*) FROM run_results rr WHERE rr.run_id = runs.id)::int,
	counts, error, created_at, updated_at, finished_at`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, source string, total int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, source, state, total, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, source, string(model.RunRunning), total, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) SaveResult(ctx context.Context, runID string, index int, r model.ContactResult) error {
	emails, phones, err := marshalLists(r)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx, postgresSaveResult,
		runID, index, r.Company, r.Website, emails, phones, string(r.Status), r.Error, r.Provider, r.PagesFetched, now,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save result %s/%d", runID, index)
	}

	tag, err := s.pool.Exec(ctx, `UPDATE runs SET updated_at = $1 WHERE id = $2`, now, runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch run %s", runID)
	}
	return checkTag(tag, "run", runID)
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, f Finish) error {
	counts, err := json.Marshal(f.Counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal counts")
	}
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET state = $1, counts = $2, error = $3, updated_at = $4, finished_at = $5 WHERE id = $6`,
		string(f.State), string(counts), f.Error, now, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	return checkTag(tag, "run", runID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanPgRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs`
	args := []any{}
	if filter.State != "" {
		args = append(args, string(filter.State))
		query += ` WHERE state = $1`
	}
	args = append(args, listLimit(filter), filter.Offset)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) LoadResults(ctx context.Context, runID string) ([]model.ContactResult, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT company, website, emails::text, phones::text, status, error, provider, pages_fetched
		FROM run_results WHERE run_id = $1 ORDER BY idx`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load results %s", runID)
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
	return out, eris.Wrap(rows.Err(), "postgres: load results iterate")
}

func checkTag(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func scanPgRun(row scannable) (*model.Run, error) {
	var (
		r        model.Run
		state    string
		counts   []byte
		finished *time.Time
	)
	err := row.Scan(&r.ID, &r.Source, &state, &r.Total, &r.Processed, &counts, &r.Error, &r.CreatedAt, &r.UpdatedAt, &finished)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	r.State = model.RunState(state)
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &r.Counts); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal counts")
		}
	}
	r.FinishedAt = finished
	return &r, nil
}
