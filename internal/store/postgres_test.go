package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-scraper/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var runColumns = []string{"id", "source", "state", "total", "processed", "counts", "error", "created_at", "updated_at", "finished_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "companies.xlsx", string(model.RunRunning), 5, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "companies.xlsx", 5)
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)
	assert.Equal(t, 5, run.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResult_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`(?s)INSERT INTO run_results .* ON CONFLICT \(run_id, idx\) DO UPDATE`).
		WithArgs("run-1", 4, "Acme", "https://acme.com/", `["info@acme.com"]`, `[]`, "OK", "", "", 0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE runs SET updated_at = \$1 WHERE id = \$2`).
		WithArgs(pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.SaveResult(context.Background(), "run-1", 4, model.ContactResult{
		Company: "Acme",
		Website: "https://acme.com/",
		Emails:  []string{"info@acme.com"},
		Status:  model.StatusOK,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET state = \$1`).
		WithArgs(string(model.RunCompleted), pgxmock.AnyArg(), "", pgxmock.AnyArg(), pgxmock.AnyArg(), "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), "nope", Finish{State: model.RunCompleted})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	finished := now.Add(time.Minute)

	mock.ExpectQuery(`(?s)SELECT id, source, state, total,.* FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runColumns).AddRow(
			"run-1", "in.xlsx", "completed", 10, 10, []byte(`{"OK":7,"NotFound":3}`), "", now, now, &finished,
		))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.State)
	assert.Equal(t, 10, run.Processed)
	assert.Equal(t, 7, run.Counts[model.StatusOK])
	require.NotNil(t, run.FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_FilterByState(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE state = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("running", 100, 0).
		WillReturnRows(pgxmock.NewRows(runColumns))

	runs, err := s.ListRuns(context.Background(), RunFilter{State: model.RunRunning})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadResults(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runColumns).AddRow(
			"run-1", "in.xlsx", "running", 2, 2, []byte(nil), "", now, now, (*time.Time)(nil),
		))
	mock.ExpectQuery(`FROM run_results WHERE run_id = \$1 ORDER BY idx`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"company", "website", "emails", "phones", "status", "error", "provider", "pages_fetched"}).
			AddRow("Acme", "https://acme.com/", `["a@acme.com"]`, `["+44 20 7946 0958"]`, "OK", "", "jina", 2).
			AddRow("Ghost", "Not Found", `[]`, `[]`, "NotFound", "", "", 0))

	results, err := s.LoadResults(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"+44 20 7946 0958"}, results[0].Phones)
	assert.Equal(t, model.StatusNotFound, results[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
