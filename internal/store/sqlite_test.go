package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-scraper/internal/config"
	"github.com/sells-group/contact-scraper/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "companies.xlsx", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunRunning, run.State)

	require.NoError(t, st.SaveResult(ctx, run.ID, 2, model.NotFoundResult(model.CompanyRecord{Name: "Ghost"})))
	require.NoError(t, st.SaveResult(ctx, run.ID, 0, model.ContactResult{
		Company:      "Acme",
		Website:      "https://acme.com/",
		Emails:       []string{"info@acme.com"},
		Phones:       []string{"+1 415 555 0100"},
		Status:       model.StatusOK,
		Provider:     "duckduckgo",
		PagesFetched: 3,
	}))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Processed)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, "companies.xlsx", got.Source)
	assert.Nil(t, got.FinishedAt)

	require.NoError(t, st.FinishRun(ctx, run.ID, Finish{
		State:  model.RunStoppedByUser,
		Counts: map[model.Status]int{model.StatusOK: 1, model.StatusNotFound: 1},
	}))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStoppedByUser, got.State)
	assert.Equal(t, 1, got.Counts[model.StatusOK])
	require.NotNil(t, got.FinishedAt)

	results, err := st.LoadResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Acme", results[0].Company)
	assert.Equal(t, []string{"info@acme.com"}, results[0].Emails)
	assert.Equal(t, "duckduckgo", results[0].Provider)
	assert.Equal(t, 3, results[0].PagesFetched)
	assert.Equal(t, model.StatusNotFound, results[1].Status)
	assert.Equal(t, []string{}, results[1].Emails)
}

func TestSQLite_SaveResultUpserts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "x.csv", 1)
	require.NoError(t, err)

	rec := model.CompanyRecord{Name: "Acme"}
	require.NoError(t, st.SaveResult(ctx, run.ID, 0, model.ErrorResult(rec, "", assert.AnError)))
	require.NoError(t, st.SaveResult(ctx, run.ID, 0, model.NotFoundResult(rec)))

	results, err := st.LoadResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.StatusNotFound, results[0].Status)
	assert.Empty(t, results[0].Error)
}

func TestSQLite_UnknownRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = st.FinishRun(ctx, "missing", Finish{State: model.RunCompleted})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.LoadResults(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateRun(ctx, "a.xlsx", 1)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "b.xlsx", 2)
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, a.ID, Finish{State: model.RunCompleted}))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	done, err := st.ListRuns(ctx, RunFilter{State: model.RunCompleted})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, a.ID, done[0].ID)

	page, err := st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, config.StoreConfig{Driver: "none"})
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = Open(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "open.db")})
	require.NoError(t, err)
	require.NotNil(t, st)
	_, err = st.CreateRun(ctx, "x", 0)
	assert.NoError(t, err)
	assert.NoError(t, st.Close())

	_, err = Open(ctx, config.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)
}
