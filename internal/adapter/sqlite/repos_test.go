package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/repository"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "scraper.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraper.db")
	db, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(context.Background(), path)
	require.NoError(t, err)
	defer db.Close()

	var version int
	require.NoError(t, db.Pool.QueryRow(`PRAGMA user_version;`).Scan(&version))
	assert.Equal(t, len(schema), version)
}

func TestJobRepo_ListAndDeleteCascade(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "new"} {
		spec := &entity.JobSpec{ID: id, Name: id, Type: entity.JobTypeAPIConnector, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, db.Jobs().Save(ctx, spec))
	}
	list, err := db.Jobs().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)

	require.NoError(t, db.Runs().Save(ctx, &entity.JobRun{ID: "r", JobID: "old", Status: entity.StatusCompleted, CreatedAt: base}))
	require.NoError(t, db.Results().Save(ctx, &entity.Result{ID: "res", JobID: "old", RunID: "r", CreatedAt: base}))

	require.NoError(t, db.Jobs().Delete(ctx, "old"))
	_, err = db.Runs().FindByID(ctx, "r")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = db.Results().LatestByJob(ctx, "old")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, db.Jobs().Delete(ctx, "old"), repository.ErrNotFound)
	_, err = db.Jobs().FindByID(ctx, "old")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRunRepo_UpsertAndOrdering(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, db.Jobs().Save(ctx, &entity.JobSpec{ID: "j", CreatedAt: now}))

	first := &entity.JobRun{ID: "r1", JobID: "j", Status: entity.StatusQueued, CreatedAt: now}
	second := &entity.JobRun{ID: "r2", JobID: "j", Status: entity.StatusQueued, CreatedAt: now}
	require.NoError(t, db.Runs().Save(ctx, first))
	require.NoError(t, db.Runs().Save(ctx, second))

	finished := now.Add(time.Minute)
	first.Status = entity.StatusFailed
	first.ErrorMessage = "boom"
	first.FinishedAt = &finished
	require.NoError(t, db.Runs().Save(ctx, first))

	got, err := db.Runs().FindByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
	assert.Nil(t, got.StartedAt)

	latest, err := db.Runs().LatestByJob(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, "r2", latest.ID)

	queued, err := db.Runs().ListByStatus(ctx, entity.StatusQueued)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "r2", queued[0].ID)
}

func TestResultRepo_PreservesRecordOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Jobs().Save(ctx, &entity.JobSpec{ID: "j", CreatedAt: time.Now()}))

	rec := entity.NewRecord("zeta", "z", "alpha", 1, "mid", []any{"x"})
	require.NoError(t, db.Results().Save(ctx, &entity.Result{
		ID: "res", JobID: "j", RunID: "r", Type: entity.JobTypeWebScraper, RecordCount: 1,
		CreatedAt: time.Now(), Data: []entity.Record{rec},
	}))

	got, err := db.Results().LatestByJob(ctx, "j")
	require.NoError(t, err)
	require.Len(t, got.Data, 1)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, got.Data[0].Keys())
	alpha, _ := got.Data[0].Get("alpha")
	assert.Equal(t, json.Number("1"), alpha)

	assert.ErrorIs(t, db.Results().Save(ctx, &entity.Result{ID: "x", JobID: "missing"}), repository.ErrNotFound)
}
