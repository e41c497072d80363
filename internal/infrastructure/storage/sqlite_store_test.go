package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RecipeSwipe/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteJobStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleJobs() []domain.UploadJob {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []domain.UploadJob{
		{
			ID:        "b",
			Status:    domain.JobCompleted,
			Files:     []domain.UploadFile{{Data: "aGk=", Type: domain.FileTypeImage}},
			Progress:  domain.Progress{Total: 1, Completed: 1},
			Errors:    []domain.UploadError{},
			Timestamp: base.Add(time.Minute),
			Result: &domain.UploadResult{
				SuccessCount:  1,
				NewRecipeKeys: []string{"7"},
				JSONData:      map[string]domain.Recipe{"7": {Title: "Stew"}},
				JobID:         "b",
			},
		},
		{
			ID:        "a",
			Status:    domain.JobPending,
			Files:     []domain.UploadFile{{Data: "JVBE", Type: domain.FileTypePDF}},
			Progress:  domain.Progress{Total: 1},
			Timestamp: base,
			ChunkInfo: &domain.ChunkInfo{CurrentChunk: 1, TotalChunks: 2},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleJobs()))

	jobs, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].ID, "oldest first")
	assert.Equal(t, &domain.ChunkInfo{CurrentChunk: 1, TotalChunks: 2}, jobs[0].ChunkInfo)
	assert.Equal(t, "b", jobs[1].ID)
	require.NotNil(t, jobs[1].Result)
	assert.Equal(t, "Stew", jobs[1].Result.JSONData["7"].Title)
	assert.True(t, jobs[1].Timestamp.Equal(sampleJobs()[0].Timestamp))
}

func TestSaveReplacesContents(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleJobs()))
	require.NoError(t, store.Save(ctx, sampleJobs()[1:]))

	jobs, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].ID)

	require.NoError(t, store.Save(ctx, nil))
	jobs, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestClear(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleJobs()))
	require.NoError(t, store.Clear(ctx))

	jobs, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
