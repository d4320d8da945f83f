package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

func newTestJobRepo(t *testing.T) interfaces.JobRepository {
	return NewJobStorage(newTestDB(t), arbor.NewLogger(), 90)
}

func TestJobStorageCreateAndGetByID(t *testing.T) {
	repo := newTestJobRepo(t)
	ctx := context.Background()

	job := models.NewJob("s1", models.TaskPathFinder, map[string]interface{}{"query": "auth flow"}, 3)
	require.NoError(t, repo.Create(ctx, job))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.SessionID, got.SessionID)
	assert.Equal(t, job.TaskType, got.TaskType)
	assert.Equal(t, models.StatusQueued, got.Status)
	assert.Equal(t, "auth flow", got.Payload["query"])
}

func TestJobStorageGetByIDMissingReturnsNotFound(t *testing.T) {
	repo := newTestJobRepo(t)
	_, err := repo.GetByID(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobStorageSetPromptAndFinalize(t *testing.T) {
	repo := newTestJobRepo(t)
	ctx := context.Background()

	job := models.NewJob("s1", models.TaskPathFinder, nil, 1)
	require.NoError(t, repo.Create(ctx, job))
	require.NoError(t, repo.SetPrompt(ctx, job.ID, "system template", "find the auth flow"))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "system template", got.SystemPromptTemplate)
	assert.Equal(t, "find the auth flow", got.Prompt)

	err = repo.Finalize(ctx, job.ID, &interfaces.JobFinalizeResult{
		Response: "src/auth.go", Status: models.StatusCompleted,
		TokensSent: 100, TokensReceived: 20, ActualCost: 0.02, EndTime: models.NowMillis(),
	})
	require.NoError(t, err)

	got, err = repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFinalized)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, "src/auth.go", got.Response)

	err = repo.Finalize(ctx, job.ID, &interfaces.JobFinalizeResult{Status: models.StatusCompleted})
	assert.ErrorIs(t, err, interfaces.ErrAlreadyFinalized)
}

func TestJobStorageUpdateMetadataDeepMergeIsIdempotent(t *testing.T) {
	repo := newTestJobRepo(t)
	ctx := context.Background()

	job := models.NewJob("s1", models.TaskPathFinder, nil, 1)
	job.Metadata = map[string]interface{}{"errorDetails": map[string]interface{}{"code": "NetworkError"}}
	require.NoError(t, repo.Create(ctx, job))

	patch := map[string]interface{}{"errorDetails": map[string]interface{}{"fallback_attempted": true}}
	first, err := repo.UpdateMetadata(ctx, job.ID, patch)
	require.NoError(t, err)

	second, err := repo.UpdateMetadata(ctx, job.ID, patch)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	details := second["errorDetails"].(map[string]interface{})
	assert.Equal(t, "NetworkError", details["code"])
	assert.Equal(t, true, details["fallback_attempted"])

	unchanged, err := repo.UpdateMetadata(ctx, job.ID, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, second, unchanged)
}

func TestJobStorageClaimQueuedForWorkerOrdersByPriorityThenCreatedAt(t *testing.T) {
	repo := newTestJobRepo(t)
	ctx := context.Background()

	j1 := models.NewJob("s1", models.TaskPathFinder, nil, 1)
	j1.CreatedAt = 100
	j2 := models.NewJob("s1", models.TaskPathFinder, nil, 2)
	j2.CreatedAt = 101
	j3 := models.NewJob("s1", models.TaskPathFinder, nil, 1)
	j3.CreatedAt = 102
	for _, j := range []*models.Job{j1, j2, j3} {
		require.NoError(t, repo.Create(ctx, j))
	}

	claimed, err := repo.ClaimQueuedForWorker(ctx, 3)
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	assert.Equal(t, []string{j2.ID, j1.ID, j3.ID}, []string{claimed[0].ID, claimed[1].ID, claimed[2].ID})
	for _, j := range claimed {
		assert.Equal(t, models.StatusAcknowledgedByWorker, j.Status)
	}

	again, err := repo.ClaimQueuedForWorker(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, again, "already-claimed jobs must not be claimed twice")
}

func TestJobStorageResetStaleAcknowledged(t *testing.T) {
	repo := newTestJobRepo(t)
	ctx := context.Background()

	job := models.NewJob("s1", models.TaskPathFinder, nil, 1)
	require.NoError(t, repo.Create(ctx, job))
	_, err := repo.ClaimQueuedForWorker(ctx, 1)
	require.NoError(t, err)

	store := repo.(*JobStorage)
	_, err = store.db.db.ExecContext(ctx, `UPDATE background_jobs SET updated_at = ? WHERE id = ?`, models.NowMillis()-180_000, job.ID)
	require.NoError(t, err)

	count, err := repo.ResetStaleAcknowledged(ctx, 120)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, got.Status)

	reclaimed, err := repo.ClaimQueuedForWorker(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
}

func TestJobStorageCancelJobIsNoOpOnTerminalJob(t *testing.T) {
	repo := newTestJobRepo(t)
	ctx := context.Background()

	job := models.NewJob("s1", models.TaskPathFinder, nil, 1)
	require.NoError(t, repo.Create(ctx, job))
	require.NoError(t, repo.Finalize(ctx, job.ID, &interfaces.JobFinalizeResult{Status: models.StatusCompleted}))

	require.NoError(t, repo.CancelJob(ctx, job.ID))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status, "cancel on a terminal job must not change its status")
}

func TestJobStorageClearHistoryDeletesOnlyTerminalJobs(t *testing.T) {
	repo := newTestJobRepo(t)
	ctx := context.Background()

	active := models.NewJob("s1", models.TaskPathFinder, nil, 1)
	require.NoError(t, repo.Create(ctx, active))

	done := models.NewJob("s1", models.TaskPathFinder, nil, 1)
	done.CreatedAt = models.NowMillis() - 200*24*60*60*1000
	require.NoError(t, repo.Create(ctx, done))
	require.NoError(t, repo.Finalize(ctx, done.ID, &interfaces.JobFinalizeResult{Status: models.StatusCompleted}))

	count, err := repo.ClearHistory(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = repo.GetByID(ctx, active.ID)
	assert.NoError(t, err)
	_, err = repo.GetByID(ctx, done.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}
