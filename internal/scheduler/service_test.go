package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/models"
)

func fastConfig() Config {
	return Config{
		ClaimBatchSize:       4,
		ClaimInterval:        15 * time.Millisecond,
		StaleResetInterval:   20 * time.Millisecond,
		StaleResetThreshold:  2 * time.Minute,
		ShutdownGraceTimeout: time.Second,
	}
}

func TestClaimAndDispatchRunsProcessorForClaimedJobs(t *testing.T) {
	job := models.NewJob("s1", models.TaskPathFinder, nil, 1)
	jobs := &fakeJobs{queued: []*models.Job{job}}
	queue := &fakeQueue{}
	processor := &fakeProcessor{}
	registry := &fakeRegistry{processor: processor}

	var notified []string
	var mu sync.Mutex
	onDone := func(_ context.Context, jobID string) {
		mu.Lock()
		notified = append(notified, jobID)
		mu.Unlock()
	}

	svc := NewService(jobs, queue, registry, fastConfig(), onDone, arbor.NewLogger())
	require.NoError(t, svc.Start(context.Background()))

	require.Eventually(t, func() bool {
		processor.mu.Lock()
		defer processor.mu.Unlock()
		return len(processor.calls) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Stop(context.Background()))

	assert.Equal(t, job.ID, processor.calls[0])
	assert.Contains(t, queue.released, job.ID)

	mu.Lock()
	assert.Contains(t, notified, job.ID)
	mu.Unlock()
}

func TestClaimAndDispatchToleratesClaimError(t *testing.T) {
	jobs := &fakeJobs{claimErr: errClaim}
	queue := &fakeQueue{}
	registry := &fakeRegistry{processor: &fakeProcessor{}}

	svc := NewService(jobs, queue, registry, fastConfig(), nil, arbor.NewLogger())
	require.NoError(t, svc.Start(context.Background()))

	require.Eventually(t, func() bool {
		jobs.mu.Lock()
		defer jobs.mu.Unlock()
		return jobs.claimCalls > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Stop(context.Background()))
}

func TestResetStaleOnceCallsRepository(t *testing.T) {
	jobs := &fakeJobs{resetCount: 2}
	queue := &fakeQueue{}
	registry := &fakeRegistry{processor: &fakeProcessor{}}

	svc := NewService(jobs, queue, registry, fastConfig(), nil, arbor.NewLogger())
	require.NoError(t, svc.Start(context.Background()))

	require.Eventually(t, func() bool {
		jobs.mu.Lock()
		defer jobs.mu.Unlock()
		return jobs.resetCalls > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Stop(context.Background()))
}

func TestStartTwiceReturnsError(t *testing.T) {
	svc := NewService(&fakeJobs{}, &fakeQueue{}, &fakeRegistry{processor: &fakeProcessor{}}, fastConfig(), nil, arbor.NewLogger())
	require.NoError(t, svc.Start(context.Background()))
	assert.Error(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop(context.Background()))
}

func TestStopIsIdempotent(t *testing.T) {
	svc := NewService(&fakeJobs{}, &fakeQueue{}, &fakeRegistry{processor: &fakeProcessor{}}, fastConfig(), nil, arbor.NewLogger())
	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop(context.Background()))
	assert.NoError(t, svc.Stop(context.Background()))
}

func TestMissingProcessorReleasesSlotWithoutPanicking(t *testing.T) {
	job := models.NewJob("s1", models.TaskPathFinder, nil, 1)
	jobs := &fakeJobs{queued: []*models.Job{job}}
	queue := &fakeQueue{}
	registry := &fakeRegistry{missing: true}

	svc := NewService(jobs, queue, registry, fastConfig(), nil, arbor.NewLogger())
	require.NoError(t, svc.Start(context.Background()))

	require.Eventually(t, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return len(queue.released) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Stop(context.Background()))
}

