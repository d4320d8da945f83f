package streaming

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

type fakeJobRepo struct {
	interfaces.JobRepository
	finalized *interfaces.JobFinalizeResult
	metadata  map[string]interface{}
}

func (f *fakeJobRepo) Finalize(_ context.Context, _ string, result *interfaces.JobFinalizeResult) error {
	f.finalized = result
	return nil
}

func (f *fakeJobRepo) UpdateMetadata(_ context.Context, _ string, patch map[string]interface{}) (map[string]interface{}, error) {
	f.metadata = models.DeepMergeJSON(f.metadata, patch)
	return f.metadata, nil
}

type fakeCreditService struct {
	interfaces.CreditService
	finalizeCalls int
	failCalls     int
}

func (f *fakeCreditService) FinalizeCharge(_ context.Context, _ string, _ models.ProviderUsage, actualCost float64) (*models.UsageRecord, error) {
	f.finalizeCalls++
	return &models.UsageRecord{ActualCost: actualCost}, nil
}

func (f *fakeCreditService) FailCharge(_ context.Context, _ string) error {
	f.failCalls++
	return nil
}

type fakeEstimator struct{}

func (fakeEstimator) EstimateCost(_ string, _ models.ProviderUsage) (float64, error) { return 1.5, nil }
func (fakeEstimator) Pricing(_ string) (models.ModelPricing, bool)                   { return models.ModelPricing{}, false }

type fakeBus struct {
	interfaces.EventService
	events []interfaces.Event
}

func (f *fakeBus) Publish(_ context.Context, event interfaces.Event) error {
	f.events = append(f.events, event)
	return nil
}

func newTestHandler() (*Handler, *fakeJobRepo, *fakeCreditService, *fakeBus) {
	repo := &fakeJobRepo{}
	credit := &fakeCreditService{}
	bus := &fakeBus{}
	h := NewHandler(repo, credit, fakeEstimator{}, bus, arbor.NewLogger())
	return h, repo, credit, bus
}

func TestHandlerRunFinalizesOnCleanStreamEnd(t *testing.T) {
	h, repo, credit, bus := newTestHandler()
	job := &models.Job{ID: "job-1", ModelUsed: "test-model"}

	deltas := make(chan interfaces.StreamDelta, 3)
	deltas <- interfaces.StreamDelta{ContentDelta: "hello "}
	deltas <- interfaces.StreamDelta{ContentDelta: "world"}
	deltas <- interfaces.StreamDelta{Done: true, Usage: &models.ProviderUsage{PromptTokens: 10, CompletionTokens: 5}}
	close(deltas)

	err := h.Run(context.Background(), job, "user-1", "req-1", deltas)
	require.NoError(t, err)

	assert.Equal(t, 1, credit.finalizeCalls)
	assert.Equal(t, 0, credit.failCalls)
	require.NotNil(t, repo.finalized)
	assert.Equal(t, models.StatusCompleted, repo.finalized.Status)
	assert.Equal(t, "hello world", repo.finalized.Response)
	assert.Equal(t, 1.5, repo.finalized.ActualCost)

	var sawFinalized bool
	for _, e := range bus.events {
		if e.Type == interfaces.EventJobFinalized {
			sawFinalized = true
		}
	}
	assert.True(t, sawFinalized)
}

func TestHandlerRunFailsChargeOnStreamError(t *testing.T) {
	h, repo, credit, _ := newTestHandler()
	job := &models.Job{ID: "job-2", ModelUsed: "test-model"}

	deltas := make(chan interfaces.StreamDelta, 1)
	deltas <- interfaces.StreamDelta{Done: true, Err: errors.New("upstream reset")}
	close(deltas)

	err := h.Run(context.Background(), job, "user-1", "req-2", deltas)
	require.NoError(t, err)

	assert.Equal(t, 1, credit.failCalls)
	assert.Equal(t, 0, credit.finalizeCalls)
	require.NotNil(t, repo.finalized)
	assert.Equal(t, models.StatusFailed, repo.finalized.Status)
	assert.Equal(t, "upstream reset", repo.finalized.ErrorMessage)

	require.NotNil(t, repo.metadata["errorDetails"])
	details := repo.metadata["errorDetails"].(map[string]interface{})
	assert.Equal(t, "upstream reset", details["message"])
	assert.Equal(t, false, details["fallback_attempted"])
	assert.Equal(t, 1, repo.metadata["retry_count"])
}

func TestHandlerRunCancelsOnContextDone(t *testing.T) {
	h, repo, credit, _ := newTestHandler()
	job := &models.Job{ID: "job-3", ModelUsed: "test-model"}

	ctx, cancel := context.WithCancel(context.Background())
	deltas := make(chan interfaces.StreamDelta)
	cancel()

	err := h.Run(ctx, job, "user-1", "req-3", deltas)
	require.NoError(t, err)

	assert.Equal(t, 1, credit.failCalls)
	require.NotNil(t, repo.finalized)
	assert.Equal(t, models.StatusCanceled, repo.finalized.Status)
}

func TestHandlerSettlesExactlyOnce(t *testing.T) {
	h, _, credit, _ := newTestHandler()
	job := &models.Job{ID: "job-4", ModelUsed: "test-model"}

	deltas := make(chan interfaces.StreamDelta, 1)
	deltas <- interfaces.StreamDelta{Done: true}
	close(deltas)

	require.NoError(t, h.Run(context.Background(), job, "user-1", "req-4", deltas))
	assert.Equal(t, 1, credit.finalizeCalls+credit.failCalls)
}

func TestAggregatorDebouncesStreamProgressEvents(t *testing.T) {
	h, _, _, bus := newTestHandler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)

	h.aggregator.Record("job-5", "chunk")
	h.aggregator.FlushJob(context.Background(), "job-5")

	time.Sleep(10 * time.Millisecond)

	var sawProgress bool
	for _, e := range bus.events {
		if e.Type == interfaces.EventJobStreamProgress {
			sawProgress = true
		}
	}
	assert.True(t, sawProgress)
}
