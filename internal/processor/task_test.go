package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

func newTestContext() (*Context, *fakeJobs, *fakeCredit, *fakeBus, *fakeProviders) {
	jobs := newFakeJobs()
	credit := &fakeCredit{}
	bus := &fakeBus{}
	providers := &fakeProviders{resp: &interfaces.ChatResponse{Content: "ok", Usage: models.ProviderUsage{PromptTokens: 10, CompletionTokens: 5}}}
	ctx := &Context{
		Jobs:      jobs,
		Sessions:  &fakeSessions{session: &models.Session{ID: "s1", ProjectHash: "hash1"}},
		Settings:  &fakeSettings{values: map[string]string{}},
		Providers: providers,
		Credit:    credit,
		Estimator: fakeEstimator{},
		Events:    bus,
		Logger:    arbor.NewLogger(),
	}
	return ctx, jobs, credit, bus, providers
}

func TestChatTaskProcessSuccess(t *testing.T) {
	ctx, jobs, credit, bus, providers := newTestContext()
	task := newChatTask(ctx, models.TaskPathFinder, "path_finder", buildPathFinder, lightDefault)

	job := models.NewJob("s1", models.TaskPathFinder, map[string]interface{}{"query": "auth flow"}, 1)
	err := task.Process(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, 1, providers.calls)
	assert.Equal(t, 1, credit.finalized)
	assert.Equal(t, 0, credit.failed)

	result := jobs.finalized[job.ID]
	require.NotNil(t, result)
	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Equal(t, "ok", result.Response)

	_, hasPrompt := jobs.prompts[job.ID]
	assert.True(t, hasPrompt)
	assert.True(t, jobs.running[job.ID])

	var sawFinalized bool
	for _, e := range bus.events {
		if e.Type == interfaces.EventJobFinalized {
			sawFinalized = true
		}
	}
	assert.True(t, sawFinalized)
}

func TestChatTaskFailsWithoutChargeOnSessionLookupError(t *testing.T) {
	ctx, jobs, credit, _, providers := newTestContext()
	ctx.Sessions = &fakeSessions{err: errors.New("session not found")}
	task := newChatTask(ctx, models.TaskPathFinder, "path_finder", buildPathFinder, lightDefault)

	job := models.NewJob("missing", models.TaskPathFinder, map[string]interface{}{"query": "x"}, 1)
	err := task.Process(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, 0, providers.calls)
	assert.Equal(t, 0, credit.failed)
	result := jobs.finalized[job.ID]
	require.NotNil(t, result)
	assert.Equal(t, models.StatusFailed, result.Status)
}

func TestChatTaskFailsWithChargeReleaseOnProviderError(t *testing.T) {
	ctx, jobs, credit, _, providers := newTestContext()
	providers.err = errors.New("503 service unavailable")
	providers.resp = nil
	task := newChatTask(ctx, models.TaskPathFinder, "path_finder", buildPathFinder, lightDefault)
	task.retry.MaxRetries = 0

	job := models.NewJob("s1", models.TaskPathFinder, map[string]interface{}{"query": "x"}, 1)
	err := task.Process(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, 1, credit.failed)
	assert.Equal(t, 0, credit.finalized)
	result := jobs.finalized[job.ID]
	require.NotNil(t, result)
	assert.Equal(t, models.StatusFailed, result.Status)
}

func TestChatTaskFailsWithoutCallingProviderOnInsufficientCredit(t *testing.T) {
	ctx, jobs, credit, _, providers := newTestContext()
	credit.initiateErr = interfaces.ErrCreditInsufficient
	task := newChatTask(ctx, models.TaskPathFinder, "path_finder", buildPathFinder, lightDefault)

	job := models.NewJob("s1", models.TaskPathFinder, map[string]interface{}{"query": "x"}, 1)
	err := task.Process(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, 0, providers.calls)
	result := jobs.finalized[job.ID]
	require.NotNil(t, result)
	assert.Equal(t, models.StatusFailed, result.Status)
}

func TestResolveModelSettingsPrecedence(t *testing.T) {
	settingsStore := &fakeSettings{values: map[string]string{
		"project_task_settings:hash1:PathFinder:model": "project-override-model",
	}}
	def := TaskDefault{Model: "default-model", Temperature: 0.1, MaxTokens: 100}

	withProjectOverride := resolveModelSettings(context.Background(), settingsStore, "hash1", models.TaskPathFinder, map[string]interface{}{}, def)
	assert.Equal(t, "project-override-model", withProjectOverride.Model)

	withPayloadOverride := resolveModelSettings(context.Background(), settingsStore, "hash1", models.TaskPathFinder, map[string]interface{}{"model": "payload-model"}, def)
	assert.Equal(t, "payload-model", withPayloadOverride.Model)

	noOverrides := resolveModelSettings(context.Background(), settingsStore, "", models.TaskPathFinder, map[string]interface{}{}, def)
	assert.Equal(t, "default-model", noOverrides.Model)
}

func TestStreamTaskDelegatesToHandlerAfterReservingCredit(t *testing.T) {
	ctx, jobs, credit, _, providers := newTestContext()
	deltas := make(chan interfaces.StreamDelta)
	close(deltas)
	providers.adapter = &fakeAdapter{deltas: deltas}
	handler := &fakeStreamHandler{}
	task := newStreamTask(ctx, handler)

	job := models.NewJob("s1", models.TaskGenericLlmStream, map[string]interface{}{"prompt": "hello"}, 1)
	err := task.Process(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, 1, handler.calls)
	assert.Equal(t, 0, credit.failed)
	assert.True(t, jobs.running[job.ID])
}

func TestStreamTaskFailsWithoutPromptInPayload(t *testing.T) {
	ctx, jobs, _, _, _ := newTestContext()
	task := newStreamTask(ctx, &fakeStreamHandler{})

	job := models.NewJob("s1", models.TaskGenericLlmStream, map[string]interface{}{}, 1)
	err := task.Process(context.Background(), job)
	require.NoError(t, err)

	result := jobs.finalized[job.ID]
	require.NotNil(t, result)
	assert.Equal(t, models.StatusFailed, result.Status)
}

func TestSubscriptionLifecycleTaskSuccess(t *testing.T) {
	ctx, jobs, _, bus, _ := newTestContext()
	billing := &fakeBilling{url: "https://portal.example/session/abc"}
	task := newSubscriptionLifecycleTask(ctx, billing)

	job := models.NewJob("s1", models.TaskSubscriptionLifecycle, map[string]interface{}{"user_id": "u1"}, 1)
	err := task.Process(context.Background(), job)
	require.NoError(t, err)

	result := jobs.finalized[job.ID]
	require.NotNil(t, result)
	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Contains(t, result.Response, billing.url)

	var sawFinalized bool
	for _, e := range bus.events {
		if e.Type == interfaces.EventJobFinalized {
			sawFinalized = true
		}
	}
	assert.True(t, sawFinalized)
}

func TestSubscriptionLifecycleTaskFailsOnBillingError(t *testing.T) {
	ctx, jobs, _, _, _ := newTestContext()
	billing := &fakeBilling{err: errors.New("portal unreachable")}
	task := newSubscriptionLifecycleTask(ctx, billing)

	job := models.NewJob("s1", models.TaskSubscriptionLifecycle, map[string]interface{}{}, 1)
	err := task.Process(context.Background(), job)
	require.NoError(t, err)

	result := jobs.finalized[job.ID]
	require.NotNil(t, result)
	assert.Equal(t, models.StatusFailed, result.Status)
}

func TestRegistryResolvesEveryCatalogedTaskType(t *testing.T) {
	ctx, _, _, _, _ := newTestContext()
	registry := BuildRegistry(ctx, &fakeStreamHandler{}, &fakeBilling{})

	for _, taskType := range models.AllTaskTypes() {
		p, ok := registry.Resolve(taskType)
		assert.Truef(t, ok, "expected a processor for %s", taskType)
		assert.NotNil(t, p)
	}
}
