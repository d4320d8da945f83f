package processor

import (
	"context"
	"errors"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

type fakeJobs struct {
	interfaces.JobRepository
	prompts      map[string][2]string
	running      map[string]bool
	finalized    map[string]*interfaces.JobFinalizeResult
	metadata     map[string]map[string]interface{}
	setPromptErr error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{
		prompts:   make(map[string][2]string),
		running:   make(map[string]bool),
		finalized: make(map[string]*interfaces.JobFinalizeResult),
		metadata:  make(map[string]map[string]interface{}),
	}
}

func (f *fakeJobs) SetPrompt(_ context.Context, jobID, systemPrompt, prompt string) error {
	if f.setPromptErr != nil {
		return f.setPromptErr
	}
	f.prompts[jobID] = [2]string{systemPrompt, prompt}
	return nil
}

func (f *fakeJobs) MarkRunning(_ context.Context, jobID string) error {
	f.running[jobID] = true
	return nil
}

func (f *fakeJobs) UpdateMetadata(_ context.Context, jobID string, patch map[string]interface{}) (map[string]interface{}, error) {
	f.metadata[jobID] = patch
	return patch, nil
}

func (f *fakeJobs) Finalize(_ context.Context, jobID string, result *interfaces.JobFinalizeResult) error {
	f.finalized[jobID] = result
	return nil
}

type fakeSessions struct {
	interfaces.SessionStore
	session *models.Session
	err     error
}

func (f *fakeSessions) GetByID(_ context.Context, _ string) (*models.Session, error) {
	return f.session, f.err
}

type fakeSettings struct {
	interfaces.SettingsStore
	values map[string]string
}

func (f *fakeSettings) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

type fakeCredit struct {
	interfaces.CreditService
	initiateErr error
	finalized   int
	failed      int
	lastUsage   models.ProviderUsage
}

func (f *fakeCredit) InitiateCharge(_ context.Context, userID string, req interfaces.CostEstimateRequest) (*models.Reservation, error) {
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	return &models.Reservation{RequestID: "req-1", UserID: userID, Model: req.Model}, nil
}

func (f *fakeCredit) FinalizeCharge(_ context.Context, _ string, usage models.ProviderUsage, actualCost float64) (*models.UsageRecord, error) {
	f.finalized++
	f.lastUsage = usage
	return &models.UsageRecord{ActualCost: actualCost}, nil
}

func (f *fakeCredit) FailCharge(_ context.Context, _ string) error {
	f.failed++
	return nil
}

type fakeEstimator struct{}

func (fakeEstimator) EstimateCost(_ string, _ models.ProviderUsage) (float64, error) { return 0.5, nil }
func (fakeEstimator) Pricing(_ string) (models.ModelPricing, bool)                   { return models.ModelPricing{}, false }

type fakeBus struct {
	interfaces.EventService
	events []interfaces.Event
}

func (f *fakeBus) Publish(_ context.Context, event interfaces.Event) error {
	f.events = append(f.events, event)
	return nil
}

type fakeProviders struct {
	resp              *interfaces.ChatResponse
	err               error
	fallbackAttempted bool
	adapter           interfaces.ProviderAdapter
	resolveErr        error
	calls             int
}

func (f *fakeProviders) ChatCompletionWithFallback(_ context.Context, _ interfaces.ChatRequest) (*interfaces.ChatResponse, bool, error) {
	f.calls++
	return f.resp, f.fallbackAttempted, f.err
}

func (f *fakeProviders) Resolve(model string) (interfaces.ProviderAdapter, string, error) {
	if f.resolveErr != nil {
		return nil, "", f.resolveErr
	}
	return f.adapter, model, nil
}

type fakeAdapter struct {
	deltas <-chan interfaces.StreamDelta
	err    error
}

func (a *fakeAdapter) Name() string { return "fake" }
func (a *fakeAdapter) ChatCompletion(_ context.Context, _ interfaces.ChatRequest) (*interfaces.ChatResponse, error) {
	return nil, errors.New("not implemented")
}
func (a *fakeAdapter) StreamChatCompletion(_ context.Context, _ interfaces.ChatRequest) (<-chan interfaces.StreamDelta, error) {
	return a.deltas, a.err
}
func (a *fakeAdapter) ExtractUsageFromBody(_ []byte) (models.ProviderUsage, error) {
	return models.ProviderUsage{}, errors.New("not implemented")
}

type fakeStreamHandler struct {
	calls int
	err   error
}

func (f *fakeStreamHandler) Run(_ context.Context, _ *models.Job, _ string, _ string, _ <-chan interfaces.StreamDelta) error {
	f.calls++
	return f.err
}

type fakeBilling struct {
	url string
	err error
}

func (f *fakeBilling) CreateBillingPortalSession(_ context.Context, _ string) (string, error) {
	return f.url, f.err
}
