package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
	"github.com/foundryhq/jobengine/internal/provider"
)

// PromptBuilder composes a job's system prompt template and user prompt
// from its payload and owning session. Each TaskType in the catalog
// supplies its own.
type PromptBuilder func(job *models.Job, session *models.Session) (systemPrompt, userPrompt string, err error)

// ChatTask is a Processor for one TaskType whose work is a single
// non-streaming provider call. It implements the processor's
// six-step contract directly; per-task variance lives entirely in the
// PromptBuilder and TaskDefault passed to newChatTask.
type ChatTask struct {
	taskType models.TaskType
	name     string
	build    PromptBuilder
	def      TaskDefault
	retry    provider.RetryConfig
	ctx      *Context
}

var _ interfaces.Processor = (*ChatTask)(nil)

func newChatTask(ctx *Context, taskType models.TaskType, name string, build PromptBuilder, def TaskDefault) *ChatTask {
	return &ChatTask{
		taskType: taskType,
		name:     name,
		build:    build,
		def:      def,
		retry:    provider.DefaultRetryConfig(),
		ctx:      ctx,
	}
}

func (t *ChatTask) CanHandle(taskType models.TaskType) bool { return taskType == t.taskType }
func (t *ChatTask) Name() string                            { return t.name }

func (t *ChatTask) Process(ctx context.Context, job *models.Job) error {
	ctx, cancel := context.WithTimeout(ctx, defaultStageTimeout)
	defer cancel()

	session, err := t.ctx.Sessions.GetByID(ctx, job.SessionID)
	if err != nil {
		return t.failWithoutCharge(ctx, job, fmt.Errorf("resolve session: %w", err))
	}

	projectHash := ""
	if session != nil {
		projectHash = session.ProjectHash
	}
	settings := resolveModelSettings(ctx, t.ctx.Settings, projectHash, t.taskType, job.Payload, t.def)

	systemPrompt, userPrompt, err := t.build(job, session)
	if err != nil {
		return t.failWithoutCharge(ctx, job, fmt.Errorf("compose prompt: %w", err))
	}
	if err := t.ctx.Jobs.SetPrompt(ctx, job.ID, systemPrompt, userPrompt); err != nil {
		return fmt.Errorf("persist prompt for job %s: %w", job.ID, err)
	}

	if err := t.ctx.Jobs.MarkRunning(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job %s running: %w", job.ID, err)
	}

	estimatedPromptTokens := estimateTokenCount(systemPrompt) + estimateTokenCount(userPrompt)
	reservation, err := t.ctx.Credit.InitiateCharge(ctx, models.DefaultUserID, interfaces.CostEstimateRequest{
		Model:           settings.Model,
		PromptTokens:    estimatedPromptTokens,
		EstimatedOutput: t.def.MaxTokens,
	})
	if err != nil {
		return t.failWithoutCharge(ctx, job, err)
	}

	req := interfaces.ChatRequest{
		Model:       settings.Model,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
		Messages: []interfaces.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	var resp *interfaces.ChatResponse
	var fallbackAttempted bool
	err = provider.WithRetry(ctx, t.retry, func() error {
		var callErr error
		resp, fallbackAttempted, callErr = t.ctx.Providers.ChatCompletionWithFallback(ctx, req)
		return callErr
	})
	if err != nil {
		return t.failWithCharge(ctx, job, reservation.RequestID, fallbackAttempted, err)
	}

	finalCost, err := t.ctx.Estimator.EstimateCost(settings.Model, resp.Usage)
	if err != nil {
		t.ctx.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to estimate actual cost, finalizing at zero cost")
		finalCost = 0
	}
	if _, err := t.ctx.Credit.FinalizeCharge(ctx, reservation.RequestID, resp.Usage, finalCost); err != nil {
		t.ctx.Logger.Error().Err(err).Str("job_id", job.ID).Msg("finalize_charge failed")
	}

	now := models.NowMillis()
	if err := t.ctx.Jobs.Finalize(ctx, job.ID, &interfaces.JobFinalizeResult{
		Response:         resp.Content,
		Status:           models.StatusCompleted,
		TokensSent:       resp.Usage.PromptTokens,
		TokensReceived:   resp.Usage.CompletionTokens,
		CacheReadTokens:  resp.Usage.CacheReadTokens,
		CacheWriteTokens: resp.Usage.CacheWriteTokens,
		ModelUsed:        settings.Model,
		ActualCost:       finalCost,
		EndTime:          now,
	}); err != nil {
		return fmt.Errorf("finalize job %s: %w", job.ID, err)
	}

	t.publish(ctx, job.ID, interfaces.EventJobFinalized, string(models.StatusCompleted))
	return nil
}

// failWithoutCharge handles failures before InitiateCharge ran: there is
// no reservation to release.
func (t *ChatTask) failWithoutCharge(ctx context.Context, job *models.Job, cause error) error {
	return t.finalizeFailure(ctx, job, false, cause)
}

// failWithCharge handles failures after InitiateCharge ran: the
// reservation must be released via fail_charge before the job finalizes.
func (t *ChatTask) failWithCharge(ctx context.Context, job *models.Job, requestID string, fallbackAttempted bool, cause error) error {
	if err := t.ctx.Credit.FailCharge(ctx, requestID); err != nil {
		t.ctx.Logger.Error().Err(err).Str("job_id", job.ID).Msg("fail_charge failed")
	}
	return t.finalizeFailure(ctx, job, fallbackAttempted, cause)
}

func (t *ChatTask) finalizeFailure(ctx context.Context, job *models.Job, fallbackAttempted bool, cause error) error {
	kind := classify(cause)
	details := models.ErrorDetails(string(kind), cause, fallbackAttempted)

	patch := models.DeepMergeJSON(
		models.RetryHistoryPatch(job.Metadata, details),
		map[string]interface{}{"errorDetails": details},
	)
	if _, err := t.ctx.Jobs.UpdateMetadata(ctx, job.ID, patch); err != nil {
		t.ctx.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record error details in job metadata")
	}

	err := t.ctx.Jobs.Finalize(ctx, job.ID, &interfaces.JobFinalizeResult{
		ErrorMessage: cause.Error(),
		Status:       models.StatusFailed,
		EndTime:      models.NowMillis(),
	})
	if err != nil {
		return fmt.Errorf("finalize failed job %s: %w", job.ID, err)
	}
	_ = t.ctx.Events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobErrorDetails,
		Payload: map[string]interface{}{"job_id": job.ID, "error_details": details},
	})
	t.publish(ctx, job.ID, interfaces.EventJobFinalized, string(models.StatusFailed))
	return nil
}

func (t *ChatTask) publish(ctx context.Context, jobID string, eventType interfaces.EventType, status string) {
	_ = t.ctx.Events.Publish(ctx, interfaces.Event{
		Type:    eventType,
		Payload: map[string]interface{}{"job_id": jobID, "status": status},
	})
}

// estimateTokenCount is a rough chars/4 heuristic used only to size the
// credit reservation before the provider reports real usage; the actual
// charge always settles against FinalizeCharge's reported usage.
func estimateTokenCount(text string) int {
	return len(text)/4 + 1
}

const defaultStageTimeout = 10 * time.Minute
