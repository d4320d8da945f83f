package processor

import (
	"context"
	"fmt"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// StreamHandler is the subset of internal/streaming.Handler a processor
// needs: drive a job's delta channel to completion, settling the credit
// reservation exactly once. Declared here rather than
// importing internal/streaming directly so processor tests can fake it.
type StreamHandler interface {
	Run(ctx context.Context, job *models.Job, userID, requestID string, deltas <-chan interfaces.StreamDelta) error
}

// StreamTask is the Processor for TaskGenericLlmStream:
// it composes the prompt, reserves credit, opens the provider's stream,
// then hands the delta channel to the Streaming Handler, which owns
// finalize/fail from that point on.
type StreamTask struct {
	ctx     *Context
	handler StreamHandler
	def     TaskDefault
}

var _ interfaces.Processor = (*StreamTask)(nil)

func newStreamTask(ctx *Context, handler StreamHandler) *StreamTask {
	return &StreamTask{ctx: ctx, handler: handler, def: heavyDefault}
}

func (t *StreamTask) CanHandle(taskType models.TaskType) bool {
	return taskType == models.TaskGenericLlmStream
}

func (t *StreamTask) Name() string { return "generic_llm_stream" }

func (t *StreamTask) Process(ctx context.Context, job *models.Job) error {
	session, err := t.ctx.Sessions.GetByID(ctx, job.SessionID)
	if err != nil {
		return t.finalizeWithoutCharge(ctx, job, fmt.Errorf("resolve session: %w", err))
	}

	projectHash := ""
	if session != nil {
		projectHash = session.ProjectHash
	}
	settings := resolveModelSettings(ctx, t.ctx.Settings, projectHash, models.TaskGenericLlmStream, job.Payload, t.def)

	systemPrompt := payloadString(job.Payload, "system_prompt")
	userPrompt := payloadString(job.Payload, "prompt")
	if userPrompt == "" {
		return t.finalizeWithoutCharge(ctx, job, fmt.Errorf("generic_llm_stream: payload missing prompt"))
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
		return t.finalizeWithoutCharge(ctx, job, err)
	}

	adapter, normalizedModel, err := t.ctx.Providers.Resolve(settings.Model)
	if err != nil {
		return t.finalizeWithCharge(ctx, job, reservation.RequestID, err)
	}
	job.ModelUsed = normalizedModel

	deltas, err := adapter.StreamChatCompletion(ctx, interfaces.ChatRequest{
		Model:       normalizedModel,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
		Stream:      true,
		Messages: []interfaces.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return t.finalizeWithCharge(ctx, job, reservation.RequestID, err)
	}

	return t.handler.Run(ctx, job, models.DefaultUserID, reservation.RequestID, deltas)
}

func (t *StreamTask) finalizeWithoutCharge(ctx context.Context, job *models.Job, cause error) error {
	return t.finalizeFailure(ctx, job, cause)
}

func (t *StreamTask) finalizeWithCharge(ctx context.Context, job *models.Job, requestID string, cause error) error {
	if err := t.ctx.Credit.FailCharge(ctx, requestID); err != nil {
		t.ctx.Logger.Error().Err(err).Str("job_id", job.ID).Msg("fail_charge failed")
	}
	return t.finalizeFailure(ctx, job, cause)
}

func (t *StreamTask) finalizeFailure(ctx context.Context, job *models.Job, cause error) error {
	kind := classify(cause)
	details := models.ErrorDetails(string(kind), cause, false)

	patch := models.DeepMergeJSON(
		models.RetryHistoryPatch(job.Metadata, details),
		map[string]interface{}{"errorDetails": details},
	)
	if _, err := t.ctx.Jobs.UpdateMetadata(ctx, job.ID, patch); err != nil {
		t.ctx.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record error details in job metadata")
	}

	if err := t.ctx.Jobs.Finalize(ctx, job.ID, &interfaces.JobFinalizeResult{
		ErrorMessage: cause.Error(),
		Status:       models.StatusFailed,
		EndTime:      models.NowMillis(),
	}); err != nil {
		return fmt.Errorf("finalize failed job %s: %w", job.ID, err)
	}
	_ = t.ctx.Events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobErrorDetails,
		Payload: map[string]interface{}{"job_id": job.ID, "error_details": details},
	})
	_ = t.ctx.Events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobFinalized,
		Payload: map[string]interface{}{"job_id": job.ID, "status": string(models.StatusFailed)},
	})
	return nil
}
