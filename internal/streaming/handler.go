// Package streaming implements the Streaming Handler: it
// wraps a Provider Adapter's stream, forwards chunks to the Event Bus,
// tracks running token usage, and drives exactly one of finalize_charge
// or fail_charge to completion per job.
package streaming

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/events"
	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// Handler drives one job's streamed provider call to completion.
type Handler struct {
	jobs       interfaces.JobRepository
	credit     interfaces.CreditService
	estimator  interfaces.CostEstimator
	bus        interfaces.EventService
	aggregator *events.StreamAggregator
	logger     arbor.ILogger
}

// NewHandler creates a Streaming Handler with its own job:stream-progress
// debouncer, shared across every job this
// handler drives so each doesn't spin up its own ticker goroutine.
func NewHandler(jobs interfaces.JobRepository, credit interfaces.CreditService, estimator interfaces.CostEstimator, bus interfaces.EventService, logger arbor.ILogger) *Handler {
	h := &Handler{
		jobs:      jobs,
		credit:    credit,
		estimator: estimator,
		bus:       bus,
		logger:    logger,
	}
	h.aggregator = events.NewStreamAggregator(progressTickerInterval, h.publishStreamProgress, logger)
	return h
}

// Start launches the background debounce loop. Call once at composition
// time with a context that lives for the process's lifetime.
func (h *Handler) Start(ctx context.Context) {
	h.aggregator.StartPeriodicFlush(ctx)
}

func (h *Handler) publishStreamProgress(ctx context.Context, jobID, delta string) {
	_ = h.bus.Publish(ctx, interfaces.Event{
		Type: interfaces.EventJobStreamProgress,
		Payload: map[string]interface{}{
			"job_id": jobID,
			"delta":  delta,
		},
	})
}

// Run pulls delta from the adapter's stream channel until it closes or
// ctx is cancelled, then settles the credit reservation exactly once via
// FinalizeCharge (success) or FailCharge (cancellation or stream error).
func (h *Handler) Run(ctx context.Context, job *models.Job, userID, requestID string, deltas <-chan interfaces.StreamDelta) error {
	var finalized atomic.Bool
	var response strings.Builder
	var usage models.ProviderUsage

	for {
		select {
		case <-ctx.Done():
			return h.settleOnce(&finalized, func() error {
				return h.cancel(context.Background(), job, requestID, response.String())
			})

		case delta, ok := <-deltas:
			if !ok {
				return h.settleOnce(&finalized, func() error {
					return h.finalizeSuccess(context.Background(), job, requestID, response.String(), usage)
				})
			}

			if delta.ContentDelta != "" {
				response.WriteString(delta.ContentDelta)
				h.aggregator.Record(job.ID, delta.ContentDelta)
				h.publishResponseAppended(ctx, job.ID, delta.ContentDelta)
			}
			if delta.Usage != nil {
				usage = *delta.Usage
			}

			if delta.Done {
				h.aggregator.FlushJob(ctx, job.ID)

				if delta.Err != nil {
					return h.settleOnce(&finalized, func() error {
						return h.fail(context.Background(), job, requestID, response.String(), delta.Err)
					})
				}
				return h.settleOnce(&finalized, func() error {
					return h.finalizeSuccess(context.Background(), job, requestID, response.String(), usage)
				})
			}
		}
	}
}

func (h *Handler) settleOnce(finalized *atomic.Bool, settle func() error) error {
	if !finalized.CompareAndSwap(false, true) {
		return nil
	}
	return settle()
}

func (h *Handler) publishResponseAppended(ctx context.Context, jobID, delta string) {
	_ = h.bus.Publish(ctx, interfaces.Event{
		Type: interfaces.EventJobResponseAppended,
		Payload: map[string]interface{}{
			"job_id":   jobID,
			"response": delta,
		},
	})
}

func (h *Handler) finalizeSuccess(ctx context.Context, job *models.Job, requestID, response string, usage models.ProviderUsage) error {
	actualCost, err := h.estimator.EstimateCost(job.ModelUsed, usage)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to estimate actual cost, finalizing at zero cost")
		actualCost = 0
	}

	if _, err := h.credit.FinalizeCharge(ctx, requestID, usage, actualCost); err != nil {
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("finalize_charge failed")
	}

	now := models.NowMillis()
	err = h.jobs.Finalize(ctx, job.ID, &interfaces.JobFinalizeResult{
		Response:         response,
		Status:           models.StatusCompleted,
		TokensSent:       usage.PromptTokens,
		TokensReceived:   usage.CompletionTokens,
		CacheReadTokens:  usage.CacheReadTokens,
		CacheWriteTokens: usage.CacheWriteTokens,
		ModelUsed:        job.ModelUsed,
		ActualCost:       actualCost,
		EndTime:          now,
	})
	if err != nil {
		return fmt.Errorf("finalize job %s: %w", job.ID, err)
	}

	_ = h.bus.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobFinalized,
		Payload: map[string]interface{}{"job_id": job.ID, "status": string(models.StatusCompleted)},
	})
	return nil
}

func (h *Handler) fail(ctx context.Context, job *models.Job, requestID, response string, cause error) error {
	if err := h.credit.FailCharge(ctx, requestID); err != nil {
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("fail_charge failed")
	}

	kind := classify(cause)
	details := models.ErrorDetails(string(kind), cause, false)
	patch := models.DeepMergeJSON(
		models.RetryHistoryPatch(job.Metadata, details),
		map[string]interface{}{"errorDetails": details},
	)
	if _, err := h.jobs.UpdateMetadata(ctx, job.ID, patch); err != nil {
		h.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record error details in job metadata")
	}

	err := h.jobs.Finalize(ctx, job.ID, &interfaces.JobFinalizeResult{
		Response:     response,
		ErrorMessage: cause.Error(),
		Status:       models.StatusFailed,
		EndTime:      models.NowMillis(),
	})
	if err != nil {
		return fmt.Errorf("finalize failed job %s: %w", job.ID, err)
	}

	_ = h.bus.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobErrorDetails,
		Payload: map[string]interface{}{"job_id": job.ID, "error_details": details},
	})
	_ = h.bus.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobFinalized,
		Payload: map[string]interface{}{"job_id": job.ID, "status": string(models.StatusFailed)},
	})
	return nil
}

func (h *Handler) cancel(ctx context.Context, job *models.Job, requestID, response string) error {
	if err := h.credit.FailCharge(ctx, requestID); err != nil {
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("fail_charge failed on cancel")
	}

	err := h.jobs.Finalize(ctx, job.ID, &interfaces.JobFinalizeResult{
		Response: response,
		Status:   models.StatusCanceled,
		EndTime:  models.NowMillis(),
	})
	if err != nil {
		return fmt.Errorf("finalize cancelled job %s: %w", job.ID, err)
	}

	_ = h.bus.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobFinalized,
		Payload: map[string]interface{}{"job_id": job.ID, "status": string(models.StatusCanceled)},
	})
	return nil
}

// progressTickerInterval is the ~250ms debounce cadence for
// job:stream-progress.
const progressTickerInterval = 250 * time.Millisecond
