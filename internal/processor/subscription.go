package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// BillingClient is the external billing-portal collaborator
// SubscriptionLifecycleTask calls. All subscription management (plan
// changes, cancellations) is delegated to the portal; this processor only
// mints a session URL for the UI to redirect to.
type BillingClient interface {
	CreateBillingPortalSession(ctx context.Context, userID string) (url string, err error)
}

// HTTPBillingClient is a plain net/http JSON client for a billing portal
// API, in the teacher's httpclient.NewDefaultHTTPClient style: no SDK in
// the retrieval pack targets a billing/payments backend, so this is
// hand-rolled rather than grounded on a specific third-party library.
type HTTPBillingClient struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

func NewHTTPBillingClient(baseURL, apiKey string) *HTTPBillingClient {
	return &HTTPBillingClient{BaseURL: baseURL, APIKey: apiKey, client: &http.Client{Timeout: 30 * time.Second}}
}

func (c *HTTPBillingClient) CreateBillingPortalSession(ctx context.Context, userID string) (string, error) {
	body, err := json.Marshal(map[string]string{"user_id": userID})
	if err != nil {
		return "", fmt.Errorf("encode billing portal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/billing-portal-sessions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build billing portal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("billing portal request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("billing portal request failed: status %d", resp.StatusCode)
	}

	var decoded struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode billing portal response: %w", err)
	}
	return decoded.URL, nil
}

// SubscriptionLifecycleTask is the Processor for TaskSubscriptionLifecycle.
// Unlike every other task type it never calls a Provider Adapter and never
// touches the Credit Service: subscription management has no token usage
// to charge for.
type SubscriptionLifecycleTask struct {
	ctx     *Context
	billing BillingClient
}

var _ interfaces.Processor = (*SubscriptionLifecycleTask)(nil)

func newSubscriptionLifecycleTask(ctx *Context, billing BillingClient) *SubscriptionLifecycleTask {
	return &SubscriptionLifecycleTask{ctx: ctx, billing: billing}
}

func (t *SubscriptionLifecycleTask) CanHandle(taskType models.TaskType) bool {
	return taskType == models.TaskSubscriptionLifecycle
}

func (t *SubscriptionLifecycleTask) Name() string { return "subscription_lifecycle" }

func (t *SubscriptionLifecycleTask) Process(ctx context.Context, job *models.Job) error {
	if err := t.ctx.Jobs.MarkRunning(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job %s running: %w", job.ID, err)
	}

	userID := payloadString(job.Payload, "user_id")
	if userID == "" {
		userID = models.DefaultUserID
	}

	url, err := t.billing.CreateBillingPortalSession(ctx, userID)
	if err != nil {
		return t.fail(ctx, job, err)
	}

	if _, err := t.ctx.Jobs.UpdateMetadata(ctx, job.ID, map[string]interface{}{
		"job_type":      "SUBSCRIPTION_LIFECYCLE",
		"user_id":       userID,
		"portal_access": true,
	}); err != nil {
		t.ctx.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record subscription lifecycle metadata")
	}

	if err := t.ctx.Jobs.Finalize(ctx, job.ID, &interfaces.JobFinalizeResult{
		Response: fmt.Sprintf("Billing portal URL retrieved: %s", url),
		Status:   models.StatusCompleted,
		EndTime:  models.NowMillis(),
	}); err != nil {
		return fmt.Errorf("finalize job %s: %w", job.ID, err)
	}

	_ = t.ctx.Events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobFinalized,
		Payload: map[string]interface{}{"job_id": job.ID, "status": string(models.StatusCompleted)},
	})
	return nil
}

func (t *SubscriptionLifecycleTask) fail(ctx context.Context, job *models.Job, cause error) error {
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
		ErrorMessage: fmt.Sprintf("subscription lifecycle operation failed: %s", cause),
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
