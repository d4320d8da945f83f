package interfaces

import (
	"context"

	"github.com/foundryhq/jobengine/internal/models"
)

// JobListOptions filters and paginates Job Repository listings.
type JobListOptions struct {
	SessionID  string
	WorkflowID string
	Status     models.JobStatus
	TaskType   models.TaskType
	Limit      int
	Offset     int
	OrderBy    string // created_at, updated_at
	OrderDir   string // asc, desc
}

// JobRepository is the durable store for jobs. Every mutating
// operation is expected to be atomic with respect to concurrent callers:
// claim_queued_for_worker must not hand the same row to two callers, and
// update_metadata must read-modify-write the metadata column inside a
// single transaction.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, jobID string) (*models.Job, error)
	List(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)

	// UpdateStatus transitions a job's status and persists the change.
	UpdateStatus(ctx context.Context, jobID string, status models.JobStatus) error

	// MarkRunning transitions a job from acknowledged to running and stamps StartTime.
	MarkRunning(ctx context.Context, jobID string) error

	// SetPrompt persists the composed system_prompt_template and user
	// prompt before any provider call, so a crash between composition and
	// the provider response still leaves a durable record of what was
	// going to run.
	SetPrompt(ctx context.Context, jobID, systemPromptTemplate, prompt string) error

	// UpdateMetadata deep-merges patch into the job's existing metadata
	// inside a single transaction and returns the
	// merged result.
	UpdateMetadata(ctx context.Context, jobID string, patch map[string]interface{}) (map[string]interface{}, error)

	// Finalize atomically writes the response, token/cost accounting and
	// sets IsFinalized. Returns ErrAlreadyFinalized if called twice for the
	// same job.
	Finalize(ctx context.Context, jobID string, result *JobFinalizeResult) error

	// ClaimQueuedForWorker atomically claims up to limit queued jobs,
	// ordered by worker-priority descending then created_at ascending, and
	// transitions them to AcknowledgedByWorker. Race-free across concurrent
	// callers.
	ClaimQueuedForWorker(ctx context.Context, limit int) ([]*models.Job, error)

	// ResetStaleAcknowledged resets jobs stuck in AcknowledgedByWorker for
	// longer than thresholdSeconds back to Queued. Returns the count reset.
	ResetStaleAcknowledged(ctx context.Context, thresholdSeconds int64) (int, error)

	// ClearHistory deletes terminal jobs older than daysToKeep. A
	// daysToKeep of 0 applies the configured default (90 days).
	// Negative sentinels: -1 deletes all terminal jobs regardless of age,
	// -2 is a no-op (used by callers that want to validate the call without
	// deleting anything).
	ClearHistory(ctx context.Context, daysToKeep int) (int, error)

	CancelJob(ctx context.Context, jobID string) error
	CancelSessionJobs(ctx context.Context, sessionID string) (int, error)
}

// ErrAlreadyFinalized is returned by JobRepository.Finalize when a job has
// already been finalized once.
var ErrAlreadyFinalized = errFinalized{}

type errFinalized struct{}

func (errFinalized) Error() string { return "job is already finalized" }

// JobFinalizeResult is the atomic write payload for JobRepository.Finalize.
type JobFinalizeResult struct {
	Response         string
	ErrorMessage     string
	Status           models.JobStatus
	TokensSent       int
	TokensReceived   int
	CacheReadTokens  int
	CacheWriteTokens int
	ModelUsed        string
	ActualCost       float64
	EndTime          int64
}

// SessionStore persists Session records.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, sessionID string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]*models.Session, error)
}

// SettingsStore is the namespaced key/value store backing Settings,
// per-project-per-task overrides and active-session tracking.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]string, error)
}

// CreditStore persists per-user credit balances and the append-only
// transaction ledger.
type CreditStore interface {
	GetBalance(ctx context.Context, userID string) (*models.CreditBalance, error)
	UpsertBalance(ctx context.Context, balance *models.CreditBalance) error
	AppendTransaction(ctx context.Context, tx *models.CreditTransaction) error
	ListTransactions(ctx context.Context, userID string, limit int) ([]*models.CreditTransaction, error)
}

// StorageManager is the composite interface the composition root wires up
// and hands to every subsystem that needs durable state.
type StorageManager interface {
	JobRepository() JobRepository
	SessionStore() SessionStore
	SettingsStore() SettingsStore
	CreditStore() CreditStore
	DB() interface{}
	Close() error
}
