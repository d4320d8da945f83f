package interfaces

import (
	"context"
	"errors"

	"github.com/foundryhq/jobengine/internal/models"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("jobqueue: queue is closed")

// JobQueue is the in-memory priority queue that decides dispatch order
// within the process. It is distinct from JobRepository:
// the repository is the durable source of truth, the queue is a
// dispatch-ordering cache rebuilt from claimed jobs.
type JobQueue interface {
	// Enqueue admits a job for dispatch, ordered by (-priority, created_at).
	Enqueue(job *models.Job) error

	// NextForRun blocks (respecting ctx) until a concurrency slot is free
	// and a job is available, then returns it. The caller is responsible
	// for releasing the slot via Release once the job finishes.
	NextForRun(ctx context.Context) (*models.Job, error)

	// Release frees the concurrency slot held for jobID.
	Release(jobID string)

	// Cancel removes jobID from the queue if still waiting, or signals its
	// cancellation token if already dispatched. Returns false if jobID is unknown.
	Cancel(jobID string) bool

	// CancelSessionJobs cancels every still-waiting job for sessionID and
	// returns the count cancelled. Already dispatched jobs are not cancelled.
	CancelSessionJobs(sessionID string) int

	// CancellationToken returns the context associated with jobID's
	// in-flight execution, or nil if jobID is not currently dispatched.
	CancellationToken(jobID string) context.Context

	Len() int
	Close() error
}
