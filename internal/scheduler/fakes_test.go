package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

type fakeJobs struct {
	interfaces.JobRepository
	mu         sync.Mutex
	queued     []*models.Job
	claimCalls int
	claimErr   error
	resetCount int
	resetErr   error
	resetCalls int
}

func (f *fakeJobs) ClaimQueuedForWorker(_ context.Context, limit int) ([]*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimCalls++
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.queued) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(f.queued) {
		n = len(f.queued)
	}
	claimed := f.queued[:n]
	f.queued = f.queued[n:]
	return claimed, nil
}

func (f *fakeJobs) ResetStaleAcknowledged(_ context.Context, _ int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls++
	return f.resetCount, f.resetErr
}

type fakeQueue struct {
	mu       sync.Mutex
	items    []*models.Job
	released []string
	closed   bool
}

func (q *fakeQueue) Enqueue(job *models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, job)
	return nil
}

func (q *fakeQueue) NextForRun(ctx context.Context) (*models.Job, error) {
	q.mu.Lock()
	if len(q.items) > 0 {
		job := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return job, nil
	}
	q.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *fakeQueue) Release(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.released = append(q.released, jobID)
}

func (q *fakeQueue) Cancel(_ string) bool                       { return false }
func (q *fakeQueue) CancelSessionJobs(_ string) int             { return 0 }
func (q *fakeQueue) CancellationToken(_ string) context.Context { return nil }
func (q *fakeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
func (q *fakeQueue) Close() error { q.closed = true; return nil }

var _ interfaces.JobQueue = (*fakeQueue)(nil)

type fakeProcessor struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *fakeProcessor) CanHandle(models.TaskType) bool { return true }
func (p *fakeProcessor) Name() string                   { return "fake" }
func (p *fakeProcessor) Process(_ context.Context, job *models.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, job.ID)
	return p.err
}

type fakeRegistry struct {
	processor interfaces.Processor
	missing   bool
}

func (r *fakeRegistry) Register(interfaces.Processor) {}
func (r *fakeRegistry) Resolve(models.TaskType) (interfaces.Processor, bool) {
	if r.missing {
		return nil, false
	}
	return r.processor, true
}

var errClaim = errors.New("claim failed")
