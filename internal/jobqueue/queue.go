// Package jobqueue implements the in-memory dispatch queue:
// a priority heap ordered by (-priority, created_at), a counting
// semaphore sized from max_concurrent_jobs, and per-job cancellation
// tokens for in-flight work. It is a dispatch-ordering cache in front
// of the durable JobRepository, not a second source of truth.
package jobqueue

import (
	"container/heap"
	"context"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// Queue is the in-memory priority dispatch queue.
type Queue struct {
	mu        sync.Mutex
	heap      jobHeap
	waiters   chan struct{}
	slots     chan struct{}
	inflight  map[string]*inflightJob
	cancelled map[string]bool
	closed    bool
	logger    arbor.ILogger
}

var _ interfaces.JobQueue = (*Queue)(nil)

// New creates a Queue with maxConcurrent dispatch slots. A maxConcurrent
// of zero or less is treated as 1 to avoid deadlocking NextForRun forever.
func New(maxConcurrent int, logger arbor.ILogger) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Queue{
		waiters:   make(chan struct{}, 1<<20),
		slots:     make(chan struct{}, maxConcurrent),
		inflight:  make(map[string]*inflightJob),
		cancelled: make(map[string]bool),
		logger:    logger,
	}
}

type inflightJob struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Enqueue admits job for dispatch ordered by (-priority, created_at).
func (q *Queue) Enqueue(job *models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return interfaces.ErrQueueClosed
	}

	heap.Push(&q.heap, job)
	select {
	case q.waiters <- struct{}{}:
	default:
	}
	return nil
}

// NextForRun blocks until a concurrency slot and a queued job are both
// available, then returns the job with its own cancellable context
// registered for Cancel/CancellationToken to observe.
func (q *Queue) NextForRun(ctx context.Context) (*models.Job, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case q.slots <- struct{}{}:
		}

		job, ok := q.pop()
		if ok {
			return job, nil
		}

		<-q.slots

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.waiters:
		}
	}
}

func (q *Queue) pop() (*models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.heap.Len() > 0 {
		job := heap.Pop(&q.heap).(*models.Job)
		if q.cancelled[job.ID] {
			delete(q.cancelled, job.ID)
			continue
		}
		jobCtx, cancel := context.WithCancel(context.Background())
		q.inflight[job.ID] = &inflightJob{ctx: jobCtx, cancel: cancel}
		return job, true
	}
	return nil, false
}

// Release frees the concurrency slot held for jobID. Safe to call once
// per job returned from NextForRun, after the job finishes.
func (q *Queue) Release(jobID string) {
	q.mu.Lock()
	if job, ok := q.inflight[jobID]; ok {
		job.cancel()
		delete(q.inflight, jobID)
	}
	q.mu.Unlock()

	select {
	case <-q.slots:
	default:
	}
}

// Cancel removes jobID from the queue if still waiting, or cancels its
// in-flight context if already dispatched. Returns false if jobID is
// unknown to the queue in either state.
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job, ok := q.inflight[jobID]; ok {
		job.cancel()
		return true
	}

	for i, j := range q.heap {
		if j.ID == jobID {
			heap.Remove(&q.heap, i)
			return true
		}
	}
	return false
}

// CancelSessionJobs cancels every job belonging to sessionID that is
// still waiting in the queue and returns the count cancelled. Jobs
// already dispatched are not cancelled: in-flight entries do not record
// their session.
func (q *Queue) CancelSessionJobs(sessionID string) int {
	q.mu.Lock()
	var ids []string
	for _, j := range q.heap {
		if j.SessionID == sessionID {
			ids = append(ids, j.ID)
		}
	}
	q.mu.Unlock()

	count := 0
	for _, id := range ids {
		if q.Cancel(id) {
			count++
		}
	}
	return count
}

// CancellationToken returns the context backing jobID's in-flight
// dispatch, cancelled when Cancel(jobID) or Release(jobID) is called.
// Returns nil if jobID is not currently dispatched.
func (q *Queue) CancellationToken(jobID string) context.Context {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.inflight[jobID]; ok {
		return job.ctx
	}
	return nil
}

// Len reports the number of jobs currently waiting (not yet dispatched).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Close marks the queue closed; further Enqueue calls fail.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

type jobHeap []*models.Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].CreatedAt < h[j].CreatedAt
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x interface{}) {
	*h = append(*h, x.(*models.Job))
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
