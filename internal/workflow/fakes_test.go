package workflow

import (
	"context"
	"sync"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

type fakeJobRepo struct {
	interfaces.JobRepository
	mu      sync.Mutex
	byID    map[string]*models.Job
	created []*models.Job
	cancels []string
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{byID: make(map[string]*models.Job)}
}

func (f *fakeJobRepo) Create(_ context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[job.ID] = job
	f.created = append(f.created, job)
	return nil
}

func (f *fakeJobRepo) GetByID(_ context.Context, jobID string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[jobID], nil
}

func (f *fakeJobRepo) CancelJob(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, jobID)
	return nil
}

// complete simulates the job reaching a terminal state with the given
// response, as if a Processor had just finalized it.
func (f *fakeJobRepo) complete(jobID string, status models.JobStatus, response string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.byID[jobID]
	job.Status = status
	job.Response = response
}

type fakeQueue struct {
	interfaces.JobQueue
	mu       sync.Mutex
	enqueued []*models.Job
	canceled []string
}

func (f *fakeQueue) Enqueue(job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, job)
	return nil
}

func (f *fakeQueue) Cancel(jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, jobID)
	return true
}
