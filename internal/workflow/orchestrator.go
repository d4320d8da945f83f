// Package workflow drives a closed-catalog multi-stage DAG (spec.md §3
// "Workflow", §4.J) to completion: each stage is realized as one Job, and
// the orchestrator watches stage completions, extracts their output into
// a workflow-scoped intermediate map, and enqueues whichever stages just
// became dependency-eligible.
package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// workflowState pairs a Workflow with its own mutex so that two unrelated
// workflows never block one another's stage dispatch, while mutations to a
// single workflow's StageJobs/Intermediate/Status remain serialized.
type workflowState struct {
	mu sync.Mutex
	wf *models.Workflow
}

// Orchestrator implements interfaces.WorkflowOrchestrator. Workflow state
// lives only in memory: only plain state sits under the mutex, all awaited
// work happens outside the critical section, and the mutex is re-acquired
// to commit results. There is no durable workflows table; a crash loses
// in-flight workflow progress the same way the original Rust orchestrator's
// HashMap<workflow_id, WorkflowState> did.
type Orchestrator struct {
	registryMu sync.RWMutex
	workflows  map[string]*workflowState

	jobs  interfaces.JobRepository
	queue interfaces.JobQueue

	maxConcurrentStages int
	logger              arbor.ILogger
}

var _ interfaces.WorkflowOrchestrator = (*Orchestrator)(nil)

func NewOrchestrator(jobs interfaces.JobRepository, queue interfaces.JobQueue, maxConcurrentStages int, logger arbor.ILogger) *Orchestrator {
	if maxConcurrentStages <= 0 {
		maxConcurrentStages = 3
	}
	return &Orchestrator{
		workflows:           make(map[string]*workflowState),
		jobs:                jobs,
		queue:               queue,
		maxConcurrentStages: maxConcurrentStages,
		logger:              logger,
	}
}

func (o *Orchestrator) StartWorkflow(ctx context.Context, sessionID, projectDir, definitionName string, seed map[string]interface{}) (*models.Workflow, error) {
	def, ok := models.LookupWorkflowDefinition(definitionName)
	if !ok {
		return nil, fmt.Errorf("unknown workflow definition %q", definitionName)
	}

	intermediate := make(map[string]interface{}, len(seed))
	for k, v := range seed {
		intermediate[k] = v
	}

	now := models.NowMillis()
	wf := &models.Workflow{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		ProjectDir:   projectDir,
		Definition:   def,
		StageJobs:    nil,
		Intermediate: intermediate,
		Status:       models.WorkflowRunning,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ws := &workflowState{wf: wf}
	o.registryMu.Lock()
	o.workflows[wf.ID] = ws
	o.registryMu.Unlock()

	if err := o.dispatchEligibleStages(ctx, ws); err != nil {
		return nil, err
	}
	return wf, nil
}

func (o *Orchestrator) GetWorkflow(_ context.Context, workflowID string) (*models.Workflow, error) {
	ws := o.lookup(workflowID)
	if ws == nil {
		return nil, fmt.Errorf("workflow %s not found", workflowID)
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.wf, nil
}

func (o *Orchestrator) CancelWorkflow(ctx context.Context, workflowID string) error {
	ws := o.lookup(workflowID)
	if ws == nil {
		return fmt.Errorf("workflow %s not found", workflowID)
	}

	ws.mu.Lock()
	var toCancel []string
	for i := range ws.wf.StageJobs {
		stage := &ws.wf.StageJobs[i]
		if stage.Status == models.StageQueued || stage.Status == models.StageRunning {
			toCancel = append(toCancel, stage.JobID)
			stage.Status = models.StageCanceled
		}
	}
	ws.wf.Status = models.WorkflowCanceled
	ws.wf.UpdatedAt = models.NowMillis()
	ws.mu.Unlock()

	for _, jobID := range toCancel {
		o.queue.Cancel(jobID)
		if err := o.jobs.CancelJob(ctx, jobID); err != nil {
			o.logger.Warn().Err(err).Str("job_id", jobID).Str("workflow_id", workflowID).Msg("failed to cancel stage job")
		}
	}
	return nil
}

// OnStageJobCompleted extracts the completed job's stage output, merges it
// into the owning workflow's intermediate state, and dispatches whatever
// stages that merge newly made dependency-eligible.
func (o *Orchestrator) OnStageJobCompleted(ctx context.Context, jobID string) error {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load completed job %s: %w", jobID, err)
	}
	if job.WorkflowID == nil {
		return nil
	}

	ws := o.lookup(*job.WorkflowID)
	if ws == nil {
		return nil
	}

	ws.mu.Lock()
	stage, ok := ws.wf.FindStageByJobID(jobID)
	if !ok {
		ws.mu.Unlock()
		return nil
	}

	switch job.Status {
	case models.StatusCompleted:
		stage.Status = models.StageCompleted
		if extract, ok := extractors[job.TaskType]; ok {
			output, err := extract(job)
			if err != nil {
				o.logger.Warn().Err(err).Str("job_id", jobID).Str("task_type", string(job.TaskType)).Msg("failed to extract stage output")
			} else {
				for k, v := range output {
					ws.wf.Intermediate[k] = v
				}
			}
		}
	case models.StatusFailed:
		stage.Status = models.StageFailed
	case models.StatusCanceled:
		stage.Status = models.StageCanceled
	default:
		ws.mu.Unlock()
		return nil
	}
	ws.wf.UpdatedAt = models.NowMillis()
	ws.mu.Unlock()

	if err := o.dispatchEligibleStages(ctx, ws); err != nil {
		return err
	}

	ws.mu.Lock()
	if terminal, failed := ws.wf.IsTerminal(); terminal {
		if failed {
			ws.wf.Status = models.WorkflowFailed
		} else {
			ws.wf.Status = models.WorkflowCompleted
		}
		ws.wf.UpdatedAt = models.NowMillis()
	}
	ws.mu.Unlock()
	return nil
}

// dispatchEligibleStages computes which stage definitions are newly
// eligible and records their new StageJob entries under the workflow's
// mutex, then creates and enqueues their jobs outside it. Dispatch is capped at maxConcurrentStages in-flight stages per
// workflow; definitions deferred by the cap are retried on the next
// completion event, since eligibility persists until they are realized.
func (o *Orchestrator) dispatchEligibleStages(ctx context.Context, ws *workflowState) error {
	ws.mu.Lock()
	if ws.wf.Status != models.WorkflowRunning {
		ws.mu.Unlock()
		return nil
	}

	inFlight := 0
	for _, stage := range ws.wf.StageJobs {
		if stage.Status == models.StageQueued || stage.Status == models.StageRunning {
			inFlight++
		}
	}
	capacity := o.maxConcurrentStages - inFlight

	var toCreate []*models.Job
	for _, def := range ws.wf.Definition.Stages {
		if capacity <= 0 {
			break
		}
		if _, realized := ws.wf.FindStage(def.StageName); realized {
			continue
		}
		if !ws.wf.DependenciesSatisfied(def) {
			continue
		}
		dependsOnJobIDs := make([]string, 0, len(def.DependsOn))
		for _, dep := range def.DependsOn {
			if depStage, ok := ws.wf.FindStage(dep); ok {
				dependsOnJobIDs = append(dependsOnJobIDs, depStage.JobID)
			}
		}
		payload := payloadForStage(def.TaskType, ws.wf.Intermediate)
		job := models.NewStageJob(ws.wf.SessionID, ws.wf.ID, def.StageName, def.TaskType, payload, 0)
		toCreate = append(toCreate, job)
		capacity--

		ws.wf.StageJobs = append(ws.wf.StageJobs, models.StageJob{
			StageName:      def.StageName,
			TaskType:       def.TaskType,
			JobID:          job.ID,
			Status:         models.StageQueued,
			CreatedAt:      job.CreatedAt,
			DependsOnJobID: dependsOnJobIDs,
		})
	}
	ws.mu.Unlock()

	for _, job := range toCreate {
		if err := o.jobs.Create(ctx, job); err != nil {
			return fmt.Errorf("create stage job for %s: %w", *job.StageName, err)
		}
		if err := o.queue.Enqueue(job); err != nil {
			return fmt.Errorf("enqueue stage job for %s: %w", *job.StageName, err)
		}
	}
	return nil
}

func (o *Orchestrator) lookup(workflowID string) *workflowState {
	o.registryMu.RLock()
	defer o.registryMu.RUnlock()
	return o.workflows[workflowID]
}
