package interfaces

import (
	"context"

	"github.com/foundryhq/jobengine/internal/models"
)

// WorkflowOrchestrator drives a multi-stage DAG to completion by watching
// stage job completions and enqueueing the next eligible stages (spec
// §4.J). State for in-flight workflows is kept in memory, snapshotted
// under a single mutex before any await, matching the single-writer
// discipline workflow state needs.
type WorkflowOrchestrator interface {
	// StartWorkflow creates a Workflow record for definitionName and
	// enqueues its initial (no-dependency) stages.
	StartWorkflow(ctx context.Context, sessionID, projectDir, definitionName string, seed map[string]interface{}) (*models.Workflow, error)

	// OnStageJobCompleted is invoked by the Scheduler/Processor path when a
	// stage's job reaches a terminal state. It extracts that stage's output,
	// merges it into the workflow's intermediate state, and enqueues any
	// stages whose dependencies are now satisfied.
	OnStageJobCompleted(ctx context.Context, jobID string) error

	CancelWorkflow(ctx context.Context, workflowID string) error
	GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error)
}

// StageOutputExtractor pulls the fields a later stage depends on out of a
// completed stage job's response/metadata. Each TaskType that
// appears in a WorkflowDefinition needs one.
type StageOutputExtractor func(job *models.Job) (map[string]interface{}, error)
