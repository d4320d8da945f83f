package interfaces

import (
	"context"

	"github.com/foundryhq/jobengine/internal/models"
)

// Processor executes one TaskType's worth of work for a job. Each
// concrete processor implements the task's 6-step contract:
// resolve session/project, resolve model settings, compose and persist the
// prompt, call the provider, and write either a success or failure result.
type Processor interface {
	// CanHandle reports whether this processor handles taskType.
	CanHandle(taskType models.TaskType) bool

	// Name identifies the processor for logging and retry classification.
	Name() string

	// Process executes job to completion, writing its own success/failure
	// result via the JobRepository and emitting Event Bus notifications. It
	// does not return the result to the caller: the job row is the result.
	Process(ctx context.Context, job *models.Job) error
}

// ProcessorRegistry routes a Job to the Processor registered for its
// TaskType.
type ProcessorRegistry interface {
	Register(processor Processor)
	Resolve(taskType models.TaskType) (Processor, bool)
}
