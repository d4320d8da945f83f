package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskType discriminates the payload variant carried by a Job and selects
// the Processor that handles it (see internal/processor).
type TaskType string

const (
	TaskPathFinder                TaskType = "PathFinder"
	TaskImplementationPlan        TaskType = "ImplementationPlan"
	TaskRegexFileFilter           TaskType = "RegexFileFilter"
	TaskFileRelevanceAssessment   TaskType = "FileRelevanceAssessment"
	TaskExtendedPathFinder        TaskType = "ExtendedPathFinder"
	TaskPathCorrection            TaskType = "PathCorrection"
	TaskTextImprovement           TaskType = "TextImprovement"
	TaskTextCorrection            TaskType = "TextCorrection"
	TaskVoiceTranscription        TaskType = "VoiceTranscription"
	TaskVideoAnalysis             TaskType = "VideoAnalysis"
	TaskWebSearchQueryGeneration  TaskType = "WebSearchQueryGeneration"
	TaskWebSearchExecution        TaskType = "WebSearchExecution"
	TaskGuidanceGeneration        TaskType = "GuidanceGeneration"
	TaskTaskRefinement            TaskType = "TaskRefinement"
	TaskDirectoryTreeGeneration   TaskType = "DirectoryTreeGeneration"
	TaskLocalFileFiltering        TaskType = "LocalFileFiltering"
	TaskRegexPatternGeneration    TaskType = "RegexPatternGeneration"
	TaskRegexSummaryGeneration    TaskType = "RegexSummaryGeneration"
	TaskGenericLlmStream          TaskType = "GenericLlmStream"
	TaskSubscriptionLifecycle     TaskType = "SubscriptionLifecycle"
)

// AllTaskTypes returns the closed set of task types, used by the
// Processor Registry to fan a single Processor out across every TaskType
// it declares it can handle.
func AllTaskTypes() []TaskType {
	return []TaskType{
		TaskPathFinder, TaskImplementationPlan, TaskRegexFileFilter, TaskFileRelevanceAssessment,
		TaskExtendedPathFinder, TaskPathCorrection, TaskTextImprovement, TaskTextCorrection,
		TaskVoiceTranscription, TaskVideoAnalysis, TaskWebSearchQueryGeneration, TaskWebSearchExecution,
		TaskGuidanceGeneration, TaskTaskRefinement, TaskDirectoryTreeGeneration, TaskLocalFileFiltering,
		TaskRegexPatternGeneration, TaskRegexSummaryGeneration, TaskGenericLlmStream, TaskSubscriptionLifecycle,
	}
}

// IsValid reports whether t is one of the closed set of task types.
func (t TaskType) IsValid() bool {
	switch t {
	case TaskPathFinder, TaskImplementationPlan, TaskRegexFileFilter, TaskFileRelevanceAssessment,
		TaskExtendedPathFinder, TaskPathCorrection, TaskTextImprovement, TaskTextCorrection,
		TaskVoiceTranscription, TaskVideoAnalysis, TaskWebSearchQueryGeneration, TaskWebSearchExecution,
		TaskGuidanceGeneration, TaskTaskRefinement, TaskDirectoryTreeGeneration, TaskLocalFileFiltering,
		TaskRegexPatternGeneration, TaskRegexSummaryGeneration, TaskGenericLlmStream, TaskSubscriptionLifecycle:
		return true
	default:
		return false
	}
}

// JobStatus is the lifecycle state of a Job row (spec.md §3).
type JobStatus string

const (
	StatusQueued               JobStatus = "queued"
	StatusAcknowledgedByWorker JobStatus = "acknowledged_by_worker"
	StatusRunning              JobStatus = "running"
	StatusCompleted            JobStatus = "completed"
	StatusFailed               JobStatus = "failed"
	StatusCanceled             JobStatus = "canceled"
)

// IsTerminal reports whether status is one of the three terminal states.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Job is the persisted, schedulable unit of work described in spec.md §3.
// It is owned exclusively by the Job Repository (internal/storage/sqlite);
// every other component reads and writes it only through repository
// operations.
type Job struct {
	ID         string  `json:"id" db:"id"`
	SessionID  string  `json:"session_id" db:"session_id"`
	WorkflowID *string `json:"workflow_id,omitempty" db:"workflow_id"`
	StageName  *string `json:"stage_name,omitempty" db:"stage_name"`

	TaskType TaskType               `json:"task_type" db:"task_type"`
	Payload  map[string]interface{} `json:"payload" db:"-"`

	Priority  int   `json:"priority" db:"priority"`
	CreatedAt int64 `json:"created_at" db:"created_at"` // monotonic ms

	Status      JobStatus `json:"status" db:"status"`
	IsFinalized bool      `json:"is_finalized" db:"is_finalized"`

	SystemPromptTemplate string `json:"system_prompt_template" db:"system_prompt_template"`
	Prompt               string `json:"prompt" db:"prompt"`
	Response             string `json:"response" db:"response"`
	ErrorMessage         string `json:"error_message" db:"error_message"`

	TokensSent      int    `json:"tokens_sent" db:"tokens_sent"`
	TokensReceived  int    `json:"tokens_received" db:"tokens_received"`
	CacheReadTokens int    `json:"cache_read_tokens" db:"cache_read_tokens"`
	CacheWriteTokens int   `json:"cache_write_tokens" db:"cache_write_tokens"`
	ModelUsed       string `json:"model_used" db:"model_used"`
	ActualCost      float64 `json:"actual_cost" db:"actual_cost"`

	Metadata map[string]interface{} `json:"metadata" db:"-"`

	StartTime *int64 `json:"start_time,omitempty" db:"start_time"`
	EndTime   *int64 `json:"end_time,omitempty" db:"end_time"`
	UpdatedAt int64  `json:"updated_at" db:"updated_at"`

	Cleared bool `json:"cleared" db:"cleared"`
}

// jobPriorityForWorker derives the default claim priority for a task type
// when a caller does not request one explicitly (priority <= 0). Interactive,
// user-facing tasks outrank background housekeeping so a worker pool
// starved for capacity drains the queue in an order a user would expect,
// mirroring how the teacher's job_definition.go derives a job's Type from
// its first step's worker type when one isn't set explicitly.
func jobPriorityForWorker(taskType TaskType) int {
	switch taskType {
	case TaskGenericLlmStream, TaskTextImprovement, TaskTextCorrection, TaskVoiceTranscription:
		return 10
	case TaskPathFinder, TaskExtendedPathFinder, TaskPathCorrection, TaskImplementationPlan,
		TaskFileRelevanceAssessment, TaskGuidanceGeneration, TaskTaskRefinement:
		return 5
	case TaskSubscriptionLifecycle:
		return 1
	default:
		return 3
	}
}

// NewJob builds a new Queued job with a fresh id and creation timestamp. A
// priority of 0 or less is replaced with jobPriorityForWorker's default for
// taskType, recorded on both Priority (the claim ordering column) and
// metadata's worker_priority (the audit trail a caller can see without
// decoding the claim query). Callers (command handlers, the workflow
// orchestrator) fill in Prompt and SystemPromptTemplate once the processor
// composes them, per spec.md §4.I.
func NewJob(sessionID string, taskType TaskType, payload map[string]interface{}, priority int) *Job {
	now := NowMillis()
	if payload == nil {
		payload = map[string]interface{}{}
	}
	if priority <= 0 {
		priority = jobPriorityForWorker(taskType)
	}
	return &Job{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		TaskType:  taskType,
		Payload:   payload,
		Priority:  priority,
		CreatedAt: now,
		Status:    StatusQueued,
		Metadata:  map[string]interface{}{"worker_priority": priority},
		UpdatedAt: now,
	}
}

// NewStageJob builds a job that realizes one stage of a workflow.
func NewStageJob(sessionID, workflowID, stageName string, taskType TaskType, payload map[string]interface{}, priority int) *Job {
	j := NewJob(sessionID, taskType, payload, priority)
	j.WorkflowID = &workflowID
	j.StageName = &stageName
	return j
}

// NowMillis returns the current time as epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
