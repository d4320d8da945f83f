package models

// WorkflowStatus tracks the aggregate state of a workflow instance.
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCanceled  WorkflowStatus = "canceled"
)

// StageDefinition is one node of a workflow catalog entry (spec.md §3).
type StageDefinition struct {
	StageName  string   `json:"stage_name"`
	TaskType   TaskType `json:"task_type"`
	DependsOn  []string `json:"depends_on"`
	Skippable  bool     `json:"skippable"`
}

// WorkflowDefinition is a named, static DAG drawn from the closed catalog
// referenced in spec.md §3 and §9 (FileFinder, WebSearch).
type WorkflowDefinition struct {
	Name   string            `json:"name"`
	Stages []StageDefinition `json:"stages"`
}

// StageStatus mirrors the owning Job's status for the purpose of dependency
// gating (spec.md §3 invariant: a stage is eligible once every dependency
// has a Completed entry).
type StageStatus string

const (
	StageQueued    StageStatus = "queued"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageCanceled  StageStatus = "canceled"
)

// StageJob is the realized triple {stage_name, task_type, job_id, status}
// tracked per spec.md §3 "Workflow" data model.
type StageJob struct {
	StageName        string      `json:"stage_name"`
	TaskType         TaskType    `json:"task_type"`
	JobID            string      `json:"job_id"`
	Status           StageStatus `json:"status"`
	CreatedAt        int64       `json:"created_at"`
	DependsOnJobID   []string    `json:"depends_on_job_id,omitempty"`
}

// Workflow is a named DAG instance (spec.md §3 "Workflow").
type Workflow struct {
	ID             string                 `json:"id"`
	SessionID      string                 `json:"session_id"`
	ProjectDir     string                 `json:"project_directory"`
	Definition     WorkflowDefinition     `json:"definition"`
	StageJobs      []StageJob             `json:"stage_jobs"`
	Intermediate   map[string]interface{} `json:"intermediate_data"`
	Status         WorkflowStatus         `json:"status"`
	CreatedAt      int64                  `json:"created_at"`
	UpdatedAt      int64                  `json:"updated_at"`
}

// FindStage returns the realized StageJob for stageName, if any.
func (w *Workflow) FindStage(stageName string) (*StageJob, bool) {
	for i := range w.StageJobs {
		if w.StageJobs[i].StageName == stageName {
			return &w.StageJobs[i], true
		}
	}
	return nil, false
}

// FindStageByJobID returns the realized StageJob owning jobID, if any.
func (w *Workflow) FindStageByJobID(jobID string) (*StageJob, bool) {
	for i := range w.StageJobs {
		if w.StageJobs[i].JobID == jobID {
			return &w.StageJobs[i], true
		}
	}
	return nil, false
}

// DependenciesSatisfied reports whether every stage def declares depends_on
// entries are present in StageJobs with status Completed.
func (w *Workflow) DependenciesSatisfied(def StageDefinition) bool {
	for _, dep := range def.DependsOn {
		stage, ok := w.FindStage(dep)
		if !ok || stage.Status != StageCompleted {
			return false
		}
	}
	return true
}

// IsTerminal reports whether every stage definition has a Completed entry
// or a Failed/Canceled non-skippable entry exists (spec.md §3 invariant).
func (w *Workflow) IsTerminal() (terminal bool, failed bool) {
	completedCount := 0
	for _, def := range w.Definition.Stages {
		stage, ok := w.FindStage(def.StageName)
		if !ok {
			continue
		}
		switch stage.Status {
		case StageCompleted:
			completedCount++
		case StageFailed, StageCanceled:
			if !def.Skippable {
				return true, true
			}
			completedCount++
		}
	}
	if completedCount == len(w.Definition.Stages) {
		return true, false
	}
	return false, false
}

// Well-known workflow catalog names (spec.md §9: the catalog is closed).
const (
	WorkflowFileFinder = "FileFinder"
	WorkflowWebSearch  = "WebSearch"
)

// FileFinderWorkflow is the closed-catalog definition from spec.md §8
// scenario 3: RegexPatternGeneration -> LocalFileFiltering ->
// FileRelevanceAssessment -> ExtendedPathFinder -> PathCorrection.
func FileFinderWorkflow() WorkflowDefinition {
	return WorkflowDefinition{
		Name: WorkflowFileFinder,
		Stages: []StageDefinition{
			{StageName: "regex_pattern_generation", TaskType: TaskRegexPatternGeneration},
			{StageName: "local_file_filtering", TaskType: TaskLocalFileFiltering, DependsOn: []string{"regex_pattern_generation"}},
			{StageName: "file_relevance_assessment", TaskType: TaskFileRelevanceAssessment, DependsOn: []string{"local_file_filtering"}},
			{StageName: "extended_path_finder", TaskType: TaskExtendedPathFinder, DependsOn: []string{"file_relevance_assessment"}},
			{StageName: "path_correction", TaskType: TaskPathCorrection, DependsOn: []string{"extended_path_finder"}},
		},
	}
}

// WebSearchWorkflow generates a search query then executes it.
func WebSearchWorkflow() WorkflowDefinition {
	return WorkflowDefinition{
		Name: WorkflowWebSearch,
		Stages: []StageDefinition{
			{StageName: "web_search_query_generation", TaskType: TaskWebSearchQueryGeneration},
			{StageName: "web_search_execution", TaskType: TaskWebSearchExecution, DependsOn: []string{"web_search_query_generation"}},
		},
	}
}

// LookupWorkflowDefinition resolves a catalog entry by name. The catalog is
// a closed set per spec.md §9 Open Question: callers must not synthesize
// arbitrary DAGs at runtime.
func LookupWorkflowDefinition(name string) (WorkflowDefinition, bool) {
	switch name {
	case WorkflowFileFinder:
		return FileFinderWorkflow(), true
	case WorkflowWebSearch:
		return WebSearchWorkflow(), true
	default:
		return WorkflowDefinition{}, false
	}
}
