package processor

import (
	"github.com/foundryhq/jobengine/internal/models"
)

// chatTaskSpec pairs a TaskType with the prompt builder and server default
// settings that parameterize the generic ChatTask.
type chatTaskSpec struct {
	taskType models.TaskType
	name     string
	build    PromptBuilder
	def      TaskDefault
}

var lightDefault = TaskDefault{Model: "claude-haiku-4-5", Temperature: 0.2, MaxTokens: 1500}
var heavyDefault = TaskDefault{Model: "claude-sonnet-4-5", Temperature: 0.4, MaxTokens: 4000}

var chatTaskCatalog = []chatTaskSpec{
	{models.TaskPathFinder, "path_finder", buildPathFinder, lightDefault},
	{models.TaskImplementationPlan, "implementation_plan", buildImplementationPlan, heavyDefault},
	{models.TaskRegexFileFilter, "regex_file_filter", buildRegexFileFilter, lightDefault},
	{models.TaskFileRelevanceAssessment, "file_relevance_assessment", buildFileRelevanceAssessment, lightDefault},
	{models.TaskExtendedPathFinder, "extended_path_finder", buildExtendedPathFinder, lightDefault},
	{models.TaskPathCorrection, "path_correction", buildPathCorrection, lightDefault},
	{models.TaskTextImprovement, "text_improvement", buildTextImprovement, lightDefault},
	{models.TaskTextCorrection, "text_correction", buildTextCorrection, lightDefault},
	{models.TaskVoiceTranscription, "voice_transcription", buildVoiceTranscription, lightDefault},
	{models.TaskVideoAnalysis, "video_analysis", buildVideoAnalysis, heavyDefault},
	{models.TaskWebSearchQueryGeneration, "web_search_query_generation", buildWebSearchQueryGeneration, lightDefault},
	{models.TaskWebSearchExecution, "web_search_execution", buildWebSearchExecution, heavyDefault},
	{models.TaskGuidanceGeneration, "guidance_generation", buildGuidanceGeneration, lightDefault},
	{models.TaskTaskRefinement, "task_refinement", buildTaskRefinement, lightDefault},
	{models.TaskDirectoryTreeGeneration, "directory_tree_generation", buildDirectoryTreeGeneration, heavyDefault},
	{models.TaskLocalFileFiltering, "local_file_filtering", buildLocalFileFiltering, lightDefault},
	{models.TaskRegexPatternGeneration, "regex_pattern_generation", buildRegexPatternGeneration, lightDefault},
	{models.TaskRegexSummaryGeneration, "regex_summary_generation", buildRegexSummaryGeneration, lightDefault},
}

// BuildRegistry constructs every task-type Processor and registers it: 18
// single-call ChatTasks, the streaming task (via StreamTask), and the
// non-LLM subscription lifecycle processor.
func BuildRegistry(ctx *Context, streamHandler StreamHandler, billing BillingClient) *Registry {
	registry := NewRegistry()

	for _, spec := range chatTaskCatalog {
		registry.Register(newChatTask(ctx, spec.taskType, spec.name, spec.build, spec.def))
	}

	registry.Register(newStreamTask(ctx, streamHandler))
	registry.Register(newSubscriptionLifecycleTask(ctx, billing))

	return registry
}
