package processor

import (
	"fmt"

	"github.com/foundryhq/jobengine/internal/models"
)

// System prompt templates, one const per task type, in the teacher's
// prompt_templates.go style (plain string constants, composed with
// fmt.Sprintf rather than a templating engine).

const pathFinderSystemPrompt = `You locate files in a software project relevant to a user's request. Respond with a concise list of file paths, most relevant first.`

const implementationPlanSystemPrompt = `You write a step-by-step implementation plan for a software change. Be specific about files to touch and the order of edits.`

const regexFileFilterSystemPrompt = `You write a regular expression that matches file paths relevant to a search intent. Respond with the pattern only.`

const fileRelevanceAssessmentSystemPrompt = `You rank candidate files by relevance to a task and estimate the combined token count if all were included as context.`

const extendedPathFinderSystemPrompt = `You verify which candidate file paths actually address a task and separate verified from unverified paths.`

const pathCorrectionSystemPrompt = `You correct file paths that do not exist in the project, proposing the nearest valid path for each.`

const textImprovementSystemPrompt = `You improve the clarity and tone of the given text without changing its meaning.`

const textCorrectionSystemPrompt = `You correct grammar and spelling in the given text, preserving its meaning and formatting.`

const voiceTranscriptionSystemPrompt = `You clean up a raw speech-to-text transcript: fix obvious recognition errors and add punctuation.`

const videoAnalysisSystemPrompt = `You summarize the notable events and content of a video from its provided description/transcript.`

const webSearchQueryGenerationSystemPrompt = `You turn a task description into a concise, high-signal web search query.`

const webSearchExecutionSystemPrompt = `You are given web search results; synthesize them into an answer that addresses the original query, citing sources.`

const guidanceGenerationSystemPrompt = `You produce short, actionable guidance for the next step of a task given its current context.`

const taskRefinementSystemPrompt = `You rewrite an ambiguous task description into a precise, actionable one.`

const directoryTreeGenerationSystemPrompt = `You produce a concise textual directory tree summary for the given project, highlighting structurally significant directories.`

const localFileFilteringSystemPrompt = `You are given a list of file paths and one or more regular expressions; return only the paths that match.`

const regexPatternGenerationSystemPrompt = `You generate a regular expression pattern that captures file paths relevant to the given task description.`

const regexSummaryGenerationSystemPrompt = `You explain in plain language what a regular expression pattern is intended to match.`

// buildPathFinder composes PathFinder's prompt from a free-text query and
// the session's project directory.
func buildPathFinder(job *models.Job, session *models.Session) (string, string, error) {
	query := payloadString(job.Payload, "query")
	dir := projectDirOf(session)
	return pathFinderSystemPrompt, fmt.Sprintf("Project directory: %s\nFind files relevant to: %s", dir, query), nil
}

func buildImplementationPlan(job *models.Job, _ *models.Session) (string, string, error) {
	task := payloadString(job.Payload, "task_description")
	return implementationPlanSystemPrompt, fmt.Sprintf("Write an implementation plan for: %s", task), nil
}

func buildRegexFileFilter(job *models.Job, _ *models.Session) (string, string, error) {
	intent := payloadString(job.Payload, "pattern_description")
	return regexFileFilterSystemPrompt, fmt.Sprintf("Search intent: %s", intent), nil
}

func buildFileRelevanceAssessment(job *models.Job, _ *models.Session) (string, string, error) {
	files := payloadStringSlice(job.Payload, "locallyFilteredFiles")
	query := payloadString(job.Payload, "query")
	return fileRelevanceAssessmentSystemPrompt, fmt.Sprintf("Task: %s\nCandidate files:\n%s", query, joinList(files)), nil
}

func buildExtendedPathFinder(job *models.Job, _ *models.Session) (string, string, error) {
	files := payloadStringSlice(job.Payload, "initial_paths")
	return extendedPathFinderSystemPrompt, fmt.Sprintf("Candidate files:\n%s", joinList(files)), nil
}

func buildPathCorrection(job *models.Job, _ *models.Session) (string, string, error) {
	paths := payloadStringSlice(job.Payload, "unverifiedPaths")
	return pathCorrectionSystemPrompt, fmt.Sprintf("Unverified paths:\n%s", joinList(paths)), nil
}

func buildTextImprovement(job *models.Job, _ *models.Session) (string, string, error) {
	return textImprovementSystemPrompt, payloadString(job.Payload, "text"), nil
}

func buildTextCorrection(job *models.Job, _ *models.Session) (string, string, error) {
	return textCorrectionSystemPrompt, payloadString(job.Payload, "text"), nil
}

func buildVoiceTranscription(job *models.Job, _ *models.Session) (string, string, error) {
	transcript := payloadString(job.Payload, "raw_transcript")
	return voiceTranscriptionSystemPrompt, fmt.Sprintf("Raw transcript:\n%s", transcript), nil
}

func buildVideoAnalysis(job *models.Job, _ *models.Session) (string, string, error) {
	desc := payloadString(job.Payload, "video_description")
	return videoAnalysisSystemPrompt, fmt.Sprintf("Video description:\n%s", desc), nil
}

func buildWebSearchQueryGeneration(job *models.Job, _ *models.Session) (string, string, error) {
	task := payloadString(job.Payload, "task_description")
	return webSearchQueryGenerationSystemPrompt, fmt.Sprintf("Task: %s", task), nil
}

func buildWebSearchExecution(job *models.Job, _ *models.Session) (string, string, error) {
	query := payloadString(job.Payload, "webSearchPrompt")
	results := payloadStringSlice(job.Payload, "search_results")
	return webSearchExecutionSystemPrompt, fmt.Sprintf("Query: %s\nResults:\n%s", query, joinList(results)), nil
}

func buildGuidanceGeneration(job *models.Job, _ *models.Session) (string, string, error) {
	return guidanceGenerationSystemPrompt, payloadString(job.Payload, "context"), nil
}

func buildTaskRefinement(job *models.Job, _ *models.Session) (string, string, error) {
	return taskRefinementSystemPrompt, payloadString(job.Payload, "task_description"), nil
}

func buildDirectoryTreeGeneration(job *models.Job, session *models.Session) (string, string, error) {
	return directoryTreeGenerationSystemPrompt, fmt.Sprintf("Project directory: %s", projectDirOf(session)), nil
}

func buildLocalFileFiltering(job *models.Job, _ *models.Session) (string, string, error) {
	files := payloadStringSlice(job.Payload, "file_list")
	patterns := payloadStringSlice(job.Payload, "regexPatterns")
	return localFileFilteringSystemPrompt, fmt.Sprintf("Patterns:\n%s\nFiles:\n%s", joinList(patterns), joinList(files)), nil
}

func buildRegexPatternGeneration(job *models.Job, _ *models.Session) (string, string, error) {
	task := payloadString(job.Payload, "task_description")
	return regexPatternGenerationSystemPrompt, fmt.Sprintf("Task: %s", task), nil
}

func buildRegexSummaryGeneration(job *models.Job, _ *models.Session) (string, string, error) {
	patterns := payloadStringSlice(job.Payload, "regexPatterns")
	return regexSummaryGenerationSystemPrompt, fmt.Sprintf("Patterns:\n%s", joinList(patterns)), nil
}

func projectDirOf(session *models.Session) string {
	if session == nil {
		return ""
	}
	if dir, ok := session.EffectiveProjectDirectory(); ok {
		return dir
	}
	return ""
}
