package workflow

import (
	"encoding/json"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// extractors maps each TaskType that appears as a workflow stage to the
// function that pulls the canonical intermediate-data slots a later
// stage's injector reads. RegexFileFilter's extractor
// rule in spec.md §4.J ("parse {filteredFiles:[...]}") is realized here on
// LocalFileFiltering, the TaskType the closed workflow catalog
// (models.FileFinderWorkflow) actually uses for that stage — both shapes
// describe "filter a file list with a regex", so LocalFileFiltering's
// response is decoded the same way.
var extractors = map[models.TaskType]interfaces.StageOutputExtractor{
	models.TaskRegexPatternGeneration:   extractRegexPatternGeneration,
	models.TaskLocalFileFiltering:       extractLocalFileFiltering,
	models.TaskFileRelevanceAssessment:  extractFileRelevanceAssessment,
	models.TaskExtendedPathFinder:       extractExtendedPathFinder,
	models.TaskPathCorrection:           extractPathCorrection,
	models.TaskWebSearchQueryGeneration: extractWebSearchQueryGeneration,
	models.TaskWebSearchExecution:       extractWebSearchExecution,
}

func extractRegexPatternGeneration(job *models.Job) (map[string]interface{}, error) {
	return map[string]interface{}{"regexPatterns": []string{job.Response}}, nil
}

func extractLocalFileFiltering(job *models.Job) (map[string]interface{}, error) {
	var decoded struct {
		FilteredFiles []string `json:"filteredFiles"`
	}
	if err := json.Unmarshal([]byte(job.Response), &decoded); err != nil {
		return nil, err
	}
	return map[string]interface{}{"locallyFilteredFiles": decoded.FilteredFiles}, nil
}

func extractFileRelevanceAssessment(job *models.Job) (map[string]interface{}, error) {
	var decoded struct {
		RelevantFiles []string `json:"relevantFiles"`
		TokenCount    int      `json:"tokenCount"`
	}
	if err := json.Unmarshal([]byte(job.Response), &decoded); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"aiFilteredFiles": decoded.RelevantFiles,
		"relevantFiles":   decoded.RelevantFiles,
		"relevantTokens":  decoded.TokenCount,
	}, nil
}

func extractExtendedPathFinder(job *models.Job) (map[string]interface{}, error) {
	var decoded struct {
		VerifiedPaths   []string `json:"verifiedPaths"`
		UnverifiedPaths []string `json:"unverifiedPaths"`
	}
	if err := json.Unmarshal([]byte(job.Response), &decoded); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"verifiedPaths":   decoded.VerifiedPaths,
		"unverifiedPaths": decoded.UnverifiedPaths,
	}, nil
}

func extractPathCorrection(job *models.Job) (map[string]interface{}, error) {
	var decoded struct {
		CorrectedPaths []string `json:"correctedPaths"`
	}
	if err := json.Unmarshal([]byte(job.Response), &decoded); err != nil {
		return nil, err
	}
	return map[string]interface{}{"correctedPaths": decoded.CorrectedPaths}, nil
}

func extractWebSearchQueryGeneration(job *models.Job) (map[string]interface{}, error) {
	return map[string]interface{}{"webSearchPrompt": job.Response}, nil
}

func extractWebSearchExecution(job *models.Job) (map[string]interface{}, error) {
	return map[string]interface{}{"webSearchAnswer": job.Response}, nil
}
