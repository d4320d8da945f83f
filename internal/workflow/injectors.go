package workflow

import "github.com/foundryhq/jobengine/internal/models"

// injectors maps a stage's TaskType to the subset of workflow intermediate
// state its job payload needs when building each eligible stage's input
// payload. A TaskType with no entry here receives the
// workflow's full intermediate map, which is how root stages (no
// dependencies) see the seed data StartWorkflow was called with.
var injectors = map[models.TaskType]func(intermediate map[string]interface{}) map[string]interface{}{
	models.TaskLocalFileFiltering: func(m map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"regexPatterns": m["regexPatterns"],
			"file_list":     m["file_list"],
		}
	},
	models.TaskFileRelevanceAssessment: func(m map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"locallyFilteredFiles": m["locallyFilteredFiles"],
			"query":                m["query"],
		}
	},
	models.TaskExtendedPathFinder: func(m map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"initial_paths": m["aiFilteredFiles"],
			"query":         m["query"],
		}
	},
	models.TaskPathCorrection: func(m map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"unverifiedPaths": m["unverifiedPaths"],
		}
	},
	models.TaskWebSearchExecution: func(m map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"webSearchPrompt": m["webSearchPrompt"],
		}
	},
}

func payloadForStage(taskType models.TaskType, intermediate map[string]interface{}) map[string]interface{} {
	if build, ok := injectors[taskType]; ok {
		return build(intermediate)
	}
	payload := make(map[string]interface{}, len(intermediate))
	for k, v := range intermediate {
		payload[k] = v
	}
	return payload
}
