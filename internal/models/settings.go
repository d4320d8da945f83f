package models

import "fmt"

// Well-known settings keys (spec.md §3 "Settings key/value").
const (
	SettingActiveSessionID = "active_session_id"
	SettingProjectDirectory = "project_directory"
)

// ProjectTaskSettingKey builds the namespaced settings key used to look up
// a per-project, per-task override (spec.md §3, §4.I resolution order).
func ProjectTaskSettingKey(projectHash string, task TaskType, field string) string {
	return fmt.Sprintf("project_task_settings:%s:%s:%s", projectHash, task, field)
}

// ExternalFoldersKey builds the namespaced key for a project's external
// folder list.
func ExternalFoldersKey(projectHash string) string {
	return fmt.Sprintf("external_folders:%s", projectHash)
}

// ModelSettings is the resolved (model, temperature, max_tokens) triple a
// processor uses to call a provider (spec.md §4.I step 2).
type ModelSettings struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}
