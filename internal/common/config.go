package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Environment     string          `toml:"environment"`       // "development" or "production" - controls strictness of validation
	DeleteOnStartup []string        `toml:"delete_on_startup"` // Delete data categories on startup. Valid values: settings, jobs, sessions (default: empty = delete nothing)
	Server          ServerConfig    `toml:"server"`
	Queue           QueueConfig     `toml:"queue"`
	Workflow        WorkflowConfig  `toml:"workflow"`
	Scheduler       SchedulerConfig `toml:"scheduler"`
	Storage         StorageConfig   `toml:"storage"`
	Credit          CreditConfig    `toml:"credit"`
	Logging         LoggingConfig   `toml:"logging"`
	Providers       ProvidersConfig `toml:"providers"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// QueueConfig governs the in-memory Job Queue.
type QueueConfig struct {
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"` // Global semaphore size across all sessions
}

// WorkflowConfig governs the Workflow Orchestrator.
type WorkflowConfig struct {
	MaxConcurrentStagesPerWorkflow int `toml:"max_concurrent_stages_per_workflow"`
}

// SchedulerConfig governs the claim/stale-reset loops.
type SchedulerConfig struct {
	ClaimInterval        string `toml:"claim_interval"`         // e.g. "500ms" - how often to claim queued jobs for dispatch
	StaleResetInterval   string `toml:"stale_reset_interval"`   // e.g. "30s" - how often to sweep acknowledged-but-stalled jobs
	StaleResetThreshold  string `toml:"stale_reset_threshold"`  // e.g. "2m" - age at which an acknowledged job is reset to queued
	ShutdownGraceTimeout string `toml:"shutdown_grace_timeout"` // e.g. "10s" - time to let in-flight jobs finish on shutdown
}

// StorageConfig selects and configures the embedded job repository.
type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
}

// SQLiteConfig configures the pure-Go SQLite connection backing the Job
// Repository, Session store and Settings KV store.
type SQLiteConfig struct {
	Path             string `toml:"path"`               // Database file path
	ResetOnStartup   bool   `toml:"reset_on_startup"`   // Delete database on startup (development only)
	Environment      string `toml:"-"`                  // populated from Config.Environment at load time
	BusyTimeout      string `toml:"busy_timeout"`       // e.g. "5s" - how long to wait on SQLITE_BUSY before retrying
	WAL              bool   `toml:"wal"`                // Enable WAL journal mode
	HistoryClearDays int    `toml:"history_clear_days"` // Default retention for clear_history when unset by caller (0 = 90 days)
}

// CreditConfig governs the Credit Service.
type CreditConfig struct {
	DefaultCurrency    string `toml:"default_currency"`     // ISO currency code, e.g. "USD"
	FreeCreditLifetime string `toml:"free_credit_lifetime"` // e.g. "720h" - how long granted free credit remains usable
}

type LoggingConfig struct {
	Level         string   `toml:"level"`           // "debug", "info", "warn", "error"
	Format        string   `toml:"format"`          // "json" or "text"
	Output        []string `toml:"output"`          // "stdout", "file"
	TimeFormat    string   `toml:"time_format"`     // Time format for logs (default: "15:04:05.000")
	MinEventLevel string   `toml:"min_event_level"` // Loaded from config; not read by any component
}

// ProvidersConfig names the vendor-shaped adapters the Provider layer can
// dispatch to. Each entry is addressed by the provider key used
// in ModelSettings.Model resolution (e.g. "openai", "anthropic", "openrouter").
type ProvidersConfig struct {
	OpenAI     ProviderConfig `toml:"openai"`
	Anthropic  ProviderConfig `toml:"anthropic"`
	OpenRouter ProviderConfig `toml:"openrouter"`
	// Fallback names the provider key retried once when the primary
	// provider fails with a fallback-eligible error.
	Fallback string `toml:"fallback"`
}

// ProviderConfig is the per-vendor wiring for a Provider Adapter.
type ProviderConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKeyEnv string `toml:"api_key_env"` // Name of the environment variable holding the API key
	Timeout   string `toml:"timeout"`     // e.g. "2m"
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in jobengine.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Queue: QueueConfig{
			MaxConcurrentJobs: 8,
		},
		Workflow: WorkflowConfig{
			MaxConcurrentStagesPerWorkflow: 3,
		},
		Scheduler: SchedulerConfig{
			ClaimInterval:        "500ms",
			StaleResetInterval:   "30s",
			StaleResetThreshold:  "2m",
			ShutdownGraceTimeout: "10s",
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:             "./data/jobengine.db",
				WAL:              true,
				BusyTimeout:      "5s",
				HistoryClearDays: 0, // 0 means 90 days
			},
		},
		Credit: CreditConfig{
			DefaultCurrency:    "USD",
			FreeCreditLifetime: "720h",
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "text",
			Output:        []string{"stdout", "file"},
			MinEventLevel: "info",
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				BaseURL:   "https://api.openai.com/v1",
				APIKeyEnv: "OPENAI_API_KEY",
				Timeout:   "2m",
			},
			Anthropic: ProviderConfig{
				BaseURL:   "https://api.anthropic.com",
				APIKeyEnv: "ANTHROPIC_API_KEY",
				Timeout:   "2m",
			},
			OpenRouter: ProviderConfig{
				BaseURL:   "https://openrouter.ai/api/v1",
				APIKeyEnv: "OPENROUTER_API_KEY",
				Timeout:   "2m",
			},
			Fallback: "openrouter",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env.
// CLI flags are applied separately by ApplyFlagOverrides.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override
// earlier files. CLI flags are applied separately by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)
	config.Storage.SQLite.Environment = config.Environment

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("JOBENGINE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("JOBENGINE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("JOBENGINE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if maxConcurrent := os.Getenv("JOBENGINE_QUEUE_MAX_CONCURRENT_JOBS"); maxConcurrent != "" {
		if mc, err := strconv.Atoi(maxConcurrent); err == nil {
			config.Queue.MaxConcurrentJobs = mc
		}
	}

	if maxStages := os.Getenv("JOBENGINE_WORKFLOW_MAX_CONCURRENT_STAGES"); maxStages != "" {
		if ms, err := strconv.Atoi(maxStages); err == nil {
			config.Workflow.MaxConcurrentStagesPerWorkflow = ms
		}
	}

	if claimInterval := os.Getenv("JOBENGINE_SCHEDULER_CLAIM_INTERVAL"); claimInterval != "" {
		config.Scheduler.ClaimInterval = claimInterval
	}
	if staleInterval := os.Getenv("JOBENGINE_SCHEDULER_STALE_RESET_INTERVAL"); staleInterval != "" {
		config.Scheduler.StaleResetInterval = staleInterval
	}
	if staleThreshold := os.Getenv("JOBENGINE_SCHEDULER_STALE_RESET_THRESHOLD"); staleThreshold != "" {
		config.Scheduler.StaleResetThreshold = staleThreshold
	}

	if dbPath := os.Getenv("JOBENGINE_SQLITE_PATH"); dbPath != "" {
		config.Storage.SQLite.Path = dbPath
	}

	if currency := os.Getenv("JOBENGINE_CREDIT_DEFAULT_CURRENCY"); currency != "" {
		config.Credit.DefaultCurrency = currency
	}

	if level := os.Getenv("JOBENGINE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("JOBENGINE_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("JOBENGINE_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range splitString(output, ",") {
			trimmed := trimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
	if minEventLevel := os.Getenv("JOBENGINE_LOG_MIN_EVENT_LEVEL"); minEventLevel != "" {
		config.Logging.MinEventLevel = minEventLevel
	}

	applyProviderEnvOverrides(&config.Providers.OpenAI, "JOBENGINE_OPENAI")
	applyProviderEnvOverrides(&config.Providers.Anthropic, "JOBENGINE_ANTHROPIC")
	applyProviderEnvOverrides(&config.Providers.OpenRouter, "JOBENGINE_OPENROUTER")
	if fallback := os.Getenv("JOBENGINE_PROVIDERS_FALLBACK"); fallback != "" {
		config.Providers.Fallback = fallback
	}
}

func applyProviderEnvOverrides(p *ProviderConfig, prefix string) {
	if baseURL := os.Getenv(prefix + "_BASE_URL"); baseURL != "" {
		p.BaseURL = baseURL
	}
	if apiKeyEnv := os.Getenv(prefix + "_API_KEY_ENV"); apiKeyEnv != "" {
		p.APIKeyEnv = apiKeyEnv
	}
	if timeout := os.Getenv(prefix + "_TIMEOUT"); timeout != "" {
		p.Timeout = timeout
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves a provider's API key by its configured environment
// variable name, falling back to a config value.
// Resolution order: environment variable -> config fallback -> error.
func ResolveAPIKey(envVarName string, configFallback string) (string, error) {
	if envVarName != "" {
		if envValue := os.Getenv(envVarName); envValue != "" {
			return envValue, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or config", envVarName)
}

// Helper functions for string manipulation.
func splitString(s, sep string) []string {
	result := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i = start - 1
		}
	}
	result = append(result, s[start:])
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

// IsProduction returns true if the environment is set to production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// DeepCloneConfig creates a deep copy of the Config struct.
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c

	if len(c.DeleteOnStartup) > 0 {
		clone.DeleteOnStartup = make([]string, len(c.DeleteOnStartup))
		copy(clone.DeleteOnStartup, c.DeleteOnStartup)
	}

	if len(c.Logging.Output) > 0 {
		clone.Logging.Output = make([]string, len(c.Logging.Output))
		copy(clone.Logging.Output, c.Logging.Output)
	}

	return &clone
}
