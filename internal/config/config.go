package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/ragbench/internal/backoff"
	"github.com/haasonsaas/ragbench/internal/ratelimit"
	"github.com/haasonsaas/ragbench/pkg/models"
)

// CurrentVersion is the configuration layout this build reads.
const CurrentVersion = 1

// Config is the main configuration structure for ragbench.
type Config struct {
	Version    int               `yaml:"version"`
	Dataset    string            `yaml:"dataset"`
	OutputDir  string            `yaml:"output_dir"`
	Thresholds models.Thresholds `yaml:"thresholds"`
	Router     RouterConfig      `yaml:"router"`
	Executor   ExecutorConfig    `yaml:"executor"`
	Cache      CacheConfig       `yaml:"cache"`
	Embeddings EmbeddingsConfig  `yaml:"embeddings"`
	Agent      AgentConfig       `yaml:"agent"`
	Storage    StorageConfig     `yaml:"storage"`
	Logging    LoggingConfig     `yaml:"logging"`
	Tracing    TracingConfig     `yaml:"tracing"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Schedule   ScheduleConfig    `yaml:"schedule"`

	// Sources lists the files Load read, includes first.
	Sources []string `yaml:"-" json:"-"`
}

type RouterConfig struct {
	FallbackType  models.QueryType `yaml:"fallback_type"`
	MinConfidence float64          `yaml:"min_confidence"`
	LLM           RouterLLMConfig  `yaml:"llm"`
}

// RouterLLMConfig enables model-based classification for queries the
// keyword router cannot place.
type RouterLLMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

type ExecutorConfig struct {
	Concurrency int           `yaml:"concurrency"`
	BatchSize   int           `yaml:"batch_size"`
	Timeout     time.Duration `yaml:"timeout"`
	Retry       RetryConfig   `yaml:"retry"`
}

// RetryConfig bounds agent retries. MaxAttempts includes the first call.
type RetryConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	backoff.Policy `yaml:",inline"`
}

type CacheConfig struct {
	Enabled  bool `yaml:"enabled"`
	Capacity int  `yaml:"capacity"`
}

type EmbeddingsConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

type AgentConfig struct {
	Mode       string        `yaml:"mode"`
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	ReplayFile string        `yaml:"replay_file"`
	// RateLimit paces calls to the agent across all workers.
	RateLimit ratelimit.Config `yaml:"rate_limit"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	// Format is json, text, or auto (text when stderr is a terminal).
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// ScheduleConfig configures online mode. Cron takes precedence over Every.
type ScheduleConfig struct {
	Cron     string        `yaml:"cron"`
	Every    time.Duration `yaml:"every"`
	Timezone string        `yaml:"timezone"`
	// RunOnStart runs one benchmark immediately before waiting for the
	// first scheduled time.
	RunOnStart bool `yaml:"run_on_start"`
}

// Agent modes.
const (
	AgentModeHTTP   = "http"
	AgentModeReplay = "replay"
)

// Default returns a configuration populated with defaults. Load decodes on
// top of it, so keys missing from the file keep these values.
func Default() *Config {
	return &Config{
		Version:    CurrentVersion,
		OutputDir:  "./bench-results",
		Thresholds: models.DefaultThresholds(),
		Router: RouterConfig{
			FallbackType:  models.QueryTypeResearch,
			MinConfidence: 0.6,
			LLM:           RouterLLMConfig{Provider: "anthropic"},
		},
		Executor: ExecutorConfig{
			Concurrency: 4,
			BatchSize:   5,
			Timeout:     30 * time.Second,
			Retry:       RetryConfig{MaxAttempts: 1, Policy: backoff.DefaultPolicy()},
		},
		Cache: CacheConfig{Enabled: true, Capacity: 1000},
		Agent: AgentConfig{
			Mode:    AgentModeHTTP,
			URL:     "http://localhost:8787/query",
			Timeout: 60 * time.Second,
		},
		Storage: StorageConfig{Path: "./bench-results/ragbench.db"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Tracing: TracingConfig{ServiceName: "ragbench", SamplingRate: 1.0, Insecure: true},
	}
}

// Load reads path with its includes, decodes it onto Default() and
// validates the result.
func Load(path string) (*Config, error) {
	doc, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeDocument(doc.Values)
	if err != nil {
		return nil, err
	}
	cfg.Sources = doc.Sources
	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills values that were explicitly zeroed but have no
// meaningful zero.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.OutputDir == "" {
		cfg.OutputDir = def.OutputDir
	}
	if cfg.Router.FallbackType == "" {
		cfg.Router.FallbackType = def.Router.FallbackType
	}
	if cfg.Executor.Concurrency == 0 {
		cfg.Executor.Concurrency = def.Executor.Concurrency
	}
	if cfg.Executor.BatchSize == 0 {
		cfg.Executor.BatchSize = def.Executor.BatchSize
	}
	if cfg.Executor.Retry.MaxAttempts == 0 {
		cfg.Executor.Retry.MaxAttempts = 1
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = def.Cache.Capacity
	}
	if cfg.Agent.Mode == "" {
		cfg.Agent.Mode = def.Agent.Mode
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = def.Tracing.ServiceName
	}
}

// ConfigValidationError collects every problem found in a configuration.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	var issues []string

	if cfg.Version != CurrentVersion {
		issues = append(issues, fmt.Sprintf("version %d is not supported (this build reads version %d)", cfg.Version, CurrentVersion))
	}

	fraction := func(name string, v float64) {
		if v < 0 || v > 1 {
			issues = append(issues, fmt.Sprintf("%s must be between 0 and 1", name))
		}
	}
	fraction("thresholds.citation_correctness", cfg.Thresholds.CitationCorrectness)
	fraction("thresholds.completeness", cfg.Thresholds.Completeness)
	fraction("thresholds.ece", cfg.Thresholds.ECE)
	fraction("thresholds.precision_at_5_regression", cfg.Thresholds.PrecisionAt5Regression)
	fraction("router.min_confidence", cfg.Router.MinConfidence)
	fraction("tracing.sampling_rate", cfg.Tracing.SamplingRate)

	if !cfg.Router.FallbackType.Valid() {
		issues = append(issues, fmt.Sprintf("router.fallback_type %q is not a query type", cfg.Router.FallbackType))
	}
	if cfg.Router.LLM.Enabled {
		switch strings.ToLower(cfg.Router.LLM.Provider) {
		case "anthropic", "openai":
		default:
			issues = append(issues, fmt.Sprintf("router.llm.provider %q must be anthropic or openai", cfg.Router.LLM.Provider))
		}
	}

	if cfg.Executor.Concurrency < 0 {
		issues = append(issues, "executor.concurrency must be positive")
	}
	if cfg.Executor.BatchSize < 0 {
		issues = append(issues, "executor.batch_size must be positive")
	}
	if cfg.Executor.Timeout < 0 {
		issues = append(issues, "executor.timeout must not be negative")
	}
	if cfg.Executor.Retry.MaxAttempts < 0 {
		issues = append(issues, "executor.retry.max_attempts must be positive")
	}
	if cfg.Cache.Capacity < 0 {
		issues = append(issues, "cache.capacity must be positive")
	}
	if cfg.Agent.RateLimit.RequestsPerSecond < 0 || cfg.Agent.RateLimit.BurstSize < 0 {
		issues = append(issues, "agent.rate_limit values must not be negative")
	}
	if cfg.Schedule.Every < 0 {
		issues = append(issues, "schedule.every must not be negative")
	}

	switch strings.ToLower(cfg.Embeddings.Provider) {
	case "", "openai", "ollama":
	default:
		issues = append(issues, fmt.Sprintf("embeddings.provider %q must be openai or ollama", cfg.Embeddings.Provider))
	}

	switch cfg.Agent.Mode {
	case AgentModeHTTP:
		if strings.TrimSpace(cfg.Agent.URL) == "" {
			issues = append(issues, "agent.url is required in http mode")
		}
	case AgentModeReplay:
		if strings.TrimSpace(cfg.Agent.ReplayFile) == "" {
			issues = append(issues, "agent.replay_file is required in replay mode")
		}
	default:
		issues = append(issues, fmt.Sprintf("agent.mode %q must be http or replay", cfg.Agent.Mode))
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "auto":
	default:
		issues = append(issues, fmt.Sprintf("logging.format %q must be json, text or auto", cfg.Logging.Format))
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, fmt.Sprintf("logging.level %q is not recognized", cfg.Logging.Level))
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
