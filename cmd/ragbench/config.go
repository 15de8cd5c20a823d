package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/haasonsaas/ragbench/internal/agentclient"
	"github.com/haasonsaas/ragbench/internal/benchmark"
	"github.com/haasonsaas/ragbench/internal/config"
	"github.com/haasonsaas/ragbench/internal/embeddings"
	"github.com/haasonsaas/ragbench/internal/embeddings/ollama"
	"github.com/haasonsaas/ragbench/internal/embeddings/openai"
	"github.com/haasonsaas/ragbench/internal/eval"
	"github.com/haasonsaas/ragbench/internal/executor"
	"github.com/haasonsaas/ragbench/internal/observability"
	"github.com/haasonsaas/ragbench/internal/routing"
	"github.com/haasonsaas/ragbench/internal/storage"
	"github.com/haasonsaas/ragbench/pkg/models"
)

const (
	defaultConfigName = "ragbench.yaml"
	configEnvVar      = "RAGBENCH_CONFIG"
)

// resolveConfigPath applies RAGBENCH_CONFIG when the flag was left at its
// default.
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) == "" || path == defaultConfigName {
		if env := strings.TrimSpace(os.Getenv(configEnvVar)); env != "" {
			return env
		}
		return defaultConfigName
	}
	return path
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// loadConfigOrDefault falls back to defaults when the default config file
// does not exist. An explicitly named file must exist.
func loadConfigOrDefault(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	if path == defaultConfigName {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
	}
	return loadConfig(path)
}

// newLogger builds the CLI logger. The auto format picks text for an
// interactive terminal and JSON otherwise.
func newLogger(level, format string, w io.Writer) *observability.Logger {
	if format == "" || strings.EqualFold(format, "auto") {
		format = "json"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "text"
		}
	}
	return observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: format,
		Output: w,
	})
}

func buildRouter(cfg *config.Config) (*routing.Router, error) {
	router, err := routing.NewRouter(routing.Config{
		FallbackType:  cfg.Router.FallbackType,
		MinConfidence: cfg.Router.MinConfidence,
	})
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}
	return router, nil
}

// buildClassifier wraps router with the configured LLM classifier, or
// returns the router itself when the LLM is disabled.
func buildClassifier(cfg config.RouterLLMConfig, router *routing.Router, logger *observability.Logger) (routing.Classifier, error) {
	if !cfg.Enabled {
		return router, nil
	}
	completer, err := buildCompleter(cfg)
	if err != nil {
		return nil, err
	}
	return routing.NewLLMClassifier(router, completer, logger)
}

func buildCompleter(cfg config.RouterLLMConfig) (routing.Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "anthropic", "":
		return routing.NewAnthropicCompleter(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case "openai":
		return routing.NewOpenAICompleter(cfg.APIKey, cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported router llm provider %q", cfg.Provider)
	}
}

// buildEmbedder returns nil when no embedding provider is configured.
func buildEmbedder(cfg config.EmbeddingsConfig) (embeddings.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "":
		return nil, nil
	case "openai":
		p, err := openai.New(openai.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
		if err != nil {
			return nil, fmt.Errorf("build openai embeddings: %w", err)
		}
		return p, nil
	case "ollama":
		return ollama.New(ollama.Config{BaseURL: cfg.BaseURL, Model: cfg.Model}), nil
	default:
		return nil, fmt.Errorf("unsupported embeddings provider %q", cfg.Provider)
	}
}

func buildAgent(cfg config.AgentConfig) (benchmark.QueryExecutor, error) {
	switch cfg.Mode {
	case config.AgentModeReplay:
		replay, err := agentclient.LoadReplay(cfg.ReplayFile)
		if err != nil {
			return nil, fmt.Errorf("load replay file: %w", err)
		}
		return replay, nil
	case config.AgentModeHTTP, "":
		return agentclient.NewHTTPExecutor(cfg.URL, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unsupported agent mode %q", cfg.Mode)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*storage.RunStore, error) {
	store, err := storage.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	return store, nil
}

// resolveBaseline picks the metrics for the regression gate: a results file
// when given, otherwise the promoted baseline. It returns nil when there is
// no baseline, and a label describing the source.
func resolveBaseline(ctx context.Context, store storage.Store, file string, skip bool) (*models.QualityMetrics, string, error) {
	if skip {
		return nil, "disabled", nil
	}
	if file != "" {
		artifact, err := eval.LoadArtifact(file)
		if err != nil {
			return nil, "", fmt.Errorf("load baseline file: %w", err)
		}
		return &artifact.Metrics, file, nil
	}
	if store == nil {
		return nil, "none", nil
	}
	baseline, err := store.Baseline(ctx)
	if errors.Is(err, storage.ErrNoBaseline) {
		return nil, "none", nil
	}
	if err != nil {
		return nil, "", err
	}
	return &baseline.Metrics, "run " + baseline.RunID, nil
}

func orchestratorOptions(cfg *config.Config) benchmark.Options {
	return benchmark.Options{
		Executor: executor.Options{
			Concurrency: cfg.Executor.Concurrency,
			BatchSize:   cfg.Executor.BatchSize,
			Timeout:     cfg.Executor.Timeout,
		},
		Retry: benchmark.RetryOptions{
			MaxAttempts: cfg.Executor.Retry.MaxAttempts,
			Policy:      cfg.Executor.Retry.Policy,
		},
		Cache: benchmark.CacheOptions{
			Enabled:  cfg.Cache.Enabled,
			Capacity: cfg.Cache.Capacity,
		},
		Thresholds: cfg.Thresholds,
	}
}
