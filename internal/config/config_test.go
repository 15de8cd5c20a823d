package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/haasonsaas/ragbench/pkg/models"
)

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
version: 1
dataset: ./golden.yaml
thresholds:
  citation_correctness: 0.9
executor:
  concurrency: 8
  timeout: 5s
  retry:
    max_attempts: 3
    initial: 50ms
agent:
  mode: http
  url: http://agent.local/query
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Dataset != "./golden.yaml" {
		t.Errorf("Dataset = %q", cfg.Dataset)
	}
	if cfg.Thresholds.CitationCorrectness != 0.9 {
		t.Errorf("CitationCorrectness = %v, want 0.9", cfg.Thresholds.CitationCorrectness)
	}
	// Missing threshold keys keep their defaults.
	if cfg.Thresholds.Completeness != 0.95 || cfg.Thresholds.ECE != 0.15 || cfg.Thresholds.PrecisionAt5Regression != 0.03 {
		t.Errorf("Thresholds = %+v, want defaults for unset keys", cfg.Thresholds)
	}
	if cfg.Executor.Concurrency != 8 || cfg.Executor.BatchSize != 5 || cfg.Executor.Timeout != 5*time.Second {
		t.Errorf("Executor = %+v", cfg.Executor)
	}
	if cfg.Executor.Retry.MaxAttempts != 3 || cfg.Executor.Retry.Initial != 50*time.Millisecond {
		t.Errorf("Retry = %+v", cfg.Executor.Retry)
	}
	if cfg.Executor.Retry.Max != 5*time.Second || cfg.Executor.Retry.Factor != 2 {
		t.Errorf("Retry policy defaults lost: %+v", cfg.Executor.Retry.Policy)
	}
	if cfg.Router.FallbackType != models.QueryTypeResearch || cfg.Router.MinConfidence != 0.6 {
		t.Errorf("Router = %+v", cfg.Router)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Capacity != 1000 {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := Default()
	if cfg.Thresholds != def.Thresholds {
		t.Errorf("Thresholds = %+v, want %+v", cfg.Thresholds, def.Thresholds)
	}
	if cfg.Agent.Mode != AgentModeHTTP || cfg.Logging.Format != "json" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
executor:
  concurrency: 2
  extra: true
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name:    "threshold above one",
			config:  "thresholds:\n  completeness: 95\n",
			wantErr: "thresholds.completeness",
		},
		{
			name:    "negative threshold",
			config:  "thresholds:\n  ece: -0.1\n",
			wantErr: "thresholds.ece",
		},
		{
			name:    "unknown llm provider",
			config:  "router:\n  llm:\n    enabled: true\n    provider: cohere\n",
			wantErr: "router.llm.provider",
		},
		{
			name:    "unknown embeddings provider",
			config:  "embeddings:\n  provider: bert\n",
			wantErr: "embeddings.provider",
		},
		{
			name:    "replay without file",
			config:  "agent:\n  mode: replay\n",
			wantErr: "agent.replay_file",
		},
		{
			name:    "unknown agent mode",
			config:  "agent:\n  mode: grpc\n",
			wantErr: "agent.mode",
		},
		{
			name:    "bad log format",
			config:  "logging:\n  format: xml\n",
			wantErr: "logging.format",
		},
		{
			name:    "negative concurrency",
			config:  "executor:\n  concurrency: -1\n",
			wantErr: "executor.concurrency",
		},
		{
			name:    "newer version",
			config:  "version: 99\n",
			wantErr: "version 99 is not supported",
		},
		{
			name:    "explicit zero version",
			config:  "version: 0\n",
			wantErr: "version 0 is not supported",
		},
		{
			name:    "negative rate limit",
			config:  "agent:\n  rate_limit:\n    requests_per_second: -5\n",
			wantErr: "agent.rate_limit",
		},
		{
			name:    "negative schedule interval",
			config:  "schedule:\n  every: -1m\n",
			wantErr: "schedule.every",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.config))
			if err == nil {
				t.Fatalf("expected validation error")
			}
			var verr *ConfigValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ConfigValidationError, got %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %s error, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadScheduleAndRateLimit(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
version: 1
logging:
  format: auto
agent:
  rate_limit:
    enabled: true
    requests_per_second: 2.5
    burst_size: 3
schedule:
  every: 15m
  timezone: Europe/Berlin
  run_on_start: true
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	rl := cfg.Agent.RateLimit
	if !rl.Enabled || rl.RequestsPerSecond != 2.5 || rl.BurstSize != 3 {
		t.Errorf("RateLimit = %+v", rl)
	}
	if cfg.Schedule.Every != 15*time.Minute || cfg.Schedule.Timezone != "Europe/Berlin" || !cfg.Schedule.RunOnStart {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if cfg.Logging.Format != "auto" {
		t.Errorf("Logging.Format = %q, want auto", cfg.Logging.Format)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("RAGBENCH_TEST_AGENT_URL", "http://env.local/query")
	t.Setenv("RAGBENCH_TEST_EMPTY", "")
	cfg, err := Load(writeConfig(t, `
agent:
  url: ${RAGBENCH_TEST_AGENT_URL}
dataset: ${RAGBENCH_TEST_EMPTY:-./golden.yaml}
output_dir: ${RAGBENCH_TEST_UNSET_DIR:-./out}
embeddings:
  api_key: $NOT_EXPANDED
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.URL != "http://env.local/query" {
		t.Errorf("Agent.URL = %q", cfg.Agent.URL)
	}
	if cfg.Dataset != "./golden.yaml" || cfg.OutputDir != "./out" {
		t.Errorf("Dataset = %q, OutputDir = %q, want fallbacks", cfg.Dataset, cfg.OutputDir)
	}
	if cfg.Embeddings.APIKey != "$NOT_EXPANDED" {
		t.Errorf("APIKey = %q, bare $NAME should be kept", cfg.Embeddings.APIKey)
	}
}

func TestLoadRejectsMalformedSections(t *testing.T) {
	tests := []struct {
		name     string
		main     string
		fragment string
		wantErr  string
	}{
		{
			name:    "thresholds not a mapping",
			main:    "thresholds: 0.9\n",
			wantErr: `section "thresholds" must be a mapping`,
		},
		{
			name:    "dataset given as a list",
			main:    "dataset: [a.yaml, b.yaml]\n",
			wantErr: `"dataset" must be a single value`,
		},
		{
			name:    "unknown top-level section",
			main:    "gateway:\n  port: 80\n",
			wantErr: `unknown section "gateway"`,
		},
		{
			name:     "unknown section in include",
			main:     "$include: fragment.yaml\n",
			fragment: "thresolds:\n  ece: 0.2\n",
			wantErr:  `fragment.yaml: unknown section "thresolds"`,
		},
		{
			name:     "version in include",
			main:     "$include: fragment.yaml\n",
			fragment: "version: 1\n",
			wantErr:  "version may only be set in the top-level config",
		},
		{
			name:     "malformed include section",
			main:     "$include: fragment.yaml\n",
			fragment: "executor: fast\n",
			wantErr:  `fragment.yaml: section "executor" must be a mapping`,
		},
		{
			name:    "unknown fallback type",
			main:    "router:\n  fallback_type: trivia\n",
			wantErr: "trivia",
		},
		{
			name:    "include of wrong type",
			main:    "$include: {path: base.yaml}\n",
			wantErr: "$include must be a string or a list of strings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.fragment != "" {
				if err := os.WriteFile(filepath.Join(dir, "fragment.yaml"), []byte(tt.fragment), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			main := filepath.Join(dir, "ragbench.yaml")
			if err := os.WriteFile(main, []byte(tt.main), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(main)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(base, []byte("executor:\n  concurrency: 2\n  batch_size: 7\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	main := filepath.Join(dir, "ragbench.yaml")
	if err := os.WriteFile(main, []byte("$include: base.yaml\nexecutor:\n  concurrency: 6\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Executor.Concurrency != 6 || cfg.Executor.BatchSize != 7 {
		t.Errorf("Executor = %+v, want concurrency 6 and batch 7", cfg.Executor)
	}
	if diff := cmp.Diff([]string{base, main}, cfg.Sources); diff != "" {
		t.Errorf("Sources mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEmptySectionKeepsIncludedValues(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "thresholds.yaml"), []byte("thresholds:\n  ece: 0.2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	main := filepath.Join(dir, "ragbench.yaml")
	if err := os.WriteFile(main, []byte("$include: thresholds.yaml\nthresholds:\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Thresholds.ECE != 0.2 || cfg.Thresholds.Completeness != 0.95 {
		t.Errorf("Thresholds = %+v, want included ece and default completeness", cfg.Thresholds)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(a, []byte("$include: b.yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("$include: [a.yaml]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(a)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected include cycle error, got %v", err)
	}
}

func TestLoadJSON5(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ragbench.json5")
	contents := `{
  // comments are allowed
  cache: {enabled: false, capacity: 10},
  executor: {timeout: "2s"},
}`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cache.Enabled || cfg.Cache.Capacity != 10 || cfg.Executor.Timeout != 2*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestJSONSchema(t *testing.T) {
	schema, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}
	for _, key := range []string{"thresholds", "executor", "min_confidence", "replay_file", "rate_limit", "run_on_start"} {
		if !strings.Contains(string(schema), key) {
			t.Errorf("schema missing %q", key)
		}
	}

	var doc struct {
		Title      string                     `json:"title"`
		Required   []string                   `json:"required"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if doc.Title != "ragbench configuration" {
		t.Errorf("title = %q", doc.Title)
	}
	if len(doc.Required) != 0 {
		t.Errorf("required = %v, every key should be optional", doc.Required)
	}
	if _, ok := doc.Properties["$include"]; !ok {
		t.Error("schema should describe $include")
	}
	if _, ok := doc.Properties["sources"]; ok {
		t.Error("Sources is not a config key")
	}
	for _, want := range []string{"Go duration", `"maintenance"`} {
		if !strings.Contains(string(schema), want) {
			t.Errorf("schema missing %s", want)
		}
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ragbench.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
