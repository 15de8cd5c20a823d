package models

import "time"

// ArtifactVersion is the schema version of ResultArtifact.
const ArtifactVersion = "1.0"

// ResultArtifact is the persisted outcome of a benchmark run.
type ResultArtifact struct {
	Version     string    `json:"version"`
	RunID       string    `json:"run_id"`
	Timestamp   time.Time `json:"timestamp"`
	DatasetSize int       `json:"dataset_size"`
	Completed   int       `json:"completed"`
	Failed      int       `json:"failed"`

	Traces             []QueryTrace   `json:"traces"`
	Metrics            QualityMetrics `json:"metrics"`
	QualityGatesPassed bool           `json:"quality_gates_passed"`
	GateResults        []GateResult   `json:"gate_results"`

	// MetricsByType breaks Metrics down by golden query type.
	MetricsByType map[QueryType]QualityMetrics `json:"metrics_by_type"`
	// FailureModes counts failed traces by the leading segment of their error.
	FailureModes  map[string]int               `json:"failure_modes"`

	Strategy      string        `json:"strategy"`
	Timing        RunTiming     `json:"timing"`
	Optimizations Optimizations `json:"optimizations"`
}

// RunTiming records wall-clock timing for a run.
type RunTiming struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
	AvgQueryMs float64   `json:"avg_query_ms"`
}

// Optimizations records the execution settings a run used.
type Optimizations struct {
	Concurrency   int     `json:"concurrency"`
	BatchSize     int     `json:"batch_size"`
	TimeoutMs     int64   `json:"timeout_ms"`
	CacheEnabled  bool    `json:"cache_enabled"`
	CacheCapacity int     `json:"cache_capacity"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	FastPathRate  float64 `json:"fast_path_rate"`
	Retries       int     `json:"retries"`
}
