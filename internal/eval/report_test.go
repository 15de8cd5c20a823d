package eval

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/ragbench/pkg/models"
)

func sampleArtifact() *models.ResultArtifact {
	metrics := models.QualityMetrics{
		PrecisionAt5:          0.5,
		PrecisionAt10:         0.5,
		NDCGAt10:              0.5,
		MRR:                   1,
		ConfidenceCalibration: 0.84,
		ECE:                   0.16,
	}
	gates := Check(metrics, models.DefaultThresholds(), nil)
	traces := []models.QueryTrace{
		{ID: "A", Type: models.QueryTypeTechnical, RetrievedNotes: []string{"noteX.md"}, Confidence: 0.5},
		{ID: "B", Type: models.QueryTypeProject, Error: "TimeoutError: task 1 exceeded 30s"},
	}
	return &models.ResultArtifact{
		Version:            models.ArtifactVersion,
		RunID:              "run-1",
		Timestamp:          time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		DatasetSize:        2,
		Completed:          1,
		Failed:             1,
		Traces:             traces,
		Metrics:            metrics,
		QualityGatesPassed: gates.Passed,
		GateResults:        gates.Results,
		MetricsByType: map[models.QueryType]models.QualityMetrics{
			models.QueryTypeTechnical: metrics,
			models.QueryTypeProject:   {},
		},
		FailureModes: FailureModes(traces),
		Strategy:     "adaptive",
		Timing:       models.RunTiming{DurationMs: 1500, AvgQueryMs: 42},
		Optimizations: models.Optimizations{
			Concurrency:   4,
			BatchSize:     5,
			TimeoutMs:     30000,
			CacheEnabled:  true,
			CacheCapacity: 1000,
			CacheHits:     3,
			CacheMisses:   1,
			FastPathRate:  0.5,
		},
	}
}

func TestRenderMarkdown(t *testing.T) {
	report := RenderMarkdown(sampleArtifact())

	for _, want := range []string{
		"# RAG Benchmark Report",
		"`run-1`",
		"2026-01-02T03:04:05Z",
		failGlyph + " FAILED",
		"| citation_correctness | 0.0% | 98.0% | " + failGlyph,
		"| ece | 0.160 | 0.150 | " + failGlyph + " | ece 0.160 > 0.150 |",
		"| precision_at_5 | 50.0% |",
		"| mrr | 100.0% |",
		"| confidence_calibration | 84.0% |",
		"| Technical | 1 | 0 | 50.0% |",
		"| Project | 1 | 1 |",
		"| TimeoutError | 1 |",
		"Concurrency: 4, batch size: 5, timeout: 30s",
		"Embedding cache: 3 hits, 1 misses (capacity 1000)",
		"Fast-path routing: 50.0%",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q\n%s", want, report)
		}
	}
	if strings.Contains(report, "Retries:") {
		t.Error("retries line should be omitted when no retries happened")
	}
	if strings.Index(report, "| Technical |") > strings.Index(report, "| Project |") {
		t.Error("query types should be listed in declaration order")
	}
}

func TestRenderMarkdownPassingRegressionGate(t *testing.T) {
	a := sampleArtifact()
	metrics := models.QualityMetrics{PrecisionAt5: 0.8, CitationCorrectness: 1, Completeness: 1}
	baseline := models.QualityMetrics{PrecisionAt5: 0.8}
	gates := Check(metrics, models.DefaultThresholds(), &baseline)
	a.Metrics = metrics
	a.GateResults = gates.Results
	a.QualityGatesPassed = gates.Passed
	a.FailureModes = nil
	a.Optimizations.CacheEnabled = false

	report := RenderMarkdown(a)
	for _, want := range []string{
		passGlyph + " PASSED",
		"| precision_at_5_regression | 0.0 | 3.0 | " + passGlyph,
		"Embedding cache: disabled",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q\n%s", want, report)
		}
	}
	if strings.Contains(report, "## Failure Modes") {
		t.Error("failure section should be omitted without failures")
	}
}

func TestWriteAndLoadArtifacts(t *testing.T) {
	dir := t.TempDir()
	a := sampleArtifact()

	jsonPath, reportPath, err := WriteArtifacts(dir, a)
	if err != nil {
		t.Fatalf("WriteArtifacts() error = %v", err)
	}
	if !strings.HasSuffix(jsonPath, "results-run-1.json") || !strings.HasSuffix(reportPath, "report-run-1.md") {
		t.Errorf("paths = %q, %q", jsonPath, reportPath)
	}
	if _, err := os.Stat(reportPath); err != nil {
		t.Fatalf("report not written: %v", err)
	}

	loaded, err := LoadArtifact(jsonPath)
	if err != nil {
		t.Fatalf("LoadArtifact() error = %v", err)
	}
	if loaded.RunID != a.RunID || loaded.Completed != 1 || loaded.Failed != 1 {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Metrics.ECE != a.Metrics.ECE {
		t.Errorf("ECE = %v, want %v", loaded.Metrics.ECE, a.Metrics.ECE)
	}
	if len(loaded.Traces) != 2 || loaded.Traces[1].Error == "" {
		t.Errorf("traces = %+v", loaded.Traces)
	}
	if loaded.FailureModes["TimeoutError"] != 1 {
		t.Errorf("FailureModes = %v", loaded.FailureModes)
	}
}

func TestLoadArtifactErrors(t *testing.T) {
	if _, err := LoadArtifact("does-not-exist.json"); err == nil {
		t.Error("expected error for missing file")
	}
	path := t.TempDir() + "/bad.json"
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadArtifact(path); err == nil {
		t.Error("expected error for malformed file")
	}
}
