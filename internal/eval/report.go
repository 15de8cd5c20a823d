package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/haasonsaas/ragbench/pkg/models"
)

const (
	passGlyph = "✅"
	failGlyph = "❌"
)

// RenderMarkdown renders a run as a markdown report. Rates are shown as
// percentages with one decimal, ECE with three decimals and regression
// values with one decimal.
func RenderMarkdown(a *models.ResultArtifact) string {
	var b strings.Builder

	b.WriteString("# RAG Benchmark Report\n\n")
	fmt.Fprintf(&b, "- **Run:** `%s`\n", a.RunID)
	fmt.Fprintf(&b, "- **Timestamp:** %s\n", a.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Strategy:** %s\n", a.Strategy)
	fmt.Fprintf(&b, "- **Queries:** %d (completed %d, failed %d)\n", a.DatasetSize, a.Completed, a.Failed)
	fmt.Fprintf(&b, "- **Duration:** %s\n", time.Duration(a.Timing.DurationMs)*time.Millisecond)
	fmt.Fprintf(&b, "- **Quality gates:** %s\n\n", overall(a.QualityGatesPassed))

	b.WriteString("## Quality Gates\n\n")
	b.WriteString("| Gate | Value | Threshold | Status | Detail |\n")
	b.WriteString("|------|-------|-----------|--------|--------|\n")
	for _, g := range a.GateResults {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			g.Metric, formatGateValue(g.Metric, g.Value), formatGateValue(g.Metric, g.Threshold), glyph(g.Passed), g.Message)
	}
	b.WriteString("\n")

	b.WriteString("## Metrics\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	for _, row := range metricRows(a.Metrics) {
		fmt.Fprintf(&b, "| %s | %s |\n", row.name, row.value)
	}
	b.WriteString("\n")

	if len(a.MetricsByType) > 0 {
		title := cases.Title(language.English)
		counts := typeCounts(a.Traces)
		b.WriteString("## By Query Type\n\n")
		b.WriteString("| Type | Queries | Failed | P@5 | MRR | Completeness | ECE |\n")
		b.WriteString("|------|---------|--------|-----|-----|--------------|-----|\n")
		for _, t := range models.QueryTypes {
			m, ok := a.MetricsByType[t]
			if !ok {
				continue
			}
			c := counts[t]
			fmt.Fprintf(&b, "| %s | %d | %d | %s | %s | %s | %s |\n",
				title.String(string(t)), c.total, c.failed,
				percent(m.PrecisionAt5), percent(m.MRR), percent(m.Completeness), decimal3(m.ECE))
		}
		b.WriteString("\n")
	}

	if len(a.FailureModes) > 0 {
		b.WriteString("## Failure Modes\n\n")
		b.WriteString("| Error | Count |\n")
		b.WriteString("|-------|-------|\n")
		for _, fm := range SortedFailureModes(a.FailureModes) {
			fmt.Fprintf(&b, "| %s | %d |\n", fm.Mode, fm.Count)
		}
		b.WriteString("\n")
	}

	o := a.Optimizations
	b.WriteString("## Execution\n\n")
	fmt.Fprintf(&b, "- Concurrency: %d, batch size: %d, timeout: %s\n",
		o.Concurrency, o.BatchSize, time.Duration(o.TimeoutMs)*time.Millisecond)
	fmt.Fprintf(&b, "- Average query time: %.0fms\n", a.Timing.AvgQueryMs)
	fmt.Fprintf(&b, "- Fast-path routing: %s\n", percent(o.FastPathRate))
	if o.CacheEnabled {
		fmt.Fprintf(&b, "- Embedding cache: %d hits, %d misses (capacity %d)\n", o.CacheHits, o.CacheMisses, o.CacheCapacity)
	} else {
		b.WriteString("- Embedding cache: disabled\n")
	}
	if o.Retries > 0 {
		fmt.Fprintf(&b, "- Retries: %d\n", o.Retries)
	}
	return b.String()
}

// WriteArtifacts writes results-<run>.json and report-<run>.md into dir and
// returns their paths.
func WriteArtifacts(dir string, a *models.ResultArtifact) (jsonPath, reportPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}
	payload, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal results: %w", err)
	}
	jsonPath = filepath.Join(dir, fmt.Sprintf("results-%s.json", a.RunID))
	if err := os.WriteFile(jsonPath, payload, 0o644); err != nil {
		return "", "", fmt.Errorf("write results: %w", err)
	}
	reportPath = filepath.Join(dir, fmt.Sprintf("report-%s.md", a.RunID))
	if err := os.WriteFile(reportPath, []byte(RenderMarkdown(a)), 0o644); err != nil {
		return "", "", fmt.Errorf("write report: %w", err)
	}
	return jsonPath, reportPath, nil
}

// LoadArtifact reads a results file written by WriteArtifacts.
func LoadArtifact(path string) (*models.ResultArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	var a models.ResultArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	return &a, nil
}

type metricRow struct {
	name  string
	value string
}

func metricRows(m models.QualityMetrics) []metricRow {
	return []metricRow{
		{"precision_at_5", percent(m.PrecisionAt5)},
		{"precision_at_10", percent(m.PrecisionAt10)},
		{"ndcg_at_10", percent(m.NDCGAt10)},
		{"mrr", percent(m.MRR)},
		{"citation_correctness", percent(m.CitationCorrectness)},
		{"faithfulness", percent(m.Faithfulness)},
		{"completeness", percent(m.Completeness)},
		{"confidence_calibration", percent(m.ConfidenceCalibration)},
		{"ece", decimal3(m.ECE)},
	}
}

type typeCount struct {
	total  int
	failed int
}

func typeCounts(traces []models.QueryTrace) map[models.QueryType]typeCount {
	counts := make(map[models.QueryType]typeCount)
	for _, tr := range traces {
		c := counts[tr.Type]
		c.total++
		if tr.Failed() {
			c.failed++
		}
		counts[tr.Type] = c
	}
	return counts
}

func formatGateValue(metric string, v float64) string {
	switch metric {
	case GateECE:
		return decimal3(v)
	case GatePrecisionRegression:
		return fmt.Sprintf("%.1f", v)
	default:
		return percent(v)
	}
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func decimal3(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

func glyph(passed bool) string {
	if passed {
		return passGlyph
	}
	return failGlyph
}

func overall(passed bool) string {
	if passed {
		return passGlyph + " PASSED"
	}
	return failGlyph + " FAILED"
}
