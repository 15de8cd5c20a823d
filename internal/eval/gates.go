package eval

import (
	"fmt"

	"github.com/haasonsaas/ragbench/pkg/models"
)

// Gate metric names.
const (
	GateCitationCorrectness = "citation_correctness"
	GateCompleteness        = "completeness"
	GateECE                 = "ece"
	GatePrecisionRegression = "precision_at_5_regression"
)

// GateReport is the outcome of Check.
type GateReport struct {
	Passed  bool                `json:"passed"`
	Results []models.GateResult `json:"results"`
}

// Check applies the quality gates to metrics. The precision@5 regression
// gate is only evaluated, and only present in Results, when a baseline is
// given.
func Check(metrics models.QualityMetrics, thresholds models.Thresholds, baseline *models.QualityMetrics) GateReport {
	results := []models.GateResult{
		atLeast(GateCitationCorrectness, metrics.CitationCorrectness, thresholds.CitationCorrectness),
		atLeast(GateCompleteness, metrics.Completeness, thresholds.Completeness),
		eceGate(metrics.ECE, thresholds.ECE),
	}
	if baseline != nil {
		results = append(results, regressionGate(metrics.PrecisionAt5, baseline.PrecisionAt5, thresholds.PrecisionAt5Regression))
	}

	passed := true
	for _, r := range results {
		passed = passed && r.Passed
	}
	return GateReport{Passed: passed, Results: results}
}

// PrecisionRegression returns how far current fell below baseline, as a
// percentage of baseline. Improvements are negative. A zero baseline yields 0.
func PrecisionRegression(current, baseline float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (baseline - current) / baseline * 100
}

func atLeast(metric string, value, threshold float64) models.GateResult {
	passed := value >= threshold
	return models.GateResult{
		Metric:    metric,
		Value:     value,
		Threshold: threshold,
		Passed:    passed,
		Message:   fmt.Sprintf("%s %.1f%% %s %.1f%%", metric, value*100, cmpSymbol(passed, ">=", "<"), threshold*100),
	}
}

func eceGate(value, threshold float64) models.GateResult {
	passed := value <= threshold
	return models.GateResult{
		Metric:    GateECE,
		Value:     value,
		Threshold: threshold,
		Passed:    passed,
		Message:   fmt.Sprintf("ece %.3f %s %.3f", value, cmpSymbol(passed, "<=", ">"), threshold),
	}
}

// regressionGate reports values as percentages.
func regressionGate(current, baseline, tolerance float64) models.GateResult {
	regression := PrecisionRegression(current, baseline)
	limit := tolerance * 100
	passed := regression <= limit
	return models.GateResult{
		Metric:    GatePrecisionRegression,
		Value:     regression,
		Threshold: limit,
		Passed:    passed,
		Message: fmt.Sprintf("precision_at_5 regression %.1f%% %s %.1f%% (baseline %.1f%%, current %.1f%%)",
			regression, cmpSymbol(passed, "<=", ">"), limit, baseline*100, current*100),
	}
}

func cmpSymbol(passed bool, ok, fail string) string {
	if passed {
		return ok
	}
	return fail
}
