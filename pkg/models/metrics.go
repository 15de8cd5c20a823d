package models

// QualityMetrics aggregates ranking and calibration scores over the
// successful traces of a run.
type QualityMetrics struct {
	PrecisionAt5  float64 `json:"precision_at_5"`
	PrecisionAt10 float64 `json:"precision_at_10"`
	// NDCGAt10 mirrors PrecisionAt10. Gate thresholds were calibrated
	// against that proxy.
	NDCGAt10            float64 `json:"ndcg_at_10"`
	MRR                 float64 `json:"mrr"`
	CitationCorrectness float64 `json:"citation_correctness"`
	Faithfulness        float64 `json:"faithfulness"`
	Completeness        float64 `json:"completeness"`
	// ConfidenceCalibration is 1 - ECE.
	ConfidenceCalibration float64 `json:"confidence_calibration"`
	// ECE is the mean squared gap between confidence and its target.
	ECE float64 `json:"ece"`
}

// Thresholds configures the quality gates.
type Thresholds struct {
	CitationCorrectness float64 `json:"citation_correctness" yaml:"citation_correctness"`
	Completeness        float64 `json:"completeness" yaml:"completeness"`
	ECE                 float64 `json:"ece" yaml:"ece"`
	// PrecisionAt5Regression is the tolerated drop in precision@5 relative
	// to the baseline, as a fraction (0.03 = 3%).
	PrecisionAt5Regression float64 `json:"precision_at_5_regression" yaml:"precision_at_5_regression"`
}

// DefaultThresholds returns the release thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CitationCorrectness:    0.98,
		Completeness:           0.95,
		ECE:                    0.15,
		PrecisionAt5Regression: 0.03,
	}
}

// GateResult is the outcome of one quality gate.
type GateResult struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Passed    bool    `json:"passed"`
	// Message is a self-contained line with the formatted value and threshold.
	Message string `json:"message"`
}
