// Package eval scores benchmark traces, checks quality gates, loads golden
// datasets and renders reports.
package eval

import (
	"strings"

	"github.com/haasonsaas/ragbench/pkg/models"
)

// PrecisionAtK returns the fraction of the first k retrieved notes that
// match an expected note. Returns 0 when nothing was retrieved.
func PrecisionAtK(retrieved, expected []string, k int) float64 {
	top := retrieved
	if k >= 0 && len(top) > k {
		top = top[:k]
	}
	if len(top) == 0 {
		return 0
	}
	set := expectedNoteSet(expected)
	relevant := 0
	for _, note := range top {
		if set.matches(note) {
			relevant++
		}
	}
	return float64(relevant) / float64(len(top))
}

// ReciprocalRank returns 1/rank of the first retrieved note that matches an
// expected note, or 0 when none does.
func ReciprocalRank(retrieved, expected []string) float64 {
	set := expectedNoteSet(expected)
	for idx, note := range retrieved {
		if set.matches(note) {
			return 1.0 / float64(idx+1)
		}
	}
	return 0
}

// Compute scores the successful traces against the golden queries. Failed
// traces are excluded, and the denominator is at least one so an all-failed
// run yields zeros. Traces without a golden query count toward the
// denominator but add nothing to ranking or calibration terms.
func Compute(traces []models.QueryTrace, truth []models.GoldenQuery) models.QualityMetrics {
	byID := make(map[string]models.GoldenQuery, len(truth))
	for _, q := range truth {
		byID[q.ID] = q
	}

	var (
		successful                int
		p5, p10, mrr, cited, done float64
		squaredGap                float64
	)
	for _, tr := range traces {
		if tr.Failed() {
			continue
		}
		successful++
		if len(tr.Evidence) > 0 {
			cited++
		}
		if tr.HasNextStep {
			done++
		}

		q, ok := byID[tr.ID]
		if !ok {
			continue
		}
		p5 += PrecisionAtK(tr.RetrievedNotes, q.ExpectedNotes, 5)
		p10 += PrecisionAtK(tr.RetrievedNotes, q.ExpectedNotes, 10)
		mrr += ReciprocalRank(tr.RetrievedNotes, q.ExpectedNotes)
		gap := tr.Confidence - q.ExpectedConfidence.Target()
		squaredGap += gap * gap
	}

	n := float64(max(successful, 1))
	ece := squaredGap / n
	return models.QualityMetrics{
		PrecisionAt5:          p5 / n,
		PrecisionAt10:         p10 / n,
		NDCGAt10:              p10 / n,
		MRR:                   mrr / n,
		CitationCorrectness:   cited / n,
		Faithfulness:          cited / n,
		Completeness:          done / n,
		ConfidenceCalibration: 1 - ece,
		ECE:                   ece,
	}
}

// ComputeByType scores each golden query type separately.
func ComputeByType(traces []models.QueryTrace, truth []models.GoldenQuery) map[models.QueryType]models.QualityMetrics {
	grouped := make(map[models.QueryType][]models.QueryTrace)
	for _, tr := range traces {
		grouped[tr.Type] = append(grouped[tr.Type], tr)
	}
	out := make(map[models.QueryType]models.QualityMetrics, len(grouped))
	for t, group := range grouped {
		out[t] = Compute(group, truth)
	}
	return out
}

// expectedNotes matches retrieved ids by case-insensitive substring.
type expectedNotes []string

func expectedNoteSet(expected []string) expectedNotes {
	set := make(expectedNotes, 0, len(expected))
	for _, e := range expected {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			set = append(set, e)
		}
	}
	return set
}

func (s expectedNotes) matches(note string) bool {
	lower := strings.ToLower(note)
	for _, e := range s {
		if strings.Contains(lower, e) {
			return true
		}
	}
	return false
}
