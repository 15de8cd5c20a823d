package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/ragbench/pkg/models"
)

func TestQueryMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.QueryStarted()
	m.QueryStarted()
	if got := testutil.ToFloat64(m.InflightQueries); got != 2 {
		t.Fatalf("inflight = %v, want 2", got)
	}
	m.QueryEnded()
	m.QueryEnded()
	m.RecordQuery(models.QueryTypeTechnical, true, 0.2)
	m.RecordQuery(models.QueryTypeProject, false, 1.5)
	if got := testutil.ToFloat64(m.InflightQueries); got != 0 {
		t.Errorf("inflight = %v, want 0", got)
	}

	expected := `
		# HELP ragbench_queries_total Total number of benchmark queries by type and status
		# TYPE ragbench_queries_total counter
		ragbench_queries_total{status="error",type="project"} 1
		ragbench_queries_total{status="success",type="technical"} 1
	`
	if err := testutil.CollectAndCompare(m.QueriesTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
	if count := testutil.CollectAndCount(m.QueryDuration); count != 2 {
		t.Errorf("duration series = %d, want 2", count)
	}
}

func TestCacheAndRouterMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCacheStats(2, 1)
	m.RecordCacheStats(0, 0)
	if got := testutil.ToFloat64(m.CacheEvents.WithLabelValues("hit")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheEvents.WithLabelValues("miss")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}

	m.RecordRouterDecision(models.RouterDecision{QueryType: models.QueryTypeResearch})
	m.RecordRouterDecision(models.RouterDecision{QueryType: models.QueryTypeTechnical, UsedFastPath: true})
	if got := testutil.ToFloat64(m.RouterDecisions.WithLabelValues("research", "false")); got != 1 {
		t.Errorf("research decisions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RouterDecisions.WithLabelValues("technical", "true")); got != 1 {
		t.Errorf("technical decisions = %v, want 1", got)
	}
}

func TestRecordQuality(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordQuality(models.QualityMetrics{PrecisionAt5: 0.5, ECE: 0.16}, []models.GateResult{
		{Metric: "citation_correctness", Passed: false},
		{Metric: "ece", Passed: true},
	})

	if got := testutil.ToFloat64(m.QualityMetric.WithLabelValues("precision_at_5")); got != 0.5 {
		t.Errorf("precision_at_5 = %v", got)
	}
	if got := testutil.ToFloat64(m.QualityMetric.WithLabelValues("ece")); got != 0.16 {
		t.Errorf("ece = %v", got)
	}
	if count := testutil.CollectAndCount(m.QualityMetric); count != 9 {
		t.Errorf("quality series = %d, want 9", count)
	}
	if got := testutil.ToFloat64(m.GatePassed.WithLabelValues("citation_correctness")); got != 0 {
		t.Errorf("citation gate = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.GatePassed.WithLabelValues("ece")); got != 1 {
		t.Errorf("ece gate = %v, want 1", got)
	}
}

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	// Registering twice on separate registries must not panic.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
