package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/haasonsaas/ragbench/pkg/models"
)

// Metrics holds the Prometheus collectors for benchmark runs.
//
// Collectors are registered on the registerer passed to NewMetrics, so tests
// and repeated runs in one process can use isolated registries.
type Metrics struct {
	// QueriesTotal counts executed queries.
	// Labels: type (golden query type), status (success|error)
	QueriesTotal *prometheus.CounterVec

	// QueryDuration measures per-query wall time in seconds.
	// Labels: type
	QueryDuration *prometheus.HistogramVec

	// InflightQueries is the number of queries currently executing.
	InflightQueries prometheus.Gauge

	// CacheEvents counts embedding cache lookups.
	// Labels: result (hit|miss)
	CacheEvents *prometheus.CounterVec

	// RouterDecisions counts router classifications.
	// Labels: type (routed type), fast_path (true|false)
	RouterDecisions *prometheus.CounterVec

	// QualityMetric exposes the latest run's quality metrics.
	// Labels: metric
	QualityMetric *prometheus.GaugeVec

	// GatePassed is 1 when the named gate passed in the latest run, else 0.
	// Labels: metric
	GatePassed *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragbench_queries_total",
				Help: "Total number of benchmark queries by type and status",
			},
			[]string{"type", "status"},
		),

		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ragbench_query_duration_seconds",
				Help:    "Duration of benchmark queries in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"type"},
		),

		InflightQueries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ragbench_inflight_queries",
				Help: "Number of benchmark queries currently executing",
			},
		),

		CacheEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragbench_cache_events_total",
				Help: "Embedding cache lookups by result",
			},
			[]string{"result"},
		),

		RouterDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragbench_router_decisions_total",
				Help: "Router classifications by routed type and fast path",
			},
			[]string{"type", "fast_path"},
		),

		QualityMetric: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ragbench_quality_metric",
				Help: "Quality metrics of the most recent run",
			},
			[]string{"metric"},
		),

		GatePassed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ragbench_gate_passed",
				Help: "Whether each quality gate passed in the most recent run",
			},
			[]string{"metric"},
		),
	}
}

// QueryStarted increments the in-flight gauge.
func (m *Metrics) QueryStarted() {
	m.InflightQueries.Inc()
}

// QueryEnded decrements the in-flight gauge. Abandoned queries call it when
// their work actually stops, which may be after their result was recorded.
func (m *Metrics) QueryEnded() {
	m.InflightQueries.Dec()
}

// RecordQuery records the outcome of one query.
//
// Example:
//
//	metrics.RecordQuery(models.QueryTypeTechnical, err == nil, time.Since(start).Seconds())
func (m *Metrics) RecordQuery(queryType models.QueryType, success bool, durationSeconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	m.QueriesTotal.WithLabelValues(string(queryType), status).Inc()
	m.QueryDuration.WithLabelValues(string(queryType)).Observe(durationSeconds)
}

// RecordCacheStats adds a run's embedding cache hits and misses.
func (m *Metrics) RecordCacheStats(hits, misses int64) {
	if hits > 0 {
		m.CacheEvents.WithLabelValues("hit").Add(float64(hits))
	}
	if misses > 0 {
		m.CacheEvents.WithLabelValues("miss").Add(float64(misses))
	}
}

// RecordRouterDecision counts a router classification.
func (m *Metrics) RecordRouterDecision(d models.RouterDecision) {
	fastPath := "false"
	if d.UsedFastPath {
		fastPath = "true"
	}
	m.RouterDecisions.WithLabelValues(string(d.QueryType), fastPath).Inc()
}

// RecordQuality publishes a run's quality metrics and gate outcomes.
func (m *Metrics) RecordQuality(q models.QualityMetrics, gates []models.GateResult) {
	for name, v := range map[string]float64{
		"precision_at_5":         q.PrecisionAt5,
		"precision_at_10":        q.PrecisionAt10,
		"ndcg_at_10":             q.NDCGAt10,
		"mrr":                    q.MRR,
		"citation_correctness":   q.CitationCorrectness,
		"faithfulness":           q.Faithfulness,
		"completeness":           q.Completeness,
		"confidence_calibration": q.ConfidenceCalibration,
		"ece":                    q.ECE,
	} {
		m.QualityMetric.WithLabelValues(name).Set(v)
	}
	for _, g := range gates {
		passed := 0.0
		if g.Passed {
			passed = 1
		}
		m.GatePassed.WithLabelValues(g.Metric).Set(passed)
	}
}
