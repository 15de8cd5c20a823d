package benchmark

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/ragbench/internal/agentclient"
	"github.com/haasonsaas/ragbench/internal/backoff"
	"github.com/haasonsaas/ragbench/internal/executor"
	"github.com/haasonsaas/ragbench/internal/observability"
	"github.com/haasonsaas/ragbench/internal/ratelimit"
	"github.com/haasonsaas/ragbench/internal/routing"
	"github.com/haasonsaas/ragbench/pkg/models"
)

type stubAgent struct {
	mu      sync.Mutex
	calls   []models.AgentRequest
	respond func(ctx context.Context, req models.AgentRequest) (*models.AgentResponse, error)
}

func (s *stubAgent) Execute(ctx context.Context, req models.AgentRequest) (*models.AgentResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	return s.respond(ctx, req)
}

func (s *stubAgent) requests() []models.AgentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AgentRequest(nil), s.calls...)
}

type countingEmbedder struct {
	calls atomic.Int32
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	return []float32{float32(len(text))}, nil
}

func (e *countingEmbedder) Name() string { return "stub" }

func confidence(v float64) *float64 { return &v }

func newTestOrchestrator(t *testing.T, agent QueryExecutor, opts Options, extra ...Option) *Orchestrator {
	t.Helper()
	router, err := routing.NewRouter(routing.Config{})
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	if opts.Executor.Concurrency == 0 {
		opts.Executor = executor.Options{Concurrency: 2, BatchSize: 1, Timeout: time.Second}
	}
	if opts.Thresholds == (models.Thresholds{}) {
		opts.Thresholds = models.DefaultThresholds()
	}
	options := append([]Option{
		WithLogger(observability.NewLogger(observability.LogConfig{Output: io.Discard})),
	}, extra...)
	o, err := New(router, agent, opts, options...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRunEndToEndScenario(t *testing.T) {
	agent := &stubAgent{respond: func(ctx context.Context, req models.AgentRequest) (*models.AgentResponse, error) {
		if req.QueryID == "B" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &models.AgentResponse{
			Answer:         "Rebuild the cache.",
			RetrievedNotes: []string{"noteX.md", "noteY.md"},
			Confidence:     confidence(0.5),
		}, nil
	}}
	o := newTestOrchestrator(t, agent, Options{
		Executor: executor.Options{Concurrency: 2, BatchSize: 1, Timeout: 50 * time.Millisecond},
	})

	dataset := []models.GoldenQuery{
		{ID: "A", Query: "How do I fix the build error?", Type: models.QueryTypeTechnical, Difficulty: models.DifficultyEasy,
			ExpectedNotes: []string{"noteX"}, ExpectedConfidence: models.ConfidenceHigh},
		{ID: "B", Query: "What is the project status?", Type: models.QueryTypeProject, Difficulty: models.DifficultyMedium,
			ExpectedNotes: []string{"noteZ"}, ExpectedConfidence: models.ConfidenceHigh},
	}

	a, err := o.Run(context.Background(), dataset, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if a.Completed != 1 || a.Failed != 1 || a.DatasetSize != 2 || len(a.Traces) != 2 {
		t.Fatalf("completed=%d failed=%d size=%d traces=%d", a.Completed, a.Failed, a.DatasetSize, len(a.Traces))
	}
	if !approx(a.Metrics.PrecisionAt5, 0.5) || !approx(a.Metrics.MRR, 1) || !approx(a.Metrics.ECE, 0.16) {
		t.Errorf("metrics = %+v", a.Metrics)
	}
	if a.QualityGatesPassed {
		t.Error("quality gates should fail (ece 0.16 > 0.15)")
	}
	if len(a.GateResults) != 3 {
		t.Errorf("gate results = %d, want 3 without baseline", len(a.GateResults))
	}
	if a.RunID == "" || a.Version != models.ArtifactVersion || a.Strategy != DefaultStrategy {
		t.Errorf("artifact header = %q %q %q", a.RunID, a.Version, a.Strategy)
	}

	failed := a.Traces[1]
	if failed.ID != "B" || !strings.HasPrefix(failed.Error, "TimeoutError: task 1 exceeded") {
		t.Errorf("trace B = %+v", failed)
	}
	if failed.Confidence != 0 || len(failed.RetrievedNotes) != 0 || failed.Strategy != "" {
		t.Errorf("failed trace should carry zeroed quality fields: %+v", failed)
	}
	if diff := cmp.Diff(map[string]int{"TimeoutError": 1}, a.FailureModes); diff != "" {
		t.Errorf("FailureModes mismatch (-want +got):\n%s", diff)
	}

	ok := a.Traces[0]
	if ok.RoutedType != models.QueryTypeTechnical || ok.Strategy != "keyword_first" || !ok.UsedFastPath {
		t.Errorf("trace A routing = %+v", ok)
	}
	if ok.Confidence != 0.5 || ok.FallbackTriggered {
		t.Errorf("trace A = %+v", ok)
	}
}

func TestRunZeroResultsFallback(t *testing.T) {
	agent := &stubAgent{respond: func(_ context.Context, req models.AgentRequest) (*models.AgentResponse, error) {
		if req.Strategy == "hybrid_balanced" {
			return &models.AgentResponse{Answer: "Found it in [[api-notes]].", RetrievedNotes: []string{"api-notes.md"}}, nil
		}
		return &models.AgentResponse{Answer: "nothing"}, nil
	}}
	o := newTestOrchestrator(t, agent, Options{})

	a, err := o.Run(context.Background(), []models.GoldenQuery{
		{ID: "q", Query: "Which api function returns this error?", Type: models.QueryTypeTechnical, ExpectedConfidence: models.ConfidenceHigh},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	tr := a.Traces[0]
	if !tr.FallbackTriggered || tr.FallbackReason != models.FallbackZeroResults || tr.Strategy != "hybrid_balanced" {
		t.Errorf("trace = %+v", tr)
	}
	if diff := cmp.Diff([]string{"api-notes"}, tr.Evidence); diff != "" {
		t.Errorf("Evidence mismatch (-want +got):\n%s", diff)
	}

	calls := agent.requests()
	if len(calls) != 2 {
		t.Fatalf("agent calls = %d, want 2", len(calls))
	}
	if calls[0].Strategy != "keyword_first" || calls[1].Weights != (models.StrategyWeights{Keyword: 0.4, Semantic: 0.4, Graph: 0.2}) {
		t.Errorf("calls = %+v", calls)
	}
}

func TestRunLowConfidenceUsesFallback(t *testing.T) {
	agent := &stubAgent{respond: func(_ context.Context, req models.AgentRequest) (*models.AgentResponse, error) {
		return &models.AgentResponse{Answer: "I recommend the weekly review note.", RetrievedNotes: []string{"weekly.md"}}, nil
	}}
	o := newTestOrchestrator(t, agent, Options{})

	a, err := o.Run(context.Background(), []models.GoldenQuery{
		{ID: "q", Query: "tell me something", Type: models.QueryTypeResearch, ExpectedConfidence: models.ConfidenceLow},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	tr := a.Traces[0]
	if tr.UsedFastPath || tr.RoutedType != models.QueryTypeResearch {
		t.Errorf("routing = %+v", tr)
	}
	if tr.Strategy != "hybrid_balanced" || tr.FallbackReason != models.FallbackLowConfidence {
		t.Errorf("fallback = %q %q", tr.Strategy, tr.FallbackReason)
	}
	if tr.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want router confidence 0.5", tr.Confidence)
	}
	if !tr.HasNextStep {
		t.Error("HasNextStep = false for a recommendation")
	}
	if len(agent.requests()) != 1 {
		t.Errorf("agent calls = %d, want 1", len(agent.requests()))
	}
	if a.Optimizations.FastPathRate != 0 {
		t.Errorf("FastPathRate = %v, want 0", a.Optimizations.FastPathRate)
	}
}

func TestRunRetriesTransientErrors(t *testing.T) {
	var attempts atomic.Int32
	agent := &stubAgent{respond: func(_ context.Context, req models.AgentRequest) (*models.AgentResponse, error) {
		if attempts.Add(1) == 1 {
			return nil, &agentclient.StatusError{Code: 503}
		}
		return &models.AgentResponse{RetrievedNotes: []string{"deploy.md"}}, nil
	}}
	o := newTestOrchestrator(t, agent, Options{
		Retry: RetryOptions{MaxAttempts: 3, Policy: backoff.Policy{Initial: time.Millisecond, Max: time.Millisecond, Factor: 1}},
	})

	a, err := o.Run(context.Background(), []models.GoldenQuery{
		{ID: "q", Query: "how do I deploy", Type: models.QueryTypeTechnical, ExpectedConfidence: models.ConfidenceHigh},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Failed != 0 || a.Optimizations.Retries != 1 {
		t.Errorf("failed=%d retries=%d", a.Failed, a.Optimizations.Retries)
	}
}

func TestRunExecutionErrors(t *testing.T) {
	agent := &stubAgent{respond: func(context.Context, models.AgentRequest) (*models.AgentResponse, error) {
		return nil, errors.New("agent crashed")
	}}
	o := newTestOrchestrator(t, agent, Options{Retry: RetryOptions{MaxAttempts: 3}})

	dataset := []models.GoldenQuery{
		{ID: "a", Query: "how do I deploy", Type: models.QueryTypeTechnical, ExpectedConfidence: models.ConfidenceHigh},
		{ID: "b", Query: "archive stale notes", Type: models.QueryTypeMaintenance, ExpectedConfidence: models.ConfidenceLow},
	}
	a, err := o.Run(context.Background(), dataset, nil)
	if err != nil {
		t.Fatalf("Run() error = %v, want artifact even when every query fails", err)
	}
	if a.Completed != 0 || a.Failed != 2 || a.QualityGatesPassed {
		t.Errorf("artifact = completed %d failed %d passed %v", a.Completed, a.Failed, a.QualityGatesPassed)
	}
	if a.Traces[0].Error != "ExecutionError: agent crashed" {
		t.Errorf("Error = %q", a.Traces[0].Error)
	}
	// Non-retryable errors are not retried.
	if got := len(agent.requests()); got != 2 {
		t.Errorf("agent calls = %d, want 2", got)
	}
	if a.FailureModes["ExecutionError"] != 2 {
		t.Errorf("FailureModes = %v", a.FailureModes)
	}
	if math.IsNaN(a.Metrics.ECE) || a.Metrics.PrecisionAt5 != 0 {
		t.Errorf("metrics = %+v", a.Metrics)
	}
}

func TestRunEmbeddingCache(t *testing.T) {
	agent := &stubAgent{respond: func(_ context.Context, req models.AgentRequest) (*models.AgentResponse, error) {
		if len(req.Embedding) == 0 {
			return nil, errors.New("missing embedding")
		}
		return &models.AgentResponse{RetrievedNotes: []string{"n.md"}}, nil
	}}
	embedder := &countingEmbedder{}
	o := newTestOrchestrator(t, agent, Options{
		Executor: executor.Options{Concurrency: 1, BatchSize: 1, Timeout: time.Second},
		Cache:    CacheOptions{Enabled: true, Capacity: 10},
	}, WithEmbedder(embedder))

	dataset := []models.GoldenQuery{
		{ID: "1", Query: "How do I deploy?", Type: models.QueryTypeTechnical, ExpectedConfidence: models.ConfidenceHigh},
		{ID: "2", Query: "  how do I deploy?", Type: models.QueryTypeTechnical, ExpectedConfidence: models.ConfidenceHigh},
	}
	a, err := o.Run(context.Background(), dataset, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Failed != 0 {
		t.Fatalf("failed = %d: %+v", a.Failed, a.Traces)
	}
	if embedder.calls.Load() != 1 {
		t.Errorf("embedder calls = %d, want 1", embedder.calls.Load())
	}
	opt := a.Optimizations
	if !opt.CacheEnabled || opt.CacheHits != 1 || opt.CacheMisses != 1 || opt.CacheCapacity != 10 {
		t.Errorf("Optimizations = %+v", opt)
	}

	// Each run starts with an empty cache.
	if _, err := o.Run(context.Background(), dataset, nil); err != nil {
		t.Fatal(err)
	}
	if embedder.calls.Load() != 2 {
		t.Errorf("embedder calls after second run = %d, want 2", embedder.calls.Load())
	}
}

func TestRunWithBaselineAddsRegressionGate(t *testing.T) {
	agent := &stubAgent{respond: func(context.Context, models.AgentRequest) (*models.AgentResponse, error) {
		return &models.AgentResponse{RetrievedNotes: []string{"deploy.md"}, Evidence: []string{"deploy"}, Answer: "Next step: ship it."}, nil
	}}
	o := newTestOrchestrator(t, agent, Options{})

	baseline := models.QualityMetrics{PrecisionAt5: 1}
	a, err := o.Run(context.Background(), []models.GoldenQuery{
		{ID: "q", Query: "how do I deploy", Type: models.QueryTypeTechnical, ExpectedNotes: []string{"deploy"}, ExpectedConfidence: models.ConfidenceHigh},
	}, &baseline)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.GateResults) != 4 {
		t.Fatalf("gate results = %d, want 4", len(a.GateResults))
	}
	for _, g := range a.GateResults {
		if !g.Passed {
			t.Errorf("gate %s failed: %s", g.Metric, g.Message)
		}
	}
	if !a.QualityGatesPassed {
		t.Error("QualityGatesPassed = false")
	}
}

func TestRunRecordsMetrics(t *testing.T) {
	agent := &stubAgent{respond: func(_ context.Context, req models.AgentRequest) (*models.AgentResponse, error) {
		if req.QueryID == "bad" {
			return nil, errors.New("boom")
		}
		return &models.AgentResponse{RetrievedNotes: []string{"x.md"}}, nil
	}}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	var progress []int
	var mu sync.Mutex
	o := newTestOrchestrator(t, agent, Options{}, WithMetrics(metrics), WithProgress(func(completed, total int) {
		mu.Lock()
		progress = append(progress, completed)
		mu.Unlock()
	}))

	_, err := o.Run(context.Background(), []models.GoldenQuery{
		{ID: "good", Query: "fix the bug", Type: models.QueryTypeTechnical, ExpectedConfidence: models.ConfidenceHigh},
		{ID: "bad", Query: "roadmap status", Type: models.QueryTypeProject, ExpectedConfidence: models.ConfidenceHigh},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(metrics.QueriesTotal.WithLabelValues("technical", "success")); got != 1 {
		t.Errorf("technical successes = %v", got)
	}
	if got := testutil.ToFloat64(metrics.QueriesTotal.WithLabelValues("project", "error")); got != 1 {
		t.Errorf("project errors = %v", got)
	}
	if got := testutil.ToFloat64(metrics.InflightQueries); got != 0 {
		t.Errorf("inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.RouterDecisions.WithLabelValues("technical", "true")); got != 1 {
		t.Errorf("router decisions = %v", got)
	}
	if got := testutil.ToFloat64(metrics.GatePassed.WithLabelValues("ece")); got != 0 && got != 1 {
		t.Errorf("gate gauge = %v", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]int{1, 2}, progress); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestRunRateLimitsAgentCalls(t *testing.T) {
	agent := &stubAgent{respond: func(context.Context, models.AgentRequest) (*models.AgentResponse, error) {
		return &models.AgentResponse{RetrievedNotes: []string{"n.md"}}, nil
	}}
	bucket := ratelimit.NewBucket(ratelimit.Config{Enabled: true, RequestsPerSecond: 50, BurstSize: 1})
	o := newTestOrchestrator(t, agent, Options{
		Executor: executor.Options{Concurrency: 3, BatchSize: 1, Timeout: time.Second},
	}, WithRateLimit(bucket))

	dataset := []models.GoldenQuery{
		{ID: "1", Query: "fix the bug", Type: models.QueryTypeTechnical, ExpectedConfidence: models.ConfidenceHigh},
		{ID: "2", Query: "fix the build", Type: models.QueryTypeTechnical, ExpectedConfidence: models.ConfidenceHigh},
		{ID: "3", Query: "fix the api", Type: models.QueryTypeTechnical, ExpectedConfidence: models.ConfidenceHigh},
	}
	start := time.Now()
	a, err := o.Run(context.Background(), dataset, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Failed != 0 {
		t.Fatalf("failed = %d", a.Failed)
	}
	// One token up front, then one every 20ms.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("run took %v, agent calls were not paced", elapsed)
	}
}

func TestRunRejectsEmptyDataset(t *testing.T) {
	o := newTestOrchestrator(t, &stubAgent{}, Options{})
	if _, err := o.Run(context.Background(), nil, nil); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("Run(nil) error = %v, want ErrEmptyDataset", err)
	}
}

func TestNewValidatesCollaborators(t *testing.T) {
	router, _ := routing.NewRouter(routing.Config{})
	if _, err := New(nil, &stubAgent{}, Options{}); err == nil {
		t.Error("expected error for nil router")
	}
	if _, err := New(router, nil, Options{}); err == nil {
		t.Error("expected error for nil agent")
	}
}
