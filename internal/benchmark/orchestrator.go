// Package benchmark drives a golden dataset through routing, the agent
// under test and scoring, producing a result artifact.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/ragbench/internal/agentclient"
	"github.com/haasonsaas/ragbench/internal/backoff"
	"github.com/haasonsaas/ragbench/internal/cache"
	"github.com/haasonsaas/ragbench/internal/embeddings"
	"github.com/haasonsaas/ragbench/internal/eval"
	"github.com/haasonsaas/ragbench/internal/executor"
	"github.com/haasonsaas/ragbench/internal/observability"
	"github.com/haasonsaas/ragbench/internal/ratelimit"
	"github.com/haasonsaas/ragbench/internal/routing"
	"github.com/haasonsaas/ragbench/pkg/models"
)

// DefaultStrategy labels runs that route each query by type.
const DefaultStrategy = "adaptive"

// ErrEmptyDataset is returned when Run is given no queries.
var ErrEmptyDataset = errors.New("benchmark: dataset is empty")

// QueryExecutor is the agent under test.
type QueryExecutor interface {
	Execute(ctx context.Context, req models.AgentRequest) (*models.AgentResponse, error)
}

// RetryOptions bounds retries of transient agent failures.
type RetryOptions struct {
	// MaxAttempts includes the first call. Values below 1 mean 1.
	MaxAttempts int
	Policy      backoff.Policy
	// Retryable classifies errors. Defaults to agentclient.IsRetryable.
	Retryable backoff.Retryable
}

// CacheOptions configures the per-run embedding cache.
type CacheOptions struct {
	Enabled  bool
	Capacity int
}

// Options configures an Orchestrator.
type Options struct {
	Executor   executor.Options
	Retry      RetryOptions
	Cache      CacheOptions
	Thresholds models.Thresholds
	// Strategy is recorded on the artifact. Defaults to DefaultStrategy.
	Strategy string
}

// Orchestrator runs benchmarks. It is safe to call Run repeatedly; each run
// gets its own embedding cache.
type Orchestrator struct {
	router     *routing.Router
	classifier routing.Classifier
	agent      QueryExecutor
	embedder   embeddings.Provider
	limiter    *ratelimit.Bucket
	opts       Options

	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	progress executor.BatchFunc
	now      func() time.Time
	newRunID func() string
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClassifier replaces the router as the classifier, e.g. with a
// routing.LLMClassifier wrapping the same router.
func WithClassifier(c routing.Classifier) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.classifier = c
		}
	}
}

// WithEmbedder embeds each query before it is sent to the agent.
func WithEmbedder(p embeddings.Provider) Option {
	return func(o *Orchestrator) { o.embedder = p }
}

// WithRateLimit paces agent calls, retries included, across all workers.
func WithRateLimit(b *ratelimit.Bucket) Option {
	return func(o *Orchestrator) { o.limiter = b }
}

// WithLogger sets the logger.
func WithLogger(l *observability.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer records spans for runs and queries.
func WithTracer(t *observability.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithProgress receives batch progress in addition to the progress log.
func WithProgress(fn executor.BatchFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// New creates an orchestrator that classifies with router and queries agent.
func New(router *routing.Router, agent QueryExecutor, opts Options, options ...Option) (*Orchestrator, error) {
	if router == nil {
		return nil, fmt.Errorf("benchmark: router is required")
	}
	if agent == nil {
		return nil, fmt.Errorf("benchmark: agent is required")
	}
	if opts.Strategy == "" {
		opts.Strategy = DefaultStrategy
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = agentclient.IsRetryable
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}

	tracer, _, _ := observability.NewTracer(observability.TraceConfig{})
	o := &Orchestrator{
		router:     router,
		classifier: router,
		agent:      agent,
		opts:       opts,
		logger:     observability.NewLogger(observability.LogConfig{Level: "info"}),
		tracer:     tracer,
		now:        time.Now,
		newRunID:   uuid.NewString,
	}
	for _, opt := range options {
		opt(o)
	}
	o.logger = o.logger.WithFields("component", "benchmark")
	return o, nil
}

// run holds the state shared by the queries of one Run call.
type run struct {
	embedder embeddings.Provider
	retries  atomic.Int64
}

// Run executes every query and scores the results. Individual query
// failures never abort the run; they are recorded on their traces. A
// non-nil baseline enables the precision regression gate.
func (o *Orchestrator) Run(ctx context.Context, dataset []models.GoldenQuery, baseline *models.QualityMetrics) (*models.ResultArtifact, error) {
	if len(dataset) == 0 {
		return nil, ErrEmptyDataset
	}

	runID := o.newRunID()
	ctx = observability.WithRunID(ctx, runID)
	ctx, span := o.tracer.TraceRun(ctx, runID, len(dataset))
	defer span.End()

	started := o.now()
	state := &run{}
	var embedCache *cache.EmbeddingCache
	if o.embedder != nil {
		if o.opts.Cache.Enabled {
			embedCache = cache.NewEmbeddingCache(o.opts.Cache.Capacity)
			state.embedder = embeddings.NewCachedProvider(o.embedder, embedCache)
		} else {
			state.embedder = o.embedder
		}
	}

	o.logger.Info(ctx, "benchmark run started",
		"queries", len(dataset),
		"concurrency", o.opts.Executor.Concurrency,
		"timeout", o.opts.Executor.Timeout.String(),
	)

	tasks := make([]executor.Task[models.QueryTrace], len(dataset))
	for i, q := range dataset {
		tasks[i] = func(taskCtx context.Context) (models.QueryTrace, error) {
			return o.runQuery(taskCtx, state, q)
		}
	}
	results := executor.Run(ctx, tasks, o.opts.Executor, func(completed, total int) {
		o.logger.Info(ctx, "benchmark progress", "completed", completed, "total", total)
		if o.progress != nil {
			o.progress(completed, total)
		}
	})

	traces := make([]models.QueryTrace, len(dataset))
	for i, res := range results {
		q := dataset[i]
		trace := res.Value
		if res.Err != nil {
			trace = models.NewTrace(q)
			trace.Error = res.Err.Error()
			o.logger.Warn(observability.WithQueryID(ctx, q.ID), "query failed", "error", res.Err)
		}
		trace.ExecutionTimeMs = res.Duration.Milliseconds()
		traces[i] = trace
		if o.metrics != nil {
			o.metrics.RecordQuery(q.Type, res.Err == nil, res.Duration.Seconds())
		}
	}

	finished := o.now()
	artifact := o.assemble(runID, dataset, traces, baseline, started, finished)
	artifact.Optimizations.Retries = int(state.retries.Load())
	if embedCache != nil {
		stats := embedCache.Stats()
		artifact.Optimizations.CacheHits = stats.Hits
		artifact.Optimizations.CacheMisses = stats.Misses
		if o.metrics != nil {
			o.metrics.RecordCacheStats(stats.Hits, stats.Misses)
		}
	}
	if o.metrics != nil {
		o.metrics.RecordQuality(artifact.Metrics, artifact.GateResults)
	}
	if !artifact.QualityGatesPassed {
		o.tracer.RecordError(span, errors.New("quality gates failed"))
	}

	o.logger.Info(ctx, "benchmark run finished",
		"completed", artifact.Completed,
		"failed", artifact.Failed,
		"gates_passed", artifact.QualityGatesPassed,
		"duration_ms", artifact.Timing.DurationMs,
	)
	return artifact, nil
}

// runQuery classifies, embeds and executes one query. Its context is
// cancelled when the per-query timeout fires.
func (o *Orchestrator) runQuery(ctx context.Context, state *run, q models.GoldenQuery) (models.QueryTrace, error) {
	if o.metrics != nil {
		o.metrics.QueryStarted()
		defer o.metrics.QueryEnded()
	}
	ctx = observability.WithQueryID(ctx, q.ID)
	ctx, span := o.tracer.TraceQuery(ctx, q)
	defer span.End()

	trace := models.NewTrace(q)
	decision := o.classifier.Decide(ctx, q.Query)
	o.tracer.RecordDecision(span, decision)
	if o.metrics != nil {
		o.metrics.RecordRouterDecision(decision)
	}
	trace.RoutedType = decision.QueryType
	trace.Strategy = decision.RecommendedStrategy
	trace.UsedFastPath = decision.UsedFastPath

	catalog := o.router.Catalog()
	if o.router.IsFallback(decision) && catalog.StrategyFor(decision.QueryType).Name != decision.RecommendedStrategy {
		trace.FallbackTriggered = true
		trace.FallbackReason = models.FallbackLowConfidence
	}

	var embedding []float32
	if state.embedder != nil {
		vec, err := state.embedder.Embed(ctx, q.Query)
		if err != nil {
			o.tracer.RecordError(span, err)
			return trace, fmt.Errorf("embed query: %w", err)
		}
		embedding = vec
	}

	req := models.AgentRequest{
		QueryID:   q.ID,
		Query:     q.Query,
		QueryType: decision.QueryType,
		Strategy:  decision.RecommendedStrategy,
		Weights:   weightsFor(catalog, decision),
		Embedding: embedding,
	}
	resp, err := o.execute(ctx, state, req)
	if err != nil {
		o.tracer.RecordError(span, err)
		return trace, err
	}

	fallback := catalog.FallbackStrategy()
	if len(resp.RetrievedNotes) == 0 && req.Strategy != fallback {
		req.Strategy = fallback
		req.Weights = catalog.Fallback.Weights
		o.logger.Debug(ctx, "no notes retrieved, retrying with fallback strategy", "strategy", fallback)
		retry, err := o.execute(ctx, state, req)
		if err != nil {
			o.tracer.RecordError(span, err)
			return trace, err
		}
		resp = retry
		trace.Strategy = fallback
		trace.FallbackTriggered = true
		trace.FallbackReason = models.FallbackZeroResults
	}

	trace.Answer = resp.Answer
	trace.RetrievedNotes = nonNil(resp.RetrievedNotes)
	trace.ToolsUsed = nonNil(resp.ToolsUsed)
	trace.Evidence = extractEvidence(resp.Evidence, resp.Answer)
	trace.HasNextStep = hasNextStep(resp.Answer, q.ExpectedNextStep)
	trace.Confidence = decision.Confidence
	if resp.Confidence != nil {
		trace.Confidence = *resp.Confidence
	}
	o.logger.Debug(ctx, "query completed",
		"strategy", trace.Strategy,
		"retrieved", len(trace.RetrievedNotes),
		"fallback", trace.FallbackReason,
	)
	return trace, nil
}

// execute calls the agent, retrying transient failures.
func (o *Orchestrator) execute(ctx context.Context, state *run, req models.AgentRequest) (*models.AgentResponse, error) {
	retry := o.opts.Retry
	result, err := backoff.Retry(ctx, retry.Policy, retry.MaxAttempts, retry.Retryable,
		func(ctx context.Context, attempt int) (*models.AgentResponse, error) {
			if attempt > 1 {
				state.retries.Add(1)
				o.logger.Debug(ctx, "retrying agent call", "attempt", attempt)
			}
			if err := o.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return o.agent.Execute(ctx, req)
		})
	if err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, fmt.Errorf("agent returned no response")
	}
	return result.Value, nil
}

// assemble scores traces and builds the artifact.
func (o *Orchestrator) assemble(runID string, dataset []models.GoldenQuery, traces []models.QueryTrace, baseline *models.QualityMetrics, started, finished time.Time) *models.ResultArtifact {
	metrics := eval.Compute(traces, dataset)
	gates := eval.Check(metrics, o.opts.Thresholds, baseline)

	completed, fastPath := 0, 0
	var totalMs int64
	for _, tr := range traces {
		totalMs += tr.ExecutionTimeMs
		if tr.Failed() {
			continue
		}
		completed++
		if tr.UsedFastPath {
			fastPath++
		}
	}

	exec := o.opts.Executor
	return &models.ResultArtifact{
		Version:            models.ArtifactVersion,
		RunID:              runID,
		Timestamp:          started.UTC(),
		DatasetSize:        len(dataset),
		Completed:          completed,
		Failed:             len(traces) - completed,
		Traces:             traces,
		Metrics:            metrics,
		QualityGatesPassed: gates.Passed,
		GateResults:        gates.Results,
		MetricsByType:      eval.ComputeByType(traces, dataset),
		FailureModes:       eval.FailureModes(traces),
		Strategy:           o.opts.Strategy,
		Timing: models.RunTiming{
			StartedAt:  started.UTC(),
			FinishedAt: finished.UTC(),
			DurationMs: finished.Sub(started).Milliseconds(),
			AvgQueryMs: float64(totalMs) / float64(len(traces)),
		},
		Optimizations: models.Optimizations{
			Concurrency:   exec.Concurrency,
			BatchSize:     exec.BatchSize,
			TimeoutMs:     exec.Timeout.Milliseconds(),
			CacheEnabled:  o.opts.Cache.Enabled && o.embedder != nil,
			CacheCapacity: o.opts.Cache.Capacity,
			FastPathRate:  float64(fastPath) / float64(max(completed, 1)),
		},
	}
}

// weightsFor returns the weights of the decision's recommended strategy.
func weightsFor(catalog *routing.Catalog, d models.RouterDecision) models.StrategyWeights {
	if w, ok := catalog.Weights(d.RecommendedStrategy); ok {
		return w
	}
	return catalog.WeightsFor(d.QueryType)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

