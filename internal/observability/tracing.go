package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/ragbench/pkg/models"
)

// Tracer wraps an OpenTelemetry tracer with spans for benchmark runs and
// queries. Without an endpoint it uses the global (no-op by default)
// provider.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TraceConfig
}

// TraceConfig configures tracing.
type TraceConfig struct {
	// ServiceName identifies this process in traces (defaults to "ragbench").
	ServiceName string

	// ServiceVersion is the build version.
	ServiceVersion string

	// Endpoint is the OTLP gRPC collector address. Empty disables export.
	Endpoint string

	// SamplingRate is the fraction of traces to sample (0.0 to 1.0).
	SamplingRate float64

	// EnableInsecure disables TLS to the collector.
	EnableInsecure bool
}

// NewTracer creates a tracer and a shutdown function that flushes pending
// spans. Exporter setup failures are returned so callers can log them; the
// returned tracer is always usable.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error, error) {
	if config.ServiceName == "" {
		config.ServiceName = "ragbench"
	}
	noop := func(context.Context) error { return nil }
	if config.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(config.ServiceName), config: config}, noop, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
	if config.EnableInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return &Tracer{tracer: otel.Tracer(config.ServiceName), config: config}, noop,
			fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	))
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(config.SamplingRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return newTracerFromProvider(provider, config), provider.Shutdown, nil
}

func newTracerFromProvider(provider *sdktrace.TracerProvider, config TraceConfig) *Tracer {
	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(config.ServiceName),
		config:   config,
	}
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// TraceRun starts the root span of a benchmark run.
func (t *Tracer) TraceRun(ctx context.Context, runID string, queries int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "benchmark.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("ragbench.run_id", runID),
			attribute.Int("ragbench.queries", queries),
		),
	)
}

// TraceQuery starts a span for one golden query.
func (t *Tracer) TraceQuery(ctx context.Context, q models.GoldenQuery) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "benchmark.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ragbench.query_id", q.ID),
			attribute.String("ragbench.query_type", string(q.Type)),
			attribute.String("ragbench.difficulty", string(q.Difficulty)),
		),
	)
}

// RecordDecision annotates span with the router's decision.
func (t *Tracer) RecordDecision(span trace.Span, d models.RouterDecision) {
	span.SetAttributes(
		attribute.String("ragbench.routed_type", string(d.QueryType)),
		attribute.String("ragbench.strategy", d.RecommendedStrategy),
		attribute.Float64("ragbench.router_confidence", d.Confidence),
		attribute.Bool("ragbench.fast_path", d.UsedFastPath),
	)
}

// RecordError marks span as failed. A nil err is ignored.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// GetTraceID returns the trace ID of the span in ctx, or "" when there is none.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
