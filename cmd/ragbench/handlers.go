package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/ragbench/internal/benchmark"
	"github.com/haasonsaas/ragbench/internal/config"
	"github.com/haasonsaas/ragbench/internal/cron"
	"github.com/haasonsaas/ragbench/internal/eval"
	"github.com/haasonsaas/ragbench/internal/observability"
	"github.com/haasonsaas/ragbench/internal/ratelimit"
	"github.com/haasonsaas/ragbench/internal/storage"
	"github.com/haasonsaas/ragbench/pkg/models"
)

// =============================================================================
// Benchmark Handlers
// =============================================================================

type runOptions struct {
	configPath   string
	dataset      string
	outputDir    string
	baselineFile string
	noBaseline   bool
	promote      bool
}

// bench holds everything one or more benchmark runs share.
type bench struct {
	cfg          *config.Config
	logger       *observability.Logger
	orchestrator *benchmark.Orchestrator
	store        *storage.RunStore
	dataset      *eval.Dataset
	shutdown     func(context.Context) error
}

func setupBench(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*bench, error) {
	dataset, err := eval.LoadDataset(cfg.Dataset)
	if err != nil {
		return nil, err
	}
	if len(dataset.Queries) == 0 {
		return nil, benchmark.ErrEmptyDataset
	}

	router, err := buildRouter(cfg)
	if err != nil {
		return nil, err
	}
	classifier, err := buildClassifier(cfg.Router.LLM, router, logger)
	if err != nil {
		return nil, err
	}
	embedder, err := buildEmbedder(cfg.Embeddings)
	if err != nil {
		return nil, err
	}
	agent, err := buildAgent(cfg.Agent)
	if err != nil {
		return nil, err
	}

	tracer, shutdown, err := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})
	if err != nil {
		logger.Warn(ctx, "tracing disabled", "error", err)
	}

	options := []benchmark.Option{
		benchmark.WithClassifier(classifier),
		benchmark.WithLogger(logger),
		benchmark.WithTracer(tracer),
		benchmark.WithRateLimit(ratelimit.NewBucket(cfg.Agent.RateLimit)),
	}
	if embedder != nil {
		options = append(options, benchmark.WithEmbedder(embedder))
	}
	if metrics != nil {
		options = append(options, benchmark.WithMetrics(metrics))
	}
	orchestrator, err := benchmark.New(router, agent, orchestratorOptions(cfg), options...)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "benchmark ready",
		"dataset", cfg.Dataset,
		"dataset_name", dataset.Name,
		"queries", len(dataset.Queries),
		"agent_mode", cfg.Agent.Mode,
		"embeddings", cfg.Embeddings.Provider,
		"llm_router", cfg.Router.LLM.Enabled,
	)
	return &bench{
		cfg:          cfg,
		logger:       logger,
		orchestrator: orchestrator,
		store:        store,
		dataset:      dataset,
		shutdown:     shutdown,
	}, nil
}

func (b *bench) Close(ctx context.Context) {
	if b.shutdown != nil {
		if err := b.shutdown(ctx); err != nil {
			b.logger.Warn(ctx, "tracer shutdown failed", "error", err)
		}
	}
	if err := b.store.Close(); err != nil {
		b.logger.Warn(ctx, "closing run store failed", "error", err)
	}
}

type runOutcome struct {
	artifact   *models.ResultArtifact
	jsonPath   string
	reportPath string
	baseline   string
}

// runOnce executes the dataset, writes artifacts and records the run.
func (b *bench) runOnce(ctx context.Context, baselineFile string, noBaseline bool) (*runOutcome, error) {
	baseline, source, err := resolveBaseline(ctx, b.store, baselineFile, noBaseline)
	if err != nil {
		return nil, err
	}

	artifact, err := b.orchestrator.Run(ctx, b.dataset.Queries, baseline)
	if err != nil {
		return nil, err
	}
	jsonPath, reportPath, err := eval.WriteArtifacts(b.cfg.OutputDir, artifact)
	if err != nil {
		return nil, err
	}
	if err := b.store.SaveRun(ctx, artifact); err != nil {
		return nil, err
	}
	return &runOutcome{artifact: artifact, jsonPath: jsonPath, reportPath: reportPath, baseline: source}, nil
}

func runBenchmark(cmd *cobra.Command, opts runOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.dataset != "" {
		cfg.Dataset = opts.dataset
	}
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}

	ctx := cmd.Context()
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	b, err := setupBench(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer b.Close(context.WithoutCancel(ctx))

	outcome, err := b.runOnce(ctx, opts.baselineFile, opts.noBaseline)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printSummary(out, outcome)

	if !outcome.artifact.QualityGatesPassed {
		return errGatesFailed
	}
	if opts.promote {
		if err := b.store.Promote(ctx, outcome.artifact.RunID); err != nil {
			return err
		}
		fmt.Fprintf(out, "Promoted run %s to baseline\n", outcome.artifact.RunID)
	}
	return nil
}

func runGates(cmd *cobra.Command, configPath, resultsPath, baselineFile string) error {
	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return err
	}
	artifact, err := eval.LoadArtifact(resultsPath)
	if err != nil {
		return err
	}
	baseline, _, err := resolveBaseline(cmd.Context(), nil, baselineFile, baselineFile == "")
	if err != nil {
		return err
	}

	report := eval.Check(artifact.Metrics, cfg.Thresholds, baseline)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s\n", artifact.RunID)
	printGates(out, report.Results)
	if !report.Passed {
		fmt.Fprintln(out, "Quality gates: FAILED")
		return errGatesFailed
	}
	fmt.Fprintln(out, "Quality gates: PASSED")
	return nil
}

func printSummary(out io.Writer, o *runOutcome) {
	a := o.artifact
	m := a.Metrics
	fmt.Fprintf(out, "Run %s: %d/%d completed, %d failed (%dms)\n",
		a.RunID, a.Completed, a.DatasetSize, a.Failed, a.Timing.DurationMs)
	fmt.Fprintf(out, "Precision@5: %.1f%%  MRR: %.3f  Citation: %.1f%%  Completeness: %.1f%%  ECE: %.3f\n",
		m.PrecisionAt5*100, m.MRR, m.CitationCorrectness*100, m.Completeness*100, m.ECE)
	fmt.Fprintf(out, "Baseline: %s\n", o.baseline)
	printGates(out, a.GateResults)
	for _, mode := range eval.SortedFailureModes(a.FailureModes) {
		fmt.Fprintf(out, "Failure %s: %d\n", mode.Mode, mode.Count)
	}
	status := "PASSED"
	if !a.QualityGatesPassed {
		status = "FAILED"
	}
	fmt.Fprintf(out, "Quality gates: %s\n", status)
	fmt.Fprintf(out, "Results: %s\n", o.jsonPath)
	fmt.Fprintf(out, "Report: %s\n", o.reportPath)
}

func printGates(out io.Writer, results []models.GateResult) {
	for _, g := range results {
		mark := "✅"
		if !g.Passed {
			mark = "❌"
		}
		fmt.Fprintf(out, "  %s %s\n", mark, g.Message)
	}
}

// =============================================================================
// Run History Handlers
// =============================================================================

func runBaselinePromote(cmd *cobra.Command, configPath, runID string) error {
	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Promote(cmd.Context(), runID); err != nil {
		return fmt.Errorf("promote %s: %w", runID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Promoted run %s to baseline\n", runID)
	return nil
}

func runBaselineShow(cmd *cobra.Command, configPath string, jsonOutput bool) error {
	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	baseline, err := store.Baseline(cmd.Context())
	if errors.Is(err, storage.ErrNoBaseline) {
		fmt.Fprintln(out, "No baseline promoted.")
		return nil
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(baseline)
	}

	m := baseline.Metrics
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Run\t%s\n", baseline.RunID)
	fmt.Fprintf(w, "Promoted\t%s\n", baseline.PromotedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "precision_at_5\t%.1f%%\n", m.PrecisionAt5*100)
	fmt.Fprintf(w, "mrr\t%.3f\n", m.MRR)
	fmt.Fprintf(w, "citation_correctness\t%.1f%%\n", m.CitationCorrectness*100)
	fmt.Fprintf(w, "completeness\t%.1f%%\n", m.Completeness*100)
	fmt.Fprintf(w, "ece\t%.3f\n", m.ECE)
	return w.Flush()
}

func runRunsList(cmd *cobra.Command, configPath string, limit int) error {
	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	printRuns(out, runs)
	return nil
}

func printRuns(out io.Writer, runs []storage.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTIMESTAMP\tQUERIES\tFAILED\tP@5\tGATES\tBASELINE")
	for _, r := range runs {
		gates := "fail"
		if r.GatesPassed {
			gates = "pass"
		}
		baseline := ""
		if r.IsBaseline {
			baseline = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.1f%%\t%s\t%s\n",
			r.ID, r.Timestamp.Format(time.RFC3339), r.DatasetSize, r.Failed, r.PrecisionAt5*100, gates, baseline)
	}
	_ = w.Flush()
}

func runRunsShow(cmd *cobra.Command, configPath, runID string) error {
	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	artifact, err := store.GetRun(cmd.Context(), runID)
	if err != nil {
		return fmt.Errorf("get run %s: %w", runID, err)
	}
	fmt.Fprint(cmd.OutOrStdout(), eval.RenderMarkdown(artifact))
	return nil
}

// =============================================================================
// Online Mode Handler
// =============================================================================

func runSchedule(cmd *cobra.Command, configPath, listen string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Metrics.Listen = listen
	}
	schedule, err := cron.NewSchedule(cfg.Schedule)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	b, err := setupBench(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer b.Close(context.WithoutCancel(ctx))

	job := func(ctx context.Context) error {
		outcome, err := b.runOnce(ctx, "", false)
		if err != nil {
			return err
		}
		a := outcome.artifact
		logger.Info(ctx, "benchmark recorded",
			"run_id", a.RunID,
			"gates_passed", a.QualityGatesPassed,
			"baseline", outcome.baseline,
			"results", outcome.jsonPath,
		)
		if !a.QualityGatesPassed {
			return errGatesFailed
		}
		return nil
	}
	scheduler, err := cron.NewScheduler(schedule, job, cron.WithLogger(logger))
	if err != nil {
		return err
	}

	var server *http.Server
	if cfg.Metrics.Listen != "" {
		server, err = startMetricsServer(ctx, cfg.Metrics.Listen, reg, logger)
		if err != nil {
			return err
		}
	}

	if cfg.Schedule.RunOnStart {
		_ = scheduler.RunNow(ctx)
	}
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	logger.Info(context.Background(), "shutting down scheduler")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "metrics server shutdown failed", "error", err)
		}
	}
	return scheduler.Stop(shutdownCtx)
}

func startMetricsServer(ctx context.Context, addr string, reg *prometheus.Registry, logger *observability.Logger) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "metrics server stopped", "error", err)
		}
	}()
	logger.Info(ctx, "serving metrics", "addr", listener.Addr().String())
	return server, nil
}

// =============================================================================
// Utility Handlers
// =============================================================================

func runConfigSchema(cmd *cobra.Command) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if _, err := out.Write(schema); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out)
	return err
}

func runConfigValidate(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration valid: %s\n", configPath)
	for _, src := range cfg.Sources[:max(len(cfg.Sources)-1, 0)] {
		fmt.Fprintf(out, "  includes %s\n", src)
	}
	return nil
}

func runClassify(cmd *cobra.Command, configPath, query string, useLLM bool) error {
	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return err
	}
	router, err := buildRouter(cfg)
	if err != nil {
		return err
	}
	llm := cfg.Router.LLM
	llm.Enabled = useLLM
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	classifier, err := buildClassifier(llm, router, logger)
	if err != nil {
		return err
	}

	decision := classifier.Decide(cmd.Context(), query)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(decision)
}
