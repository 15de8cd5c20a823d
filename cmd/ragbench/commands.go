package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Benchmark Commands
// =============================================================================

// buildRunCmd creates the "run" command that executes one benchmark.
func buildRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark once and enforce quality gates",
		Long: `Run the golden dataset through the router and the agent under test.

The command:
1. Loads configuration and the golden dataset
2. Routes, embeds and executes every query with bounded concurrency
3. Scores the traces and checks the quality gates
4. Writes results-<run-id>.json and report-<run-id>.md
5. Records the run in the run store

The baseline for the precision regression gate comes from --baseline-file,
or else from the promoted baseline in the run store.`,
		Example: `  # Run with the default config
  ragbench run

  # Run a different dataset without regression checking
  ragbench run -c ci.yaml --dataset golden/smoke.yaml --no-baseline

  # Run and promote the result when every gate passes
  ragbench run --promote`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath = resolveConfigPath(opts.configPath)
			return runBenchmark(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	cmd.Flags().StringVar(&opts.dataset, "dataset", "", "Golden dataset path (overrides config)")
	cmd.Flags().StringVar(&opts.baselineFile, "baseline-file", "", "Results JSON whose metrics are the baseline")
	cmd.Flags().BoolVar(&opts.noBaseline, "no-baseline", false, "Skip the precision regression gate")
	cmd.Flags().BoolVar(&opts.promote, "promote", false, "Promote the run to baseline if every gate passes")
	cmd.Flags().StringVar(&opts.outputDir, "output", "", "Directory for result artifacts (overrides config)")
	cmd.MarkFlagsMutuallyExclusive("baseline-file", "no-baseline")
	return cmd
}

// buildGatesCmd creates the "gates" command that re-checks a stored result.
func buildGatesCmd() *cobra.Command {
	var (
		configPath   string
		resultsPath  string
		baselineFile string
	)
	cmd := &cobra.Command{
		Use:   "gates",
		Short: "Re-check quality gates on a results file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGates(cmd, resolveConfigPath(configPath), resultsPath, baselineFile)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file (thresholds)")
	cmd.Flags().StringVar(&resultsPath, "results", "", "Path to a results JSON file")
	cmd.Flags().StringVar(&baselineFile, "baseline-file", "", "Results JSON whose metrics are the baseline")
	cobra.CheckErr(cmd.MarkFlagRequired("results"))
	return cmd
}

// =============================================================================
// Run History Commands
// =============================================================================

// buildBaselineCmd creates the "baseline" command group.
func buildBaselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage the regression baseline",
	}
	cmd.AddCommand(buildBaselinePromoteCmd(), buildBaselineShowCmd())
	return cmd
}

func buildBaselinePromoteCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "promote <run-id>",
		Short: "Promote a passing run to baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBaselinePromote(cmd, resolveConfigPath(configPath), args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	return cmd
}

func buildBaselineShowCmd() *cobra.Command {
	var (
		configPath string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current baseline metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBaselineShow(cmd, resolveConfigPath(configPath), jsonOutput)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the baseline as JSON")
	return cmd
}

// buildRunsCmd creates the "runs" command group.
func buildRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded benchmark runs",
	}
	cmd.AddCommand(buildRunsListCmd(), buildRunsShowCmd())
	return cmd
}

func buildRunsListCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(cmd, resolveConfigPath(configPath), limit)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}

func buildRunsShowCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the markdown report of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(cmd, resolveConfigPath(configPath), args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	return cmd
}

// =============================================================================
// Online Mode
// =============================================================================

// buildScheduleCmd creates the "schedule" command that runs the benchmark
// periodically and serves Prometheus metrics.
func buildScheduleCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the benchmark on a schedule and serve /metrics",
		Long: `Run the benchmark on schedule.cron (or schedule.every) until interrupted.

Each run is recorded in the run store and compared against the promoted
baseline. Gate failures are logged and exported as metrics but do not stop
the scheduler.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd, resolveConfigPath(configPath), listen)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	cmd.Flags().StringVar(&listen, "listen", "", "Metrics listen address (overrides metrics.listen)")
	return cmd
}

// =============================================================================
// Utility Commands
// =============================================================================

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(buildConfigSchemaCmd(), buildConfigValidateCmd())
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd)
		},
	}
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	return cmd
}

// buildClassifyCmd creates the "classify" command for debugging routing.
func buildClassifyCmd() *cobra.Command {
	var (
		configPath string
		useLLM     bool
	)
	cmd := &cobra.Command{
		Use:   "classify <query>",
		Short: "Print the routing decision for a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, configPath, args[0], useLLM)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (optional)")
	cmd.Flags().BoolVar(&useLLM, "llm", false, "Use the LLM classifier configured under router.llm")
	return cmd
}
