// Package main provides the CLI entry point for ragbench, the quality
// benchmark for retrieval agents.
//
// ragbench sends a golden query set through a keyword router to the agent
// under test, scores the answers and enforces release quality gates.
//
// # Basic Usage
//
// Run the benchmark:
//
//	ragbench run --config ragbench.yaml
//
// Re-check gates on a stored result:
//
//	ragbench gates --results bench-results/results-<run-id>.json
//
// Promote a passing run to baseline:
//
//	ragbench baseline promote <run-id>
//
// # Environment Variables
//
//   - RAGBENCH_CONFIG: Path to configuration file (default: ragbench.yaml)
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY: referenced from config via ${VAR}
//
// # Exit Status
//
// run and gates exit 0 when every quality gate passes and 1 otherwise,
// including on any fatal error.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// errGatesFailed makes the process exit 1 without logging an error; the
// summary already explains which gates failed.
var errGatesFailed = errors.New("quality gates failed")

func main() {
	slog.SetDefault(newLogger("info", "auto", os.Stderr).Slog())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := buildRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errGatesFailed) {
			slog.Error("command execution failed", "error", err)
		}
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ragbench",
		Short: "ragbench - quality benchmark for retrieval agents",
		Long: `ragbench runs a golden query set against a retrieval agent, scores
precision, ranking, citation and calibration, and enforces quality gates.

A run passes only when citation correctness, completeness and calibration
meet their thresholds and, when a baseline exists, precision@5 has not
regressed beyond the tolerance.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
		// Errors are logged once by main.
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildGatesCmd(),
		buildBaselineCmd(),
		buildRunsCmd(),
		buildScheduleCmd(),
		buildConfigCmd(),
		buildClassifyCmd(),
	)
	return rootCmd
}
