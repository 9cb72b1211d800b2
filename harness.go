// Package shardrun coordinates one run of the distributed test harness:
// it launches the worker group, aggregates per-rank results and coverage,
// and reports the aggregate verdict to the invoking pipeline.
package shardrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shardrun/shardrun/aggregator"
	"github.com/shardrun/shardrun/exitcodes"
	"github.com/shardrun/shardrun/launcher"
	"github.com/shardrun/shardrun/metrics"
	"github.com/shardrun/shardrun/reporter"
	"github.com/shardrun/shardrun/types"
)

// Harness runs the worker group and aggregates its results.
type Harness struct {
	config  *Config
	version string
	result  *aggregator.Report

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a harness from a validated config.
func New(config *Config, version string) (*Harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	config.Log.Debug("Creating harness with config",
		"groupSize", config.Plan.GroupSize,
		"timeout", config.Plan.Timeout,
		"suite", config.Plan.SuiteSelector,
		"outDir", config.OutDir,
		"runOnce", config.RunOnce)

	return &Harness{
		config:  config,
		version: version,
		done:    make(chan struct{}),
	}, nil
}

// Run executes the harness until completion (run-once mode) or until the
// context is cancelled (interval mode). The returned error carries the
// exit-code class: LaunchError for code 2, RunFailureError for code 1.
func (h *Harness) Run(ctx context.Context) error {
	// A panic anywhere in coordination is a harness defect, not a test
	// failure; exit with the launch-error code so pipelines can tell the
	// difference.
	defer func() {
		if r := recover(); r != nil {
			h.config.Log.Error("Runtime panic in harness", "error", r)
			os.Exit(exitcodes.LaunchErr)
		}
	}()

	h.running.Store(true)
	defer h.running.Store(false)
	h.wg.Add(1)
	defer h.wg.Done()

	if h.config.RunOnce {
		h.config.Log.Info("Starting shardrun in run-once mode")
		return h.runGroup(ctx)
	}

	h.config.Log.Info("Starting shardrun in continuous mode", "interval", h.config.RunInterval)
	if err := h.runGroup(ctx); err != nil {
		h.config.Log.Error("Error running worker group", "error", err)
	}
	for {
		select {
		case <-time.After(h.config.RunInterval):
			if !h.running.Load() {
				return nil
			}
			h.config.Log.Info("Running periodic worker group")
			if err := h.runGroup(ctx); err != nil {
				h.config.Log.Error("Error running worker group", "error", err)
			}
		case <-h.done:
			h.config.Log.Debug("Done signal received, stopping harness")
			return nil
		case <-ctx.Done():
			h.config.Log.Debug("Context canceled, stopping harness")
			return nil
		}
	}
}

// runGroup performs one complete run: launch, aggregate, seal, report.
func (h *Harness) runGroup(ctx context.Context) error {
	runID := uuid.New().String()
	start := time.Now()
	logger := h.config.Log.New("run_id", runID)

	runDir := filepath.Join(h.config.OutDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return NewLaunchError(fmt.Errorf("creating run directory: %w", err))
	}

	agg, err := aggregator.New(h.config.Plan.GroupSize, logger)
	if err != nil {
		return NewLaunchError(err)
	}
	l, err := launcher.New(launcher.Config{
		Plan:      h.config.Plan,
		ResultDir: runDir,
		Log:       logger,
	})
	if err != nil {
		return NewLaunchError(err)
	}

	logger.Info("Launching worker group",
		"groupSize", h.config.Plan.GroupSize,
		"suite", h.config.Plan.SuiteSelector,
		"timeout", h.config.Plan.Timeout)
	if err := l.Launch(ctx, agg); err != nil {
		// No report exists; the group never ran as a group.
		return NewLaunchError(err)
	}

	report := agg.Seal()
	h.result = report
	duration := time.Since(start)

	reporter.PrintStdout(report)
	artifact := filepath.Join(runDir, h.config.CoverageOut)
	if err := reporter.WriteCoverageArtifact(artifact, report); err != nil {
		logger.Error("Failed to write coverage artifact", "path", artifact, "error", err)
		metrics.RecordError("coverage artifact write failed")
	} else {
		logger.Info("Wrote coverage artifact", "path", artifact, "lines", report.Merged.Lines())
	}

	h.recordMetrics(runID, report, duration)
	logger.Info("Run completed", "verdict", report.Verdict, "duration", duration)

	if reporter.ExitCode(report) != exitcodes.Success {
		return NewRunFailureError(summarize(report))
	}
	return nil
}

// recordMetrics publishes per-rank and run-level metrics.
func (h *Harness) recordMetrics(runID string, report *aggregator.Report, duration time.Duration) {
	for _, rank := range report.ExpectedRanks {
		if result, ok := report.Received[rank]; ok {
			metrics.RecordRankResult(runID, strconv.Itoa(rank), result.Outcome)
			continue
		}
		outcome := types.RankCrashed
		if report.TimedOut[rank] {
			outcome = types.RankTimedOut
		}
		metrics.RecordRankResult(runID, strconv.Itoa(rank), outcome)
	}
	stats := report.Stats()
	metrics.RecordRun(runID, report.Verdict,
		stats.Total, stats.Failed+stats.Errored,
		report.Merged.Lines(), duration)
}

// summarize renders the one-line failure message attached to the
// RunFailureError.
func summarize(report *aggregator.Report) string {
	stats := report.Stats()
	return fmt.Sprintf("%d/%d ranks reported, %d missing; %d tests, %d failed, %d errored",
		len(report.Received), len(report.ExpectedRanks), len(report.MissingRanks),
		stats.Total, stats.Failed, stats.Errored)
}

// Stop stops the harness's periodic loop.
func (h *Harness) Stop(ctx context.Context) error {
	h.config.Log.Info("Stopping shardrun")
	if !h.running.Load() {
		h.config.Log.Debug("Harness already stopped, nothing to do")
		return nil
	}
	h.running.Store(false)
	close(h.done)
	h.wg.Wait()
	h.config.Log.Info("shardrun stopped successfully")
	return nil
}

// Stopped returns true if the harness is stopped.
func (h *Harness) Stopped() bool {
	return !h.running.Load()
}

// Result returns the most recent sealed report, if any.
func (h *Harness) Result() *aggregator.Report {
	return h.result
}
