// Package runner implements the rank runtime: the portion of the harness
// that executes inside each worker process. Given its rank and the group
// size it runs the deterministic slice of the suite assigned to it,
// isolates per-test failures, accumulates coverage, and produces exactly
// one WorkerResult.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/shardrun/shardrun/coverage"
	"github.com/shardrun/shardrun/suite"
	"github.com/shardrun/shardrun/types"
)

// Config holds configuration for creating a new rank runner.
type Config struct {
	Selector  string
	Rank      int
	GroupSize int
	Log       log.Logger
}

// Runner executes one rank's partition of a suite.
type Runner struct {
	selector  string
	rank      int
	groupSize int
	log       log.Logger
}

// New creates a rank runner after validating the rank identity.
func New(cfg Config) (*Runner, error) {
	if cfg.GroupSize < 1 {
		return nil, fmt.Errorf("group size must be at least 1, got %d", cfg.GroupSize)
	}
	if cfg.Rank < 0 || cfg.Rank >= cfg.GroupSize {
		return nil, fmt.Errorf("rank %d out of range [0, %d)", cfg.Rank, cfg.GroupSize)
	}
	if cfg.Selector == "" {
		return nil, fmt.Errorf("suite selector is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Runner{
		selector:  cfg.Selector,
		rank:      cfg.Rank,
		groupSize: cfg.GroupSize,
		log:       cfg.Log.New("component", "runner", "rank", cfg.Rank),
	}, nil
}

// Run executes the rank's partition and returns its WorkerResult. Run
// always returns a result: a suite that cannot be loaded yields outcome
// Crashed with no records rather than an error, so the worker process
// still reports exactly one structured record.
func (r *Runner) Run(ctx context.Context) *types.WorkerResult {
	s, err := suite.Lookup(r.selector)
	if err != nil {
		r.log.Error("Failed to load suite", "selector", r.selector, "error", err)
		return &types.WorkerResult{
			Rank:     r.rank,
			Outcome:  types.RankCrashed,
			Coverage: make(coverage.Map),
		}
	}

	partition := s.Partition(r.rank, r.groupSize)
	r.log.Info("Running partition", "suite", r.selector, "tests", len(partition), "groupSize", r.groupSize)

	cov := coverage.NewRecorder()
	records := make([]types.TestRecord, 0, len(partition))
	for _, c := range partition {
		records = append(records, r.runCase(ctx, c, cov))
	}

	result := &types.WorkerResult{
		Rank:     r.rank,
		Outcome:  outcomeFor(records),
		Records:  records,
		Coverage: cov.Snapshot(),
	}
	stats := result.Stats()
	r.log.Info("Partition complete",
		"outcome", result.Outcome,
		"total", stats.Total,
		"passed", stats.Passed,
		"failed", stats.Failed,
		"errored", stats.Errored)
	return result
}

// runCase runs a single case, converting a panic in the test body into an
// errored record so the remaining cases in the partition still run.
func (r *Runner) runCase(ctx context.Context, c suite.Case, cov *coverage.Recorder) (rec types.TestRecord) {
	start := time.Now()
	rec = types.TestRecord{Name: c.Name, Status: types.TestStatusPass}

	defer func() {
		rec.Duration = time.Since(start)
		if p := recover(); p != nil {
			r.log.Error("Panic in test body", "test", c.Name, "panic", p)
			rec.Status = types.TestStatusError
			rec.FailureDetail = sanitize(fmt.Sprintf("panic: %v\n%s", p, debug.Stack()))
		}
	}()

	r.log.Debug("Running test", "test", c.Name)
	if err := c.Fn(ctx, cov); err != nil {
		rec.Status = types.TestStatusFail
		rec.FailureDetail = sanitize(err.Error())
	}
	return rec
}

// outcomeFor reduces the record statuses to the rank outcome.
func outcomeFor(records []types.TestRecord) types.RankOutcome {
	outcome := types.RankPassed
	for _, rec := range records {
		switch rec.Status {
		case types.TestStatusError:
			return types.RankErrored
		case types.TestStatusFail:
			outcome = types.RankFailed
		}
	}
	return outcome
}

// sanitize strips ANSI escapes from failure detail so the record stays
// readable in JSON artifacts and result tables.
func sanitize(s string) string {
	return stripansi.Strip(s)
}
