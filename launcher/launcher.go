// Package launcher spawns and reaps the fixed-size worker group. Workers
// are re-executions of the harness binary in worker mode, each told its
// rank and the group size. The launcher enforces the plan's wall-clock
// budget, classifies each rank's delivery, and feeds the aggregator.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/shardrun/shardrun/aggregator"
	"github.com/shardrun/shardrun/coverage"
	"github.com/shardrun/shardrun/results"
	"github.com/shardrun/shardrun/types"
)

// Sink receives one delivery per rank.
type Sink interface {
	Add(aggregator.Delivery) error
}

// Config holds configuration for creating a launcher.
type Config struct {
	Plan      types.GroupPlan
	Bin       string   // Worker binary; defaults to the current executable
	Args      []string // Leading args before the per-rank flags, defaults to ["worker"]
	ResultDir string   // Directory workers publish results into
	Log       log.Logger
}

// Launcher starts one worker process per rank and waits for the group.
type Launcher struct {
	plan      types.GroupPlan
	bin       string
	args      []string
	resultDir string
	log       log.Logger
	tracer    trace.Tracer
}

// New validates the plan and creates a launcher.
func New(cfg Config) (*Launcher, error) {
	if err := cfg.Plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid group plan: %w", err)
	}
	if cfg.ResultDir == "" {
		return nil, fmt.Errorf("result directory is required")
	}
	if cfg.Bin == "" {
		bin, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolving worker binary: %w", err)
		}
		cfg.Bin = bin
	}
	if cfg.Args == nil {
		cfg.Args = []string{"worker"}
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Launcher{
		plan:      cfg.Plan,
		bin:       cfg.Bin,
		args:      cfg.Args,
		resultDir: cfg.ResultDir,
		log:       cfg.Log.New("component", "launcher"),
		tracer:    otel.Tracer("launcher"),
	}, nil
}

// Launch spawns the whole group, waits for every rank's process to exit or
// the deadline to fire, and delivers one classification per rank to sink.
// A spawn failure is fatal to the run: no rank identities were assigned,
// so the error is returned immediately and any already-started workers are
// killed.
func (l *Launcher) Launch(ctx context.Context, sink Sink) error {
	ctx, span := l.tracer.Start(ctx, fmt.Sprintf("launch group size=%d", l.plan.GroupSize))
	defer span.End()

	// The wall-clock budget runs from the first spawn; every worker is
	// killed when it expires. Cancellation is not graceful.
	deadline := time.Now().Add(l.plan.Timeout)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	cmds := make([]*exec.Cmd, l.plan.GroupSize)
	logs := make([]*os.File, l.plan.GroupSize)
	for _, rank := range l.plan.Ranks() {
		cmd, logFile, err := l.workerCommand(runCtx, rank)
		if err == nil {
			err = cmd.Start()
		}
		if err != nil {
			cancel()
			l.reapStarted(cmds, logs, rank)
			return fmt.Errorf("spawning worker for rank %d: %w", rank, err)
		}
		cmds[rank] = cmd
		logs[rank] = logFile
		l.log.Debug("Spawned worker", "rank", rank, "pid", cmd.Process.Pid, "deadline", deadline)
	}
	l.log.Info("Worker group running", "groupSize", l.plan.GroupSize, "timeout", l.plan.Timeout)

	g := new(errgroup.Group)
	for _, rank := range l.plan.Ranks() {
		g.Go(func() error {
			defer logs[rank].Close()
			return l.reapRank(runCtx, rank, cmds[rank], sink)
		})
	}
	return g.Wait()
}

// workerCommand builds the re-exec command for one rank. The rank identity
// travels both as flags and as environment so either invocation contract
// works for the worker.
func (l *Launcher) workerCommand(ctx context.Context, rank int) (*exec.Cmd, *os.File, error) {
	args := append([]string{}, l.args...)
	args = append(args,
		"--rank", strconv.Itoa(rank),
		"--group-size", strconv.Itoa(l.plan.GroupSize),
		"--suite", l.plan.SuiteSelector,
		"--result-dir", l.resultDir,
	)
	cmd := exec.CommandContext(ctx, l.bin, args...)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("SHARDRUN_RANK=%d", rank),
		fmt.Sprintf("SHARDRUN_GROUP_SIZE=%d", l.plan.GroupSize),
		fmt.Sprintf("SHARDRUN_SUITE=%s", l.plan.SuiteSelector),
		fmt.Sprintf("SHARDRUN_RESULT_DIR=%s", l.resultDir),
	)

	logFile, err := os.Create(results.LogPath(l.resultDir, rank))
	if err != nil {
		return nil, nil, fmt.Errorf("creating worker log for rank %d: %w", rank, err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	return cmd, logFile, nil
}

// reapRank waits for one rank's process and classifies its delivery. A
// published record wins regardless of how the process exited afterwards;
// with no record, a fired deadline means the rank timed out, anything else
// is a crash, synthesized as a Crashed result with no records.
func (l *Launcher) reapRank(runCtx context.Context, rank int, cmd *exec.Cmd, sink Sink) error {
	waitErr := cmd.Wait()

	result, err := results.Read(l.resultDir, rank)
	switch {
	case err == nil:
		// An already-reported rank's late exit status is irrelevant.
		if waitErr != nil {
			l.log.Debug("Reported rank exited abnormally", "rank", rank, "error", waitErr)
		}
		return sink.Add(aggregator.Delivery{Rank: rank, Result: result})

	case !errors.Is(err, os.ErrNotExist):
		// A record exists but cannot be trusted. Inter-process input is
		// unreliable; classify the rank as crashed rather than aborting.
		l.log.Error("Discarding unreadable worker record", "rank", rank, "error", err)

	case runCtx.Err() == context.DeadlineExceeded:
		l.log.Warn("Worker timed out", "rank", rank, "timeout", l.plan.Timeout)
		return sink.Add(aggregator.Delivery{Rank: rank, TimedOut: true})

	default:
		l.log.Warn("Worker exited without reporting", "rank", rank, "error", waitErr)
	}

	synthesized := &types.WorkerResult{
		Rank:     rank,
		Outcome:  types.RankCrashed,
		Coverage: make(coverage.Map),
	}
	return sink.Add(aggregator.Delivery{Rank: rank, Result: synthesized})
}

// reapStarted kills and waits the workers spawned before a launch failure.
func (l *Launcher) reapStarted(cmds []*exec.Cmd, logs []*os.File, started int) {
	for rank := 0; rank < started; rank++ {
		if cmds[rank] != nil {
			_ = cmds[rank].Wait()
		}
		if logs[rank] != nil {
			logs[rank].Close()
		}
	}
}
