package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "SHARDRUN"

func prefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

// Coordinator flags for the run command.
var (
	GroupSize = &cli.IntFlag{
		Name:    "group-size",
		Value:   0,
		EnvVars: prefixEnvVar("GROUP_SIZE"),
		Usage:   "Number of worker processes in the group",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: prefixEnvVar("TIMEOUT"),
		Usage:   "Wall-clock budget for the whole worker group (e.g. '5m')",
	}
	Suite = &cli.StringFlag{
		Name:    "suite",
		Value:   "",
		EnvVars: prefixEnvVar("SUITE"),
		Usage:   "Suite selector naming the test subset to run",
	}
	Plan = &cli.StringFlag{
		Name:    "plan",
		Value:   "",
		EnvVars: prefixEnvVar("PLAN"),
		Usage:   "Path to a group plan file (eg. 'plan.yaml'); flags override its fields",
	}
	OutDir = &cli.StringFlag{
		Name:    "out-dir",
		Value:   "runs",
		EnvVars: prefixEnvVar("OUT_DIR"),
		Usage:   "Directory for per-run results and the merged coverage artifact",
	}
	CoverageOut = &cli.StringFlag{
		Name:    "coverage-out",
		Value:   "coverage.out",
		EnvVars: prefixEnvVar("COVERAGE_OUT"),
		Usage:   "File name of the merged coverage artifact inside the run directory",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVar("RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
		Usage:   "Log level (trace, debug, info, warn, error, crit)",
	}
)

// Worker flags for the internal worker command.
var (
	Rank = &cli.IntFlag{
		Name:    "rank",
		Value:   -1,
		EnvVars: prefixEnvVar("RANK"),
		Usage:   "This worker's rank within the group",
	}
	WorkerGroupSize = &cli.IntFlag{
		Name:    "group-size",
		Value:   0,
		EnvVars: prefixEnvVar("GROUP_SIZE"),
		Usage:   "Total number of workers in the group",
	}
	WorkerSuite = &cli.StringFlag{
		Name:    "suite",
		Value:   "",
		EnvVars: prefixEnvVar("SUITE"),
		Usage:   "Suite selector naming the test subset to run",
	}
	ResultDir = &cli.StringFlag{
		Name:    "result-dir",
		Value:   "",
		EnvVars: prefixEnvVar("RESULT_DIR"),
		Usage:   "Directory to publish this rank's result record into",
	}
)

var RunFlags = []cli.Flag{
	GroupSize,
	Timeout,
	Suite,
	Plan,
	OutDir,
	CoverageOut,
	RunInterval,
	LogLevel,
}

var WorkerFlags = []cli.Flag{
	Rank,
	WorkerGroupSize,
	WorkerSuite,
	ResultDir,
	LogLevel,
}

var workerRequired = []cli.Flag{
	Rank,
	WorkerGroupSize,
	WorkerSuite,
	ResultDir,
}

// CheckWorkerRequired verifies the per-rank invocation contract.
func CheckWorkerRequired(ctx *cli.Context) error {
	for _, f := range workerRequired {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}

// DefaultTimeout bounds a run when neither the plan file nor the timeout
// flag sets a budget.
const DefaultTimeout = 10 * time.Minute
