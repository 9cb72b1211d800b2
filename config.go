package shardrun

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/shardrun/shardrun/flags"
	"github.com/shardrun/shardrun/types"
)

// Config holds the coordinator configuration
type Config struct {
	Plan        types.GroupPlan
	OutDir      string        // Directory for per-run results and artifacts
	CoverageOut string        // Coverage artifact file name within the run directory
	RunInterval time.Duration // Interval between runs
	RunOnce     bool          // Indicates if the harness should exit after one run
	Log         log.Logger
}

// NewConfig creates a new Config from cli context. The optional plan file
// is read first and individual flags override its fields.
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	plan := types.GroupPlan{Timeout: flags.DefaultTimeout}

	if planPath := ctx.String(flags.Plan.Name); planPath != "" {
		loaded, err := loadPlanFile(planPath)
		if err != nil {
			return nil, err
		}
		plan = loaded
		if plan.Timeout == 0 {
			plan.Timeout = flags.DefaultTimeout
		}
	}

	if ctx.IsSet(flags.GroupSize.Name) {
		plan.GroupSize = ctx.Int(flags.GroupSize.Name)
	}
	if ctx.IsSet(flags.Timeout.Name) {
		plan.Timeout = ctx.Duration(flags.Timeout.Name)
	}
	if ctx.IsSet(flags.Suite.Name) {
		plan.SuiteSelector = ctx.String(flags.Suite.Name)
	}

	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid group plan: %w", err)
	}

	outDir, err := filepath.Abs(ctx.String(flags.OutDir.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for out directory '%s': %w", ctx.String(flags.OutDir.Name), err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)

	return &Config{
		Plan:        plan,
		OutDir:      outDir,
		CoverageOut: ctx.String(flags.CoverageOut.Name),
		RunInterval: runInterval,
		RunOnce:     runInterval == 0,
		Log:         logger,
	}, nil
}

// loadPlanFile reads a GroupPlan from a YAML file.
func loadPlanFile(path string) (types.GroupPlan, error) {
	var plan types.GroupPlan
	data, err := os.ReadFile(path)
	if err != nil {
		return plan, fmt.Errorf("reading plan file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return plan, fmt.Errorf("parsing plan file %s: %w", path, err)
	}
	return plan, nil
}
