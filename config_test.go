package shardrun

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/shardrun/shardrun/flags"
)

// buildConfig runs NewConfig through a real cli invocation so flag and
// env handling behave exactly as in production.
func buildConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var cfg *Config
	var cfgErr error

	app := cli.NewApp()
	app.Flags = flags.RunFlags
	app.Action = func(ctx *cli.Context) error {
		cfg, cfgErr = NewConfig(ctx, log.New())
		return nil
	}
	require.NoError(t, app.Run(append([]string{"shardrun"}, args...)))
	return cfg, cfgErr
}

func TestNewConfigFromFlags(t *testing.T) {
	cfg, err := buildConfig(t,
		"--group-size", "4",
		"--timeout", "2m",
		"--suite", "smoke",
	)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Plan.GroupSize)
	assert.Equal(t, 2*time.Minute, cfg.Plan.Timeout)
	assert.Equal(t, "smoke", cfg.Plan.SuiteSelector)
	assert.True(t, cfg.RunOnce)
	assert.True(t, filepath.IsAbs(cfg.OutDir))
}

func TestNewConfigDefaultsTimeout(t *testing.T) {
	cfg, err := buildConfig(t, "--group-size", "1", "--suite", "smoke")
	require.NoError(t, err)
	assert.Equal(t, flags.DefaultTimeout, cfg.Plan.Timeout)
}

func TestNewConfigRequiresPlanFields(t *testing.T) {
	_, err := buildConfig(t, "--suite", "smoke")
	assert.Error(t, err, "missing group size must be rejected")

	_, err = buildConfig(t, "--group-size", "2")
	assert.Error(t, err, "missing suite selector must be rejected")
}

func TestNewConfigFromPlanFile(t *testing.T) {
	planPath := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(
		"group_size: 3\ntimeout: 90s\nsuite: smoke\n"), 0o644))

	cfg, err := buildConfig(t, "--plan", planPath)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Plan.GroupSize)
	assert.Equal(t, 90*time.Second, cfg.Plan.Timeout)
	assert.Equal(t, "smoke", cfg.Plan.SuiteSelector)
}

func TestNewConfigFlagsOverridePlanFile(t *testing.T) {
	planPath := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(
		"group_size: 3\ntimeout: 90s\nsuite: smoke\n"), 0o644))

	cfg, err := buildConfig(t, "--plan", planPath, "--group-size", "8")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Plan.GroupSize)
	assert.Equal(t, 90*time.Second, cfg.Plan.Timeout)
}

func TestNewConfigRejectsBadPlanFile(t *testing.T) {
	planPath := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte("group_size: [broken"), 0o644))

	_, err := buildConfig(t, "--plan", planPath)
	assert.Error(t, err)
}

func TestNewConfigIntervalMode(t *testing.T) {
	cfg, err := buildConfig(t,
		"--group-size", "1",
		"--suite", "smoke",
		"--run-interval", "30m",
	)
	require.NoError(t, err)
	assert.False(t, cfg.RunOnce)
	assert.Equal(t, 30*time.Minute, cfg.RunInterval)
}
