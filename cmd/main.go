package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	shardrun "github.com/shardrun/shardrun"
	"github.com/shardrun/shardrun/exitcodes"
	"github.com/shardrun/shardrun/flags"
	"github.com/shardrun/shardrun/results"
	"github.com/shardrun/shardrun/runner"
	"github.com/shardrun/shardrun/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "shardrun"
	app.Usage = "Distributed test execution and coverage aggregation harness"
	app.Description = "shardrun runs a test suite across a fixed-size group of worker processes and merges their results"
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "Launch the worker group, aggregate results, and report the verdict",
			Flags:  flags.RunFlags,
			Action: runCoordinator,
		},
		{
			Name:   "worker",
			Usage:  "Internal per-rank entrypoint spawned by the launcher",
			Hidden: true,
			Flags:  flags.WorkerFlags,
			Action: runWorker,
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Map typed run errors to the pipeline exit-code contract
			if shardrun.IsLaunchError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.LaunchErr))
			} else if shardrun.IsRunFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RunFailure))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RunFailure))
			}
		}
	}

	if err := app.Run(os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

// runCoordinator is the action for the run command.
func runCoordinator(ctx *cli.Context) error {
	logger := newLogger(ctx.String(flags.LogLevel.Name))

	// Start telemetry
	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName("shardrun"),
		otelconfig.WithServiceVersion(Version),
	)
	if err != nil {
		logger.Warn("Failed to setup open telemetry", "message", err)
	} else {
		defer shutdown()
	}

	cfg, err := shardrun.NewConfig(ctx, logger)
	if err != nil {
		return shardrun.NewLaunchError(fmt.Errorf("failed to create config: %w", err))
	}

	// Healthz and metrics servers for long-lived (interval) deployments
	svc := service.New()
	svc.Start(ctx.Context)
	defer svc.Shutdown()

	harness, err := shardrun.New(cfg, Version)
	if err != nil {
		return shardrun.NewLaunchError(fmt.Errorf("failed to create harness: %w", err))
	}
	return harness.Run(ctx.Context)
}

// runWorker is the action for the internal worker command. It produces
// exactly one structured record (or none, if publishing fails) and exits.
func runWorker(ctx *cli.Context) error {
	logger := newLogger(ctx.String(flags.LogLevel.Name))
	if err := flags.CheckWorkerRequired(ctx); err != nil {
		return fmt.Errorf("missing required flags: %w", err)
	}

	r, err := runner.New(runner.Config{
		Selector:  ctx.String(flags.WorkerSuite.Name),
		Rank:      ctx.Int(flags.Rank.Name),
		GroupSize: ctx.Int(flags.WorkerGroupSize.Name),
		Log:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating rank runner: %w", err)
	}

	result := r.Run(ctx.Context)
	if err := results.Write(ctx.String(flags.ResultDir.Name), result); err != nil {
		return fmt.Errorf("publishing worker result: %w", err)
	}
	return nil
}

// newLogger builds the harness logger with a terminal handler at the
// requested level, defaulting to info on unknown input.
func newLogger(level string) log.Logger {
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, levelFromString(level), false))
	log.SetDefault(logger)
	return logger
}

func levelFromString(level string) slog.Level {
	switch level {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	case "crit":
		return log.LevelCrit
	default:
		return log.LevelInfo
	}
}
