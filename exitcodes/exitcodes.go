// Package exitcodes defines the standard exit codes used by shardrun.
package exitcodes

// Exit code constants used by shardrun
// These constants define the exit codes that the harness uses to report
// the result of one complete run to the invoking pipeline:
//
// * Success (0): Used when every rank reported and every test passed
// * RunFailure (1): Used when one or more ranks failed, errored, crashed,
//   timed out, or never reported
// * LaunchErr (2): Used when the worker group could not be started at all
const (
	Success    = 0 // All ranks reported and passed
	RunFailure = 1 // Test failures or missing ranks
	LaunchErr  = 2 // Harness could not start the worker group
)
