package shardrun

import (
	"errors"
	"fmt"
)

// LaunchError represents a failure to start the worker group at all and
// leads to exit code 2. No rank identity was assigned, so there is no
// per-rank outcome to report.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *LaunchError) Unwrap() error {
	return e.Err
}

// NewLaunchError creates a new LaunchError
func NewLaunchError(err error) *LaunchError {
	return &LaunchError{Err: err}
}

// IsLaunchError checks if the error is or wraps a LaunchError
func IsLaunchError(err error) bool {
	var launchErr *LaunchError
	return err != nil && errors.As(err, &launchErr)
}

// RunFailureError represents a run whose verdict is Failure (exit code 1):
// one or more ranks failed, errored, crashed, timed out, or never reported.
type RunFailureError struct {
	Message string
}

func (e *RunFailureError) Error() string {
	return fmt.Sprintf("run failure: %s", e.Message)
}

// NewRunFailureError creates a new RunFailureError
func NewRunFailureError(message string) *RunFailureError {
	return &RunFailureError{Message: message}
}

// IsRunFailureError checks if the error is or wraps a RunFailureError
func IsRunFailureError(err error) bool {
	var runErr *RunFailureError
	return err != nil && errors.As(err, &runErr)
}
