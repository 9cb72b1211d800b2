package shardrun

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLaunchErrorClassification(t *testing.T) {
	base := errors.New("exec: no such file")
	err := NewLaunchError(base)

	assert.True(t, IsLaunchError(err))
	assert.False(t, IsRunFailureError(err))
	assert.True(t, errors.Is(err, base), "LaunchError must unwrap to its cause")

	wrapped := fmt.Errorf("starting group: %w", err)
	assert.True(t, IsLaunchError(wrapped))
}

func TestRunFailureErrorClassification(t *testing.T) {
	err := NewRunFailureError("1/2 ranks reported, 1 missing")

	assert.True(t, IsRunFailureError(err))
	assert.False(t, IsLaunchError(err))
	assert.Contains(t, err.Error(), "1 missing")
}

func TestNilErrorClassification(t *testing.T) {
	assert.False(t, IsLaunchError(nil))
	assert.False(t, IsRunFailureError(nil))
}
