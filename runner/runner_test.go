package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardrun/shardrun/coverage"
	"github.com/shardrun/shardrun/suite"
	"github.com/shardrun/shardrun/types"
)

func init() {
	suite.Register("runner-test-mixed", []suite.Case{
		{Name: "TestPasses", Fn: func(ctx context.Context, cov *coverage.Recorder) error {
			cov.Hit("mixed/pass.go", 1, 1)
			return nil
		}},
		{Name: "TestFails", Fn: func(ctx context.Context, cov *coverage.Recorder) error {
			cov.Hit("mixed/fail.go", 2, 1)
			return errors.New("assertion went wrong")
		}},
		{Name: "TestPanics", Fn: func(ctx context.Context, cov *coverage.Recorder) error {
			panic("boom")
		}},
		{Name: "TestAfterPanic", Fn: func(ctx context.Context, cov *coverage.Recorder) error {
			cov.Hit("mixed/after.go", 3, 1)
			return nil
		}},
	})

	suite.Register("runner-test-ansi", []suite.Case{
		{Name: "TestColoredFailure", Fn: func(ctx context.Context, cov *coverage.Recorder) error {
			return fmt.Errorf("\x1b[31mexpected 1, got 2\x1b[0m")
		}},
	})

	suite.Register("runner-test-clean", []suite.Case{
		{Name: "TestOne", Fn: func(ctx context.Context, cov *coverage.Recorder) error {
			cov.Hit("clean/one.go", 1, 2)
			return nil
		}},
		{Name: "TestTwo", Fn: func(ctx context.Context, cov *coverage.Recorder) error {
			cov.Hit("clean/one.go", 1, 1)
			cov.Hit("clean/two.go", 9, 1)
			return nil
		}},
	})
}

func TestNewValidatesRankIdentity(t *testing.T) {
	tests := []struct {
		name      string
		rank      int
		groupSize int
		selector  string
		wantErr   bool
	}{
		{name: "valid", rank: 0, groupSize: 1, selector: "runner-test-clean"},
		{name: "negative rank", rank: -1, groupSize: 2, selector: "x", wantErr: true},
		{name: "rank beyond group", rank: 2, groupSize: 2, selector: "x", wantErr: true},
		{name: "zero group", rank: 0, groupSize: 0, selector: "x", wantErr: true},
		{name: "no selector", rank: 0, groupSize: 1, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(Config{Selector: tc.selector, Rank: tc.rank, GroupSize: tc.groupSize})
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunIsolatesFailuresAndPanics(t *testing.T) {
	r, err := New(Config{Selector: "runner-test-mixed", Rank: 0, GroupSize: 1})
	require.NoError(t, err)

	result := r.Run(context.Background())
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Rank)
	assert.Equal(t, types.RankErrored, result.Outcome)
	require.Len(t, result.Records, 4)

	byName := make(map[string]types.TestRecord)
	for _, rec := range result.Records {
		byName[rec.Name] = rec
	}
	assert.Equal(t, types.TestStatusPass, byName["TestPasses"].Status)
	assert.Equal(t, types.TestStatusFail, byName["TestFails"].Status)
	assert.Contains(t, byName["TestFails"].FailureDetail, "assertion went wrong")
	assert.Equal(t, types.TestStatusError, byName["TestPanics"].Status)
	assert.Contains(t, byName["TestPanics"].FailureDetail, "boom")

	// A panicking test must not abort the rest of the partition.
	assert.Equal(t, types.TestStatusPass, byName["TestAfterPanic"].Status)
	assert.Equal(t, uint64(1), result.Coverage[coverage.Key{File: "mixed/after.go", Line: 3}])
}

func TestRunRecordsExecutionOrder(t *testing.T) {
	r, err := New(Config{Selector: "runner-test-mixed", Rank: 0, GroupSize: 1})
	require.NoError(t, err)

	result := r.Run(context.Background())
	names := make([]string, 0, len(result.Records))
	for _, rec := range result.Records {
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{"TestPasses", "TestFails", "TestPanics", "TestAfterPanic"}, names)
}

func TestRunUnknownSuiteIsCrashed(t *testing.T) {
	r, err := New(Config{Selector: "runner-test-does-not-exist", Rank: 0, GroupSize: 1})
	require.NoError(t, err)

	result := r.Run(context.Background())
	require.NotNil(t, result)
	assert.Equal(t, types.RankCrashed, result.Outcome)
	assert.Empty(t, result.Records)
}

func TestRunAccumulatesCoverage(t *testing.T) {
	r, err := New(Config{Selector: "runner-test-clean", Rank: 0, GroupSize: 1})
	require.NoError(t, err)

	result := r.Run(context.Background())
	assert.Equal(t, types.RankPassed, result.Outcome)
	assert.Equal(t, uint64(3), result.Coverage[coverage.Key{File: "clean/one.go", Line: 1}])
	assert.Equal(t, uint64(1), result.Coverage[coverage.Key{File: "clean/two.go", Line: 9}])
}

func TestRunStripsANSIFromFailureDetail(t *testing.T) {
	r, err := New(Config{Selector: "runner-test-ansi", Rank: 0, GroupSize: 1})
	require.NoError(t, err)

	result := r.Run(context.Background())
	require.Len(t, result.Records, 1)
	assert.Equal(t, "expected 1, got 2", result.Records[0].FailureDetail)
}

func TestRunPartitionedRanksCoverFullSuite(t *testing.T) {
	const groupSize = 3
	total := 0
	for rank := 0; rank < groupSize; rank++ {
		r, err := New(Config{Selector: "runner-test-mixed", Rank: rank, GroupSize: groupSize})
		require.NoError(t, err)
		result := r.Run(context.Background())
		assert.Equal(t, rank, result.Rank)
		total += len(result.Records)
	}
	assert.Equal(t, 4, total)
}
