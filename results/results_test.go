package results

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardrun/shardrun/coverage"
	"github.com/shardrun/shardrun/types"
)

func sampleResult(rank int) *types.WorkerResult {
	return &types.WorkerResult{
		Rank:    rank,
		Outcome: types.RankPassed,
		Records: []types.TestRecord{
			{Name: "TestA", Status: types.TestStatusPass, Duration: 12 * time.Millisecond},
			{Name: "TestB", Status: types.TestStatusFail, Duration: 3 * time.Millisecond, FailureDetail: "nope"},
		},
		Coverage: coverage.Map{
			{File: "a.go", Line: 10}: 2,
		},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := sampleResult(3)

	require.NoError(t, Write(dir, want))
	got, err := Read(dir, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRecordOrderSurvivesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := &types.WorkerResult{
		Rank:    0,
		Outcome: types.RankPassed,
		Records: []types.TestRecord{
			{Name: "TestZ", Status: types.TestStatusPass},
			{Name: "TestA", Status: types.TestStatusPass},
			{Name: "TestM", Status: types.TestStatusPass},
		},
		Coverage: coverage.Map{},
	}
	require.NoError(t, Write(dir, want))

	got, err := Read(dir, 0)
	require.NoError(t, err)
	names := []string{got.Records[0].Name, got.Records[1].Name, got.Records[2].Name}
	assert.Equal(t, []string{"TestZ", "TestA", "TestM"}, names)
}

func TestReadMissingRank(t *testing.T) {
	dir := t.TempDir()
	_, err := Read(dir, 0)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadRejectsRankMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, sampleResult(1)))

	// Copy rank 1's record into rank 2's slot to simulate a confused worker.
	data, err := os.ReadFile(Path(dir, 1))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(Path(dir, 2), data, 0o644))

	_, err = Read(dir, 2)
	assert.Error(t, err)
}

func TestReadRejectsCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir, 0), []byte("{not json"), 0o644))

	_, err := Read(dir, 0)
	require.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrNotExist))
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, sampleResult(0)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(Path(dir, 0)), entries[0].Name())
}

func TestWriteRejectsSecondPublish(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, sampleResult(0)))

	err := Write(dir, sampleResult(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already published")

	// The first record is untouched.
	got, err := Read(dir, 0)
	require.NoError(t, err)
	assert.Equal(t, sampleResult(0), got)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, Exists(dir, 0))
	require.NoError(t, Write(dir, sampleResult(0)))
	assert.True(t, Exists(dir, 0))
}

func TestRanksAreIndependent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, sampleResult(0)))

	// Rank 1 never reporting does not affect rank 0's delivery.
	got, err := Read(dir, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Rank)
	_, err = Read(dir, 1)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
