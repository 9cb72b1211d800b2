// Package results implements the result channel between worker processes
// and the aggregator. Each rank writes exactly one JSON record to its own
// file inside the run directory; the write becomes visible atomically via
// rename, so the coordinator observes either a complete record or none.
// Delivery for each rank is independent of every other rank.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shardrun/shardrun/types"
)

// Path returns the result file location for a rank within dir.
func Path(dir string, rank int) string {
	return filepath.Join(dir, fmt.Sprintf("result-%d.json", rank))
}

// LogPath returns the captured stdout/stderr location for a rank's
// worker process within dir.
func LogPath(dir string, rank int) string {
	return filepath.Join(dir, fmt.Sprintf("rank-%d.log", rank))
}

// Write stores a rank's WorkerResult in dir. The record is marshaled to a
// temporary file in the same directory and renamed into place, giving
// at-most-once visibility: a rank killed mid-write leaves no record. Each
// rank publishes at most one record per run.
func Write(dir string, result *types.WorkerResult) error {
	if Exists(dir, result.Rank) {
		return fmt.Errorf("rank %d already published a result", result.Rank)
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling worker result: %w", err)
	}

	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".result-%d-*", result.Rank))
	if err != nil {
		return fmt.Errorf("creating temp result file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing worker result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp result file: %w", err)
	}
	if err := os.Rename(tmp.Name(), Path(dir, result.Rank)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publishing worker result: %w", err)
	}
	return nil
}

// Read loads the WorkerResult reported by rank, if any. A missing file
// returns os.ErrNotExist; the caller decides how to classify the absence.
func Read(dir string, rank int) (*types.WorkerResult, error) {
	data, err := os.ReadFile(Path(dir, rank))
	if err != nil {
		return nil, err
	}
	var result types.WorkerResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing result for rank %d: %w", rank, err)
	}
	if result.Rank != rank {
		return nil, fmt.Errorf("result file for rank %d reports rank %d", rank, result.Rank)
	}
	return &result, nil
}

// Exists reports whether rank has published a record in dir.
func Exists(dir string, rank int) bool {
	_, err := os.Stat(Path(dir, rank))
	return err == nil
}
