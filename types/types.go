package types

import (
	"fmt"
	"time"

	"github.com/shardrun/shardrun/coverage"
)

// TestStatus represents the possible states of a single test execution
type TestStatus string

const (
	TestStatusPass  TestStatus = "pass"
	TestStatusFail  TestStatus = "fail"
	TestStatusError TestStatus = "error"
)

// RankOutcome represents the overall state of one worker process
type RankOutcome string

const (
	RankPassed   RankOutcome = "passed"
	RankFailed   RankOutcome = "failed"
	RankErrored  RankOutcome = "errored"
	RankTimedOut RankOutcome = "timedout"
	RankCrashed  RankOutcome = "crashed"
)

// Verdict is the binary result of one complete run. A CI gate is binary:
// there is no partial-success state.
type Verdict string

const (
	VerdictSuccess Verdict = "success"
	VerdictFailure Verdict = "failure"
)

// TestRecord captures the outcome of a single test run by one rank.
// Records appear in a WorkerResult in the rank's execution order and
// that order is preserved through serialization.
type TestRecord struct {
	Name          string        `json:"name"`
	Status        TestStatus    `json:"status"`
	Duration      time.Duration `json:"duration"`
	FailureDetail string        `json:"failureDetail,omitempty"`
}

// WorkerResult is the single structured record a rank produces.
// It is immutable once built: the rank owns it until it is handed to the
// result channel, after which it belongs to the aggregator.
type WorkerResult struct {
	Rank     int          `json:"rank"`
	Outcome  RankOutcome  `json:"outcome"`
	Records  []TestRecord `json:"records"`
	Coverage coverage.Map `json:"coverage"`
}

// Stats counts a WorkerResult's test records by status.
type Stats struct {
	Total   int
	Passed  int
	Failed  int
	Errored int
}

// Stats tallies the result's records.
func (w *WorkerResult) Stats() Stats {
	var s Stats
	for _, rec := range w.Records {
		s.Total++
		switch rec.Status {
		case TestStatusPass:
			s.Passed++
		case TestStatusFail:
			s.Failed++
		case TestStatusError:
			s.Errored++
		}
	}
	return s
}

// Duration sums the durations of the result's records.
func (w *WorkerResult) Duration() time.Duration {
	var d time.Duration
	for _, rec := range w.Records {
		d += rec.Duration
	}
	return d
}

// Clean returns true when the rank passed and no individual record
// failed or errored.
func (w *WorkerResult) Clean() bool {
	if w.Outcome != RankPassed {
		return false
	}
	for _, rec := range w.Records {
		if rec.Status != TestStatusPass {
			return false
		}
	}
	return true
}

// GroupPlan fixes the shape of one run: how many worker processes to
// launch, the wall-clock budget for the whole group, and which suite the
// group executes. It is created once from pipeline input and read-only
// thereafter.
type GroupPlan struct {
	GroupSize     int           `yaml:"group_size"`
	Timeout       time.Duration `yaml:"timeout"`
	SuiteSelector string        `yaml:"suite"`
}

// Validate checks the plan's bounds.
func (p GroupPlan) Validate() error {
	if p.GroupSize < 1 {
		return fmt.Errorf("group size must be at least 1, got %d", p.GroupSize)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", p.Timeout)
	}
	if p.SuiteSelector == "" {
		return fmt.Errorf("suite selector is required")
	}
	return nil
}

// Ranks returns the expected rank set {0 .. GroupSize-1}.
func (p GroupPlan) Ranks() []int {
	ranks := make([]int, p.GroupSize)
	for i := range ranks {
		ranks[i] = i
	}
	return ranks
}
