// Package aggregator collects per-rank deliveries into one sealed
// AggregateReport: the merged coverage map, the received/missing rank
// classification, and the binary verdict for the run.
package aggregator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/shardrun/shardrun/coverage"
	"github.com/shardrun/shardrun/types"
)

// Delivery is one rank's contribution arriving over the result channel.
// Result is nil when the rank never reported; TimedOut marks an absence
// caused by the group deadline rather than an abnormal exit.
type Delivery struct {
	Rank     int
	Result   *types.WorkerResult
	TimedOut bool
}

// Report is the sealed aggregate of one run. Once sealed, every expected
// rank appears in exactly one of Received or MissingRanks, and Merged
// covers the union of all received coverage keys.
type Report struct {
	ExpectedRanks []int
	Received      map[int]*types.WorkerResult
	MissingRanks  []int
	TimedOut      map[int]bool
	Merged        coverage.Map
	Verdict       types.Verdict
}

// Aggregator accumulates deliveries until Seal. It is safe for concurrent
// Add calls from up to groupSize senders; ranks are independent keys so no
// cross-rank coordination is needed beyond the insertion lock.
type Aggregator struct {
	mu        sync.Mutex
	groupSize int
	received  map[int]*types.WorkerResult
	timedOut  map[int]bool
	sealed    bool
	log       log.Logger
}

// New seeds an aggregator expecting ranks {0 .. groupSize-1}.
func New(groupSize int, logger log.Logger) (*Aggregator, error) {
	if groupSize < 1 {
		return nil, fmt.Errorf("group size must be at least 1, got %d", groupSize)
	}
	if logger == nil {
		logger = log.New()
	}
	return &Aggregator{
		groupSize: groupSize,
		received:  make(map[int]*types.WorkerResult, groupSize),
		timedOut:  make(map[int]bool),
		log:       logger.New("component", "aggregator"),
	}, nil
}

// Add inserts one rank's delivery. Each rank reports at most once; a
// duplicate delivery or an out-of-range rank is rejected.
func (a *Aggregator) Add(d Delivery) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		return fmt.Errorf("aggregate report already sealed, rejecting delivery for rank %d", d.Rank)
	}
	if d.Rank < 0 || d.Rank >= a.groupSize {
		return fmt.Errorf("rank %d out of range [0, %d)", d.Rank, a.groupSize)
	}
	if _, dup := a.received[d.Rank]; dup || a.timedOut[d.Rank] {
		return fmt.Errorf("rank %d already delivered", d.Rank)
	}

	if d.Result == nil {
		a.timedOut[d.Rank] = d.TimedOut
		a.log.Warn("Rank absent", "rank", d.Rank, "timedOut", d.TimedOut)
		return nil
	}
	if d.Result.Rank != d.Rank {
		return fmt.Errorf("delivery for rank %d carries result for rank %d", d.Rank, d.Result.Rank)
	}
	a.received[d.Rank] = d.Result
	a.log.Debug("Rank delivered", "rank", d.Rank, "outcome", d.Result.Outcome)
	return nil
}

// Seal finalizes the report: every rank without a received result is
// classified missing, coverage is merged across received results, and the
// verdict is computed. Seal is idempotent; the first call wins.
func (a *Aggregator) Seal() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sealed = true
	report := &Report{
		ExpectedRanks: make([]int, a.groupSize),
		Received:      make(map[int]*types.WorkerResult, len(a.received)),
		TimedOut:      make(map[int]bool),
		Merged:        make(coverage.Map),
	}
	for rank := 0; rank < a.groupSize; rank++ {
		report.ExpectedRanks[rank] = rank
		if result, ok := a.received[rank]; ok {
			report.Received[rank] = result
			continue
		}
		report.MissingRanks = append(report.MissingRanks, rank)
		report.TimedOut[rank] = a.timedOut[rank]
	}
	sort.Ints(report.MissingRanks)

	// Merge order cannot matter, but iterate ranks in order anyway so the
	// merge is trivially reproducible under inspection.
	for rank := 0; rank < a.groupSize; rank++ {
		if result, ok := report.Received[rank]; ok {
			report.Merged.Merge(result.Coverage)
		}
	}

	report.Verdict = computeVerdict(report)
	a.log.Info("Report sealed",
		"received", len(report.Received),
		"missing", len(report.MissingRanks),
		"coveredLines", report.Merged.Lines(),
		"verdict", report.Verdict)
	return report
}

// computeVerdict applies the gate rule: success requires a full set of
// clean ranks. A single missing or non-passed rank fails the run.
func computeVerdict(r *Report) types.Verdict {
	if len(r.MissingRanks) > 0 {
		return types.VerdictFailure
	}
	for _, result := range r.Received {
		if !result.Clean() {
			return types.VerdictFailure
		}
	}
	return types.VerdictSuccess
}

// Stats sums the per-rank record tallies across received results.
func (r *Report) Stats() types.Stats {
	var s types.Stats
	for _, result := range r.Received {
		rs := result.Stats()
		s.Total += rs.Total
		s.Passed += rs.Passed
		s.Failed += rs.Failed
		s.Errored += rs.Errored
	}
	return s
}
