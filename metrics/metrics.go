package metrics

import (
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shardrun/shardrun/types"
)

const (
	MetricsNamespace = "shardrun"
)

var (
	Debug         bool = true
	validOutcomes      = []types.RankOutcome{
		types.RankPassed, types.RankFailed, types.RankErrored,
		types.RankTimedOut, types.RankCrashed,
	}

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	rankResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "rank_results_total",
		Help:      "Count of per-rank results",
	}, []string{
		"run_id",
		"rank",
		"outcome",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Verdict of harness runs",
	}, []string{
		"run_id",
		"verdict",
	})

	runTestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_total",
		Help:      "Total number of tests executed across all ranks",
	}, []string{
		"run_id",
	})

	runTestFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_failed",
		Help:      "Number of failed or errored tests across all ranks",
	}, []string{
		"run_id",
	})

	runCoveredLines = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_covered_lines",
		Help:      "Distinct source lines covered by the merged coverage map",
	}, []string{
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of harness runs",
	}, []string{
		"run_id",
	})
)

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

func RecordRankResult(runID string, rank string, outcome types.RankOutcome) {
	if !isValidOutcome(outcome) {
		log.Error("RecordRankResult - invalid outcome", "outcome", outcome)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "rank_results_total",
			"run_id", runID,
			"rank", rank,
			"outcome", outcome)
	}
	rankResultsTotal.WithLabelValues(runID, rank, string(outcome)).Inc()
}

func RecordRun(
	runID string,
	verdict types.Verdict,
	total int,
	failed int,
	coveredLines int,
	duration time.Duration,
) {
	runResults.WithLabelValues(runID, string(verdict)).Set(1)
	runTestTotal.WithLabelValues(runID).Add(float64(total))
	runTestFailed.WithLabelValues(runID).Add(float64(failed))
	runCoveredLines.WithLabelValues(runID).Set(float64(coveredLines))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidOutcome(outcome types.RankOutcome) bool {
	return slices.Contains(validOutcomes, outcome)
}
