// Package reporter renders a sealed aggregate report for the invoking
// pipeline: a per-rank summary table, the coverage summary, an explicit
// listing of missing ranks, the serialized coverage artifact, and the
// process exit code.
package reporter

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/shardrun/shardrun/aggregator"
	"github.com/shardrun/shardrun/exitcodes"
	"github.com/shardrun/shardrun/types"
)

// Print writes the human-readable run summary to w. Whatever partial
// information exists is always printed, even when ranks are missing.
func Print(w io.Writer, report *aggregator.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Distributed Test Results (%d ranks)", len(report.ExpectedRanks)))

	t.AppendHeader(table.Row{
		"Rank", "Outcome", "Tests", "Passed", "Failed", "Errored", "Duration",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Rank", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Errored", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
	})

	for _, rank := range report.ExpectedRanks {
		if result, ok := report.Received[rank]; ok {
			stats := result.Stats()
			t.AppendRow(table.Row{
				rank,
				outcomeString(result.Outcome),
				stats.Total,
				stats.Passed,
				stats.Failed,
				stats.Errored,
				formatDuration(result.Duration()),
			})
			continue
		}
		reason := "missing"
		if report.TimedOut[rank] {
			reason = "timed out"
		}
		t.AppendRow(table.Row{rank, "✗ " + reason, "-", "-", "-", "-", "-"})
	}

	stats := report.Stats()
	t.AppendFooter(table.Row{
		"TOTAL",
		verdictString(report.Verdict),
		stats.Total,
		stats.Passed,
		stats.Failed,
		stats.Errored,
		"",
	})

	if report.Verdict == types.VerdictSuccess {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	t.Render()

	fmt.Fprintf(w, "Coverage: %d/%d lines covered\n",
		report.Merged.Covered(), report.Merged.Lines())

	if len(report.MissingRanks) > 0 {
		fmt.Fprintf(w, "Missing ranks: %v\n", report.MissingRanks)
	}

	for _, rank := range report.ExpectedRanks {
		result, ok := report.Received[rank]
		if !ok {
			continue
		}
		for _, rec := range result.Records {
			if rec.Status == types.TestStatusPass || rec.FailureDetail == "" {
				continue
			}
			fmt.Fprintf(w, "--- rank %d %s: %s ---\n%s\n", rank, rec.Status, rec.Name, rec.FailureDetail)
		}
	}
}

// WriteCoverageArtifact serializes the merged coverage map to path in the
// round-trippable line format.
func WriteCoverageArtifact(path string, report *aggregator.Report) error {
	if err := report.Merged.WriteFile(path); err != nil {
		return fmt.Errorf("writing coverage artifact %s: %w", path, err)
	}
	return nil
}

// ExitCode maps the sealed report's verdict to the pipeline contract.
// Launch errors never reach here: they abort before a report exists.
func ExitCode(report *aggregator.Report) int {
	if report.Verdict == types.VerdictSuccess {
		return exitcodes.Success
	}
	return exitcodes.RunFailure
}

// PrintStdout renders the summary to standard output.
func PrintStdout(report *aggregator.Report) {
	Print(os.Stdout, report)
}

func outcomeString(outcome types.RankOutcome) string {
	if outcome == types.RankPassed {
		return "✓ " + string(outcome)
	}
	return "✗ " + string(outcome)
}

func verdictString(v types.Verdict) string {
	if v == types.VerdictSuccess {
		return "✓ success"
	}
	return "✗ failure"
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
