package suite

import (
	"context"
	"fmt"

	"github.com/shardrun/shardrun/coverage"
)

// The smoke suite ships with the binary so a fresh install can exercise
// the full launch/aggregate path without user-registered suites.
func init() {
	Register("smoke", []Case{
		{Name: "TestHarnessRoundTrip", Fn: func(ctx context.Context, cov *coverage.Recorder) error {
			cov.Hit("smoke/roundtrip.go", 10, 1)
			cov.Hit("smoke/roundtrip.go", 11, 1)
			return nil
		}},
		{Name: "TestCoverageAccumulates", Fn: func(ctx context.Context, cov *coverage.Recorder) error {
			for i := 0; i < 3; i++ {
				cov.Hit("smoke/accumulate.go", 20, 1)
			}
			return nil
		}},
		{Name: "TestContextNotExpired", Fn: func(ctx context.Context, cov *coverage.Recorder) error {
			cov.Hit("smoke/context.go", 5, 1)
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("context already expired: %w", err)
			}
			return nil
		}},
		{Name: "TestArithmetic", Fn: func(ctx context.Context, cov *coverage.Recorder) error {
			cov.Hit("smoke/arith.go", 7, 1)
			if 2+2 != 4 {
				return fmt.Errorf("arithmetic is broken")
			}
			return nil
		}},
	})
}
