package alertcheck

import (
	"context"
	"math"
)

// ProgressComplete is the final progress value of every successful run.
const ProgressComplete = 100

// ProgressReporter receives progress percentages in [0, 100].
type ProgressReporter interface {
	Report(ctx context.Context, percent int)
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(ctx context.Context, percent int)

// Report calls f.
func (f ProgressFunc) Report(ctx context.Context, percent int) {
	if f != nil {
		f(ctx, percent)
	}
}

type nopProgress struct{}

func (nopProgress) Report(context.Context, int) {}

// Percent returns done/total as a rounded percentage clamped to [0, 100].
// A run with nothing to do is complete.
func Percent(done, total int) int {
	if total <= 0 {
		return ProgressComplete
	}
	p := int(math.Round(float64(done) / float64(total) * 100))
	switch {
	case p < 0:
		return 0
	case p > ProgressComplete:
		return ProgressComplete
	default:
		return p
	}
}
