package job

import (
	"context"
	"log/slog"
	"sync"
)

// ProgressSink receives progress values for one job.
type ProgressSink interface {
	RecordProgress(ctx context.Context, jobID string, percent int) error
}

// ProgressSinkFunc adapts a function to ProgressSink.
type ProgressSinkFunc func(ctx context.Context, jobID string, percent int) error

func (f ProgressSinkFunc) RecordProgress(ctx context.Context, jobID string, percent int) error {
	return f(ctx, jobID, percent)
}

// MonotonicReporter forwards a job's progress to its sinks, dropping values that
// would move progress backwards or repeat the last one. Sink errors are logged
// and never reach the reporting handler.
type MonotonicReporter struct {
	jobID  string
	sinks  []ProgressSink
	logger *slog.Logger

	mu   sync.Mutex
	last int
	seen bool
}

// NewMonotonicReporter constructs a reporter for jobID.
func NewMonotonicReporter(jobID string, logger *slog.Logger, sinks ...ProgressSink) *MonotonicReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonotonicReporter{jobID: jobID, sinks: sinks, logger: logger}
}

// Report clamps percent to 0..100 and forwards it when it advances.
func (r *MonotonicReporter) Report(ctx context.Context, percent int) {
	percent = min(max(percent, 0), 100)

	r.mu.Lock()
	if r.seen && percent <= r.last {
		last := r.last
		r.mu.Unlock()
		if percent < last {
			r.logger.DebugContext(ctx, "dropping regressive job progress",
				"job_id", r.jobID,
				"percent", percent,
				"last", last,
			)
		}
		return
	}
	r.last = percent
	r.seen = true
	r.mu.Unlock()

	for _, s := range r.sinks {
		if err := s.RecordProgress(ctx, r.jobID, percent); err != nil {
			r.logger.WarnContext(ctx, "record job progress failed",
				"job_id", r.jobID,
				"percent", percent,
				"error", err,
			)
		}
	}
}

// Last returns the most recent forwarded value and whether any was forwarded.
func (r *MonotonicReporter) Last() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.seen
}
