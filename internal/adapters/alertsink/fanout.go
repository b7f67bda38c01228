package alertsink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/upswyng/alert-worker/internal/domain/alertcheck"
	"github.com/upswyng/alert-worker/internal/domain/model"
	"github.com/upswyng/alert-worker/internal/observability/metrics"
	"github.com/upswyng/alert-worker/internal/observability/statsd"
)

// Named pairs a notifier with the label used in logs and metrics.
type Named struct {
	Name     string
	Notifier alertcheck.Notifier
}

// FanoutOptions configures a Fanout.
type FanoutOptions struct {
	Sinks   []Named
	Timeout time.Duration // per-sink bound; zero means none
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Fanout delivers each alert to every sink in order. A failing sink does not
// stop the others; their errors are joined.
type Fanout struct {
	sinks   []Named
	timeout time.Duration
	logger  *slog.Logger
	metrics statsd.Sink
}

var _ alertcheck.Notifier = (*Fanout)(nil)

// NewFanout constructs a Fanout. Sinks with a nil notifier are skipped.
func NewFanout(opts FanoutOptions) *Fanout {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sinks := make([]Named, 0, len(opts.Sinks))
	for _, s := range opts.Sinks {
		if s.Notifier != nil {
			sinks = append(sinks, s)
		}
	}
	return &Fanout{
		sinks:   sinks,
		timeout: opts.Timeout,
		logger:  logger.With("component", "alert_sink"),
		metrics: opts.Metrics,
	}
}

// Len returns the number of active sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Notify implements alertcheck.Notifier.
func (f *Fanout) Notify(ctx context.Context, alert *model.Alert) error {
	var errs []error
	for _, s := range f.sinks {
		err := f.deliver(ctx, s.Notifier, alert)
		metrics.EmitNotification(f.metrics, s.Name, err)
		if err != nil {
			f.logger.WarnContext(ctx, "alert delivery failed", "sink", s.Name, "alert_id", alert.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) deliver(ctx context.Context, n alertcheck.Notifier, alert *model.Alert) error {
	if f.timeout <= 0 {
		return n.Notify(ctx, alert)
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return n.Notify(ctx, alert)
}
