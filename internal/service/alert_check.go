package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/upswyng/alert-worker/internal/domain/alertcheck"
	"github.com/upswyng/alert-worker/internal/domain/model"
	"github.com/upswyng/alert-worker/internal/observability/metrics"
	"github.com/upswyng/alert-worker/internal/observability/statsd"
)

// AlertCheckHandlerOptions groups dependencies for AlertCheckHandler.
type AlertCheckHandlerOptions struct {
	Store    alertcheck.Store    // Required: alert persistence
	Notifier alertcheck.Notifier // Required: delivery for newly processed alerts
	Clock    alertcheck.Clock    // Required: evaluation instant
	Logger   *slog.Logger        // Optional
	Metrics  statsd.Sink         // Optional
}

// AlertCheckHandler runs check_new_alerts jobs handed out by the job runner.
type AlertCheckHandler struct {
	store    alertcheck.Store
	notifier alertcheck.Notifier
	clock    alertcheck.Clock
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewAlertCheckHandler constructs an AlertCheckHandler.
func NewAlertCheckHandler(opts AlertCheckHandlerOptions) (*AlertCheckHandler, error) {
	if opts.Store == nil {
		return nil, errors.New("alert store is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("alert notifier is required")
	}
	if opts.Clock == nil {
		return nil, errors.New("clock is required")
	}
	return &AlertCheckHandler{
		store:    opts.Store,
		notifier: opts.Notifier,
		clock:    opts.Clock,
		logger:   resolveLogger(opts.Logger).With("component", "alert_check"),
		metrics:  opts.Metrics,
	}, nil
}

// Kind is the job kind this handler serves.
func (h *AlertCheckHandler) Kind() model.JobKind { return model.JobKindCheckNewAlerts }

// Handle processes one job and returns its *model.AlertCheckResult. Errors
// are returned unchanged so the runner can inspect a *alertcheck.ProcessingFailure.
func (h *AlertCheckHandler) Handle(
	ctx context.Context,
	job *model.Job,
	progress alertcheck.ProgressReporter,
) (any, error) {
	start := time.Now()
	sum, err := alertcheck.Run(ctx, alertcheck.Params{
		Job:      job,
		Clock:    h.clock,
		Store:    h.store,
		Notifier: h.notifier,
		Progress: progress,
		Logger:   h.logger,
	})

	m := metrics.AlertCheckMetric{Duration: time.Since(start), Err: err}
	if err != nil {
		var failure *alertcheck.ProcessingFailure
		if errors.As(err, &failure) {
			m.Processed = len(failure.AlertsProcessed())
		}
		metrics.EmitAlertCheck(h.metrics, m)
		return nil, err
	}

	m.Active = sum.Active
	m.Eligible = sum.Eligible
	m.Processed = len(sum.Result.AlertsProcessed)
	m.NotifyFailures = sum.NotifyFailures
	metrics.EmitAlertCheck(h.metrics, m)

	return sum.Result, nil
}
