package alertcheck

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/upswyng/alert-worker/internal/domain/model"
)

// Store loads and persists alerts.
type Store interface {
	// ActiveAlerts returns every alert with start <= now, processed or not, in any order.
	ActiveAlerts(ctx context.Context, now time.Time) ([]*model.Alert, error)
	// Save persists a single alert atomically.
	Save(ctx context.Context, alert *model.Alert) error
}

// Notifier delivers an alert that has just been marked processed.
type Notifier interface {
	Notify(ctx context.Context, alert *model.Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, alert *model.Alert) error

func (f NotifierFunc) Notify(ctx context.Context, alert *model.Alert) error { return f(ctx, alert) }

// Clock supplies the evaluation instant.
type Clock interface {
	Now() time.Time
}

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	Store    Store
	Notifier Notifier
	Progress ProgressReporter
	Logger   *slog.Logger
}

// Processor transitions eligible alerts to processed, one at a time.
type Processor struct {
	store    Store
	notifier Notifier
	progress ProgressReporter
	logger   *slog.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(opts ProcessorOptions) (*Processor, error) {
	if opts.Store == nil {
		return nil, errors.New("alert store is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("notifier is required")
	}
	progress := opts.Progress
	if progress == nil {
		progress = nopProgress{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:    opts.Store,
		notifier: opts.Notifier,
		progress: progress,
		logger:   logger,
	}, nil
}

// Outcome is what a processor pass produced.
type Outcome struct {
	// AlertsProcessed holds ids in the order they were saved.
	AlertsProcessed []string
	// NotifyFailures counts alerts that were saved but could not be delivered.
	NotifyFailures int
}

// Run processes eligible in order. For each alert it sets the processed flag,
// saves, notifies, records the id and reports progress. The first save failure
// stops the pass and is returned as a *ProcessingFailure; the returned Outcome
// still lists every alert saved before it.
func (p *Processor) Run(ctx context.Context, eligible []*model.Alert) (Outcome, error) {
	out := Outcome{AlertsProcessed: make([]string, 0, len(eligible))}
	total := len(eligible)

	for i, alert := range eligible {
		if err := ctx.Err(); err != nil {
			return out, &ProcessingFailure{AlertID: alert.ID, Cause: err}
		}

		if err := p.save(ctx, alert); err != nil {
			return out, &ProcessingFailure{AlertID: alert.ID, Cause: err}
		}

		if err := p.notifier.Notify(ctx, alert); err != nil {
			out.NotifyFailures++
			nerr := &NotifyError{AlertID: alert.ID, Cause: err}
			p.logger.WarnContext(ctx, "alert notification failed", "alert_id", alert.ID, "error", nerr)
		}

		out.AlertsProcessed = append(out.AlertsProcessed, alert.ID)
		p.progress.Report(ctx, Percent(i+1, total))
	}

	return out, nil
}

// save flips the flag and persists it. A failed save restores the in-memory
// record so it matches what the store still holds.
func (p *Processor) save(ctx context.Context, alert *model.Alert) error {
	alert.WasProcessed = true
	if err := p.store.Save(ctx, alert); err != nil {
		alert.WasProcessed = false
		return err
	}
	return nil
}
