package alertcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/upswyng/alert-worker/internal/domain/model"
)

// Params supplies the collaborators for one run.
type Params struct {
	Job      *model.Job
	Clock    Clock
	Store    Store
	Notifier Notifier
	Progress ProgressReporter // optional
	Logger   *slog.Logger     // optional
}

func (p *Params) validate() error {
	if p.Job == nil {
		return errors.New("job is required")
	}
	if p.Job.Kind != model.JobKindCheckNewAlerts {
		return fmt.Errorf("%w: %q", model.ErrInvalidJobKind, p.Job.Kind)
	}
	if p.Clock == nil {
		return errors.New("clock is required")
	}
	if p.Store == nil {
		return errors.New("alert store is required")
	}
	if p.Notifier == nil {
		return errors.New("notifier is required")
	}
	return nil
}

// Summary describes a completed run.
type Summary struct {
	Result         *model.AlertCheckResult
	Active         int
	Eligible       int
	NotifyFailures int
}

// Process runs one check_new_alerts job and returns its result. A save failure
// is returned as *ProcessingFailure carrying the partial result; a malformed
// active alert is returned as *SelectionInputError before anything is saved.
func Process(ctx context.Context, p Params) (*model.AlertCheckResult, error) {
	sum, err := Run(ctx, p)
	if err != nil {
		return nil, err
	}
	return sum.Result, nil
}

// Run is Process with run statistics.
func Run(ctx context.Context, p Params) (*Summary, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("job_name", p.Job.Name(), "job_id", p.Job.ID)
	progress := p.Progress
	if progress == nil {
		progress = nopProgress{}
	}

	now := p.Clock.Now()
	logger.InfoContext(ctx, "checking for new alerts", "now", now)

	active, err := p.Store.ActiveAlerts(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("fetch active alerts: %w", err)
	}
	if err := validateActive(active); err != nil {
		return nil, err
	}

	eligible := SelectEligible(active, now)

	proc, err := NewProcessor(ProcessorOptions{
		Store:    p.Store,
		Notifier: p.Notifier,
		Progress: progress,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	out, runErr := proc.Run(ctx, eligible)
	result, err := model.NewAlertCheckResult(p.Job, out.AlertsProcessed)
	if err != nil {
		return nil, err
	}

	if runErr != nil {
		var failure *ProcessingFailure
		if errors.As(runErr, &failure) {
			failure.Partial = result
		}
		logger.ErrorContext(ctx, "alert check stopped",
			"alerts_processed", out.AlertsProcessed,
			"error", runErr,
		)
		return nil, runErr
	}

	progress.Report(ctx, ProgressComplete)

	logger.InfoContext(ctx, "alert check finished",
		"active", len(active),
		"eligible", len(eligible),
		"alerts_processed", len(out.AlertsProcessed),
		"notify_failures", out.NotifyFailures,
	)

	return &Summary{
		Result:         result,
		Active:         len(active),
		Eligible:       len(eligible),
		NotifyFailures: out.NotifyFailures,
	}, nil
}
