package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/upswyng/alert-worker/config"
	"github.com/upswyng/alert-worker/internal/adapters/jobrunner"
	"github.com/upswyng/alert-worker/internal/adapters/reaper"
	schedrunner "github.com/upswyng/alert-worker/internal/adapters/scheduler"
	"github.com/upswyng/alert-worker/internal/core"
	"github.com/upswyng/alert-worker/internal/domain/alertcheck"
	"github.com/upswyng/alert-worker/internal/domain/model"
	"github.com/upswyng/alert-worker/internal/observability/statsd"
	"github.com/upswyng/alert-worker/internal/service"
)

// AlertCheckRunnerConfig contains configuration for the alert check runner.
type AlertCheckRunnerConfig struct {
	Jobs        *service.JobService
	Handler     *service.AlertCheckHandler
	JobResults  core.JobResultRepository
	Progress    core.ProgressPublisher
	Logger      *slog.Logger
	Metrics     statsd.Sink
	Lease       time.Duration
	Concurrency int
}

// RunAlertCheckRunner starts the job runner for check_new_alerts jobs.
func RunAlertCheckRunner(ctx context.Context, cfg AlertCheckRunnerConfig) error {
	if cfg.Handler == nil {
		return errors.New("alert check handler not configured")
	}

	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Jobs:        cfg.Jobs,
		JobResults:  cfg.JobResults,
		Progress:    cfg.Progress,
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
		Kind:        model.JobKindCheckNewAlerts,
		Lease:       cfg.Lease,
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		return fmt.Errorf("create alert check runner: %w", err)
	}
	runner.Register(cfg.Handler.Kind(), alertCheckHandlerFunc(cfg.Handler))

	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run alert check runner: %w", runErr)
	}
	return nil
}

// alertCheckHandlerFunc adapts the handler to the runner's progress callback.
func alertCheckHandlerFunc(h *service.AlertCheckHandler) jobrunner.HandlerFunc {
	return func(ctx context.Context, job *model.Job, report jobrunner.ProgressFunc) (any, error) {
		return h.Handle(ctx, job, alertcheck.ProgressFunc(report))
	}
}

// SchedulerConfig contains configuration for the scheduler.
type SchedulerConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.SchedulerConfig
	Metrics statsd.Sink
}

// RunScheduler starts the scheduler service.
func RunScheduler(ctx context.Context, cfg SchedulerConfig) error {
	jobCfg := cfg.Config.JobConfig()
	runner, err := schedrunner.NewRunner(schedrunner.RunnerOptions{
		DB:       cfg.DB,
		Config:   &jobCfg,
		Interval: cfg.Config.Interval,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create scheduler runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for the reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
