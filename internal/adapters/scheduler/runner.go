// Package scheduler provides adapters for running the job scheduler.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/upswyng/alert-worker/internal/core"
	"github.com/upswyng/alert-worker/internal/data"
	obserrors "github.com/upswyng/alert-worker/internal/observability/errors"
	"github.com/upswyng/alert-worker/internal/observability/metrics"
	"github.com/upswyng/alert-worker/internal/observability/statsd"
	"github.com/upswyng/alert-worker/internal/service"
)

// Runner ticks the scheduler service on a fixed interval.
type Runner struct {
	scheduler core.JobScheduler
	interval  time.Duration
	logger    *slog.Logger
	metrics   statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB       *sql.DB
	Config   *core.SchedulerConfig
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  statsd.Sink

	// Optional dependency injections for testing/decoupling
	Jobs            core.JobRepository
	JobIntrospector core.JobIntrospector
	Scheduler       core.JobScheduler
}

// NewRunner creates a new scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	sched := opts.Scheduler
	if sched == nil {
		svc, err := service.NewSchedulerService(wireRunnerDependencies(opts))
		if err != nil {
			return nil, fmt.Errorf("wire scheduler service: %w", err)
		}
		sched = svc
	}

	return &Runner{
		scheduler: sched,
		interval:  opts.Interval,
		logger:    opts.Logger.With("component", "scheduler_runner"),
		metrics:   opts.Metrics,
	}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Scheduler == nil && (opts.Jobs == nil || opts.JobIntrospector == nil) {
		return errors.New("database connection is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

func wireRunnerDependencies(opts RunnerOptions) service.SchedulerServiceOptions {
	var repo *data.JobRepo
	if opts.DB != nil {
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	deps := service.SchedulerServiceOptions{
		Jobs:            opts.Jobs,
		JobIntrospector: opts.JobIntrospector,
		Config:          opts.Config,
		Logger:          opts.Logger,
	}
	if deps.Jobs == nil && repo != nil {
		deps.Jobs = repo
	}
	if deps.JobIntrospector == nil && repo != nil {
		deps.JobIntrospector = repo
	}
	return deps
}

// Run fires one tick immediately and then one per interval until ctx is
// cancelled. Tick errors are logged and the loop keeps going.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting scheduler runner", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "scheduler runner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			r.tick(ctx, now)
		}
	}
}

func (r *Runner) tick(ctx context.Context, now time.Time) {
	start := time.Now()
	enqueued, err := r.scheduler.Tick(ctx, now)
	r.emitTickMetrics(enqueued, time.Since(start), err)

	switch {
	case err != nil && ctx.Err() == nil:
		r.logger.ErrorContext(ctx, "scheduler tick failed", "error", err)
	case enqueued > 0:
		r.logger.InfoContext(ctx, "scheduler enqueued jobs", "count", enqueued)
	}
}

func (r *Runner) emitTickMetrics(enqueued int, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if enqueued == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}

	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	r.metrics.Count("scheduler.tick", 1, tags)

	if enqueued > 0 {
		r.metrics.Count("scheduler.jobs_enqueued", int64(enqueued), tags)
	}

	if elapsed > 0 {
		r.metrics.Timing("scheduler.tick_duration", elapsed, maps.Clone(tags))
	}

	if err == nil {
		r.metrics.Gauge("scheduler.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}
