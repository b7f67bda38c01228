// Package jobrunner reserves queued jobs and runs them through registered handlers.
package jobrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/upswyng/alert-worker/internal/core"
	domainjob "github.com/upswyng/alert-worker/internal/domain/job"
	"github.com/upswyng/alert-worker/internal/domain/model"
	apperrors "github.com/upswyng/alert-worker/internal/errors"
	obserrors "github.com/upswyng/alert-worker/internal/observability/errors"
	"github.com/upswyng/alert-worker/internal/observability/metrics"
	"github.com/upswyng/alert-worker/internal/observability/statsd"
	"github.com/upswyng/alert-worker/internal/service"
)

// ProgressFunc receives a job's completion percentage.
type ProgressFunc func(ctx context.Context, percent int)

// HandlerFunc processes a job. The returned value is persisted as the job's
// result; a non-nil error fails the attempt, which is retried per policy.
type HandlerFunc func(ctx context.Context, job *model.Job, progress ProgressFunc) (any, error)

// finalizeTimeout bounds the bookkeeping done after a handler returns, which
// still runs when the runner context has been cancelled.
const finalizeTimeout = 10 * time.Second

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Jobs       *service.JobService      // Required
	JobResults core.JobResultRepository // Optional: persists handler results
	Progress   core.ProgressPublisher   // Optional: live progress fan-out
	Logger     *slog.Logger
	Metrics    statsd.Sink

	Kind        model.JobKind // which job kind to process; defaults to check_new_alerts
	Lease       time.Duration // per-job lease duration; defaults to 30s
	Concurrency int           // number of worker goroutines; defaults to 1
}

// Runner pulls jobs and executes them using registered handlers.
type Runner struct {
	jobs       *service.JobService
	jobResults core.JobResultRepository
	progress   core.ProgressPublisher
	logger     *slog.Logger
	metrics    statsd.Sink
	kind       model.JobKind
	lease      time.Duration
	workers    int

	mu       sync.RWMutex
	handlers map[model.JobKind]HandlerFunc
}

// NewRunner constructs a job runner for a single job kind.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job service is required")
	}

	kind := opts.Kind
	if kind == "" {
		kind = model.JobKindCheckNewAlerts
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidJobKind, kind)
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = 30 * time.Second
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		jobs:       opts.Jobs,
		jobResults: opts.JobResults,
		progress:   opts.Progress,
		logger:     logger.With("component", "job_runner", "kind", string(kind)),
		metrics:    opts.Metrics,
		kind:       kind,
		lease:      lease,
		workers:    workers,
		handlers:   make(map[model.JobKind]HandlerFunc),
	}, nil
}

// Register installs h for kind, replacing any previous handler.
func (r *Runner) Register(kind model.JobKind, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

func (r *Runner) handler(kind model.JobKind) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Run starts worker goroutines and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner", "workers", r.workers, "lease", r.lease)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsub, ch := r.jobs.Subscribe(r.kind)
	defer unsub()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx, ch); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.kind, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !waitForNotify(ctx, notify) {
				return nil
			}
		case errors.Is(err, context.Canceled):
			return nil
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

func waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			JobKind:    string(job.Kind),
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}
	emit(metrics.TransitionReserved, metrics.ResultSuccess, nil)
	logger := r.logger.With("job_id", job.ID, "attempt", job.RetryCount+1)

	h, ok := r.handler(job.Kind)
	if !ok {
		err := fmt.Errorf("no handler for job kind %s", job.Kind)
		r.fail(ctx, job, err)
		emit(metrics.TransitionFailed, metrics.ResultError, err)
		return
	}

	jobCtx, stop := context.WithCancel(ctx)
	heartbeatDone := r.startHeartbeat(jobCtx, stop, job.ID)
	reporter := domainjob.NewMonotonicReporter(job.ID, logger, r.progressSinks(job)...)

	result, err := runHandler(jobCtx, h, job, reporter.Report)
	stop()
	<-heartbeatDone

	finCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err != nil {
		var partial interface{ PartialResult() any }
		if errors.As(err, &partial) {
			r.persistResult(finCtx, job, partial.PartialResult())
		}
		logger.WarnContext(finCtx, "job attempt failed", "error", err)
		r.fail(finCtx, job, err)
		emit(metrics.TransitionFailed, metrics.ResultError, err)
		return
	}

	r.persistResult(finCtx, job, result)
	completed, cerr := r.jobs.Complete(finCtx, job.ID)
	if cerr != nil {
		logger.ErrorContext(finCtx, "complete job error", "error", cerr)
		emit(metrics.TransitionCompleted, metrics.ResultError, cerr)
		return
	}
	outcome := metrics.ResultNoop
	if completed {
		outcome = metrics.ResultSuccess
		logger.InfoContext(finCtx, "job completed", "duration", time.Since(start))
	}
	emit(metrics.TransitionCompleted, outcome, nil)
}

// runHandler converts a handler panic into an error so the attempt is failed
// like any other.
func runHandler(ctx context.Context, h HandlerFunc, job *model.Job, progress ProgressFunc) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h(ctx, job, progress)
}

// startHeartbeat renews the lease until ctx ends. Losing the lease cancels the
// handler through stop.
func (r *Runner) startHeartbeat(ctx context.Context, stop context.CancelFunc, jobID string) <-chan struct{} {
	done := make(chan struct{})
	interval := domainjob.HeartbeatInterval(r.jobs.LeaseSeconds(r.lease))

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := r.jobs.Heartbeat(ctx, jobID, r.lease)
				switch {
				case err != nil:
					if ctx.Err() == nil {
						r.logger.WarnContext(ctx, "job heartbeat failed", "job_id", jobID, "error", err)
					}
				case !ok:
					r.logger.WarnContext(ctx, "job lease lost, cancelling handler", "job_id", jobID)
					stop()
					return
				}
			}
		}
	}()
	return done
}

func (r *Runner) progressSinks(job *model.Job) []domainjob.ProgressSink {
	sinks := []domainjob.ProgressSink{r.jobs}
	if r.progress == nil {
		return sinks
	}
	kind := job.Kind
	return append(sinks, domainjob.ProgressSinkFunc(func(ctx context.Context, jobID string, percent int) error {
		return r.progress.Publish(ctx, core.ProgressSnapshot{
			JobID:     jobID,
			Kind:      kind,
			Percent:   percent,
			UpdatedAt: time.Now().UTC(),
		})
	}))
}

func (r *Runner) fail(ctx context.Context, job *model.Job, cause error) {
	meta := map[string]string{
		"component": r.componentLabel(),
		"transient": strconv.FormatBool(apperrors.IsTransient(cause)),
	}
	var detailed interface{ FailureMetadata() map[string]string }
	if errors.As(cause, &detailed) {
		maps.Copy(meta, detailed.FailureMetadata())
	}

	_, err := r.jobs.FailWithDetails(ctx, job.ID, cause.Error(), service.JobFailureDetails{
		ErrorClass: obserrors.Classify(cause),
		Metadata:   meta,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "fail job error", "job_id", job.ID, "error", err, "original_error", cause)
	}
}

func (r *Runner) componentLabel() string {
	switch r.kind {
	case model.JobKindCheckNewAlerts:
		return "alert_check_runner"
	default:
		return "job_runner"
	}
}

func (r *Runner) persistResult(ctx context.Context, job *model.Job, result any) {
	if r.jobResults == nil || result == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		r.logger.ErrorContext(ctx, "marshal job result", "job_id", job.ID, "error", err)
		return
	}
	if err := r.jobResults.Upsert(ctx, core.UpsertJobResultParams{
		JobID:   job.ID,
		JobKind: job.Kind,
		Result:  payload,
	}); err != nil {
		r.logger.ErrorContext(ctx, "persist job result", "job_id", job.ID, "error", err)
	}
}
