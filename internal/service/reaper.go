package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/upswyng/alert-worker/config"
	"github.com/upswyng/alert-worker/internal/core"
	"github.com/upswyng/alert-worker/internal/domain/model"
	obserrors "github.com/upswyng/alert-worker/internal/observability/errors"
	"github.com/upswyng/alert-worker/internal/observability/metrics"
	"github.com/upswyng/alert-worker/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.ReaperRepository // Required: reaper repository
	Config  config.ReaperConfig   // Required: reaper configuration
	Logger  *slog.Logger          // Optional: structured logger
	Metrics statsd.Sink           // Optional: metrics sink (StatsD-compatible)
}

// ReaperService keeps the job tables bounded.
//
// Each pass:
// - fails pending jobs that were never picked up,
// - deletes old completed and failed jobs,
// - deletes old job results.
type ReaperService struct {
	repo    core.ReaperRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	logger := resolveLogger(opts.Logger).With("component", "reaper_service")
	logger.Debug("ReaperService initialized",
		"interval", opts.Config.Interval,
		"pending_max_age", opts.Config.PendingMaxAge,
		"completed_max_age", opts.Config.CompletedMaxAge,
		"failed_max_age", opts.Config.FailedMaxAge,
	)

	return &ReaperService{
		repo:    opts.Repo,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)

	// Spread out replicas that start together.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
			}
		}
	}
}

// waitWithJitter sleeps for a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

type reapStep struct {
	target string
	label  string
	maxAge time.Duration
	batch  func(ctx context.Context) (int64, error)
}

func (s *ReaperService) steps() []reapStep {
	cfg := s.config
	return []reapStep{
		{
			target: "pending_jobs",
			label:  "failed stale pending jobs",
			maxAge: cfg.PendingMaxAge,
			batch: func(ctx context.Context) (int64, error) {
				return s.repo.FailStalePendingJobs(ctx, cfg.PendingMaxAge, cfg.BatchSize)
			},
		},
		{
			target: "completed_jobs",
			label:  "deleted old completed jobs",
			maxAge: cfg.CompletedMaxAge,
			batch: func(ctx context.Context) (int64, error) {
				return s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
					Status:    model.JobStatusCompleted,
					MaxAge:    cfg.CompletedMaxAge,
					BatchSize: cfg.BatchSize,
				})
			},
		},
		{
			target: "failed_jobs",
			label:  "deleted old failed jobs",
			maxAge: cfg.FailedMaxAge,
			batch: func(ctx context.Context) (int64, error) {
				return s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
					Status:    model.JobStatusFailed,
					MaxAge:    cfg.FailedMaxAge,
					BatchSize: cfg.BatchSize,
				})
			},
		},
		{
			target: "job_results",
			label:  "deleted old job results",
			maxAge: cfg.JobResultsMaxAge,
			batch: func(ctx context.Context) (int64, error) {
				return s.repo.DeleteOldJobResults(ctx, core.DeleteOldJobResultsParams{
					JobKind:   model.JobKindCheckNewAlerts,
					MaxAge:    cfg.JobResultsMaxAge,
					BatchSize: cfg.BatchSize,
				})
			},
		},
	}
}

// RunOnce performs one cleanup pass. Every step runs even when an earlier
// one fails; the errors are joined.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := time.Now()
	var (
		errs        []error
		total       int64
		allCanceled = true
	)

	for _, step := range s.steps() {
		count, err := drain(ctx, step.batch)
		total += count
		metrics.EmitReap(s.metrics, metrics.ReapMetric{
			Target:   step.target,
			Affected: count,
			Err:      suppressContextCancellation(err),
		})
		if count > 0 {
			s.logger.InfoContext(ctx, step.label, "count", count, "max_age", step.maxAge)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.target, err))
			allCanceled = allCanceled && isContextCancellation(err)
		}
	}

	var err error
	if len(errs) > 0 {
		err = errors.Join(errs...)
		if allCanceled {
			err = context.Canceled
		}
	}
	s.emitPassMetrics(total, time.Since(start), err)

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return err
}

// drain repeats batch until it affects no rows.
func drain(ctx context.Context, batch func(context.Context) (int64, error)) (int64, error) {
	var total int64
	for {
		count, err := batch(ctx)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			return total, nil
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

func (s *ReaperService) emitPassMetrics(total int64, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
	case total == 0:
		result = metrics.ResultNoop
	}
	tags := map[string]string{"result": result}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, tags)
	}
	if err == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
