// Package service provides the alert worker's business logic: the alert check
// handler, the job queue facade, the recurring scheduler and the reaper.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/upswyng/alert-worker/internal/core"
	"github.com/upswyng/alert-worker/internal/domain/model"
)

// SchedulerServiceOptions holds the dependencies for creating a SchedulerService.
type SchedulerServiceOptions struct {
	Jobs            core.JobRepository
	JobIntrospector core.JobIntrospector
	Config          *core.SchedulerConfig
	Logger          *slog.Logger
}

// SchedulerService enqueues the recurring alert check. It implements core.JobScheduler.
// A tick is skipped while a job of the configured kind is pending or running
// with a live lease, so runs never overlap through the scheduler.
type SchedulerService struct {
	jobs   core.JobRepository
	jobq   core.JobIntrospector
	cfg    core.SchedulerConfig
	logger *slog.Logger
}

// NewSchedulerService creates a new SchedulerService with the given dependencies.
func NewSchedulerService(opts SchedulerServiceOptions) (*SchedulerService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.JobIntrospector == nil {
		return nil, errors.New("JobIntrospector is required")
	}
	cfg := core.DefaultSchedulerConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if !cfg.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidJobKind, cfg.Kind)
	}
	return &SchedulerService{
		jobs:   opts.Jobs,
		jobq:   opts.JobIntrospector,
		cfg:    cfg,
		logger: resolveLogger(opts.Logger).With("component", "scheduler"),
	}, nil
}

// Tick enqueues one job unless one is already in flight.
// Returns the number of jobs enqueued.
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) (int, error) {
	busy, err := s.jobq.ActiveJobExists(ctx, s.cfg.Kind, now)
	if err != nil {
		return 0, fmt.Errorf("check active %s job: %w", s.cfg.Kind, err)
	}
	if busy {
		s.logger.DebugContext(ctx, "skipping tick, job already in flight", "kind", s.cfg.Kind)
		return 0, nil
	}

	meta, err := schedulerMetadata(now)
	if err != nil {
		return 0, err
	}
	job, err := s.jobs.Create(ctx, &model.CreateJobRequest{
		Kind:       s.cfg.Kind,
		Priority:   s.cfg.Priority,
		MaxRetries: s.cfg.MaxRetries,
		Metadata:   meta,
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue %s job: %w", s.cfg.Kind, err)
	}

	s.logger.InfoContext(ctx, "job enqueued", "job_id", job.ID, "kind", job.Kind)
	return 1, nil
}

func schedulerMetadata(now time.Time) (json.RawMessage, error) {
	b, err := json.Marshal(map[string]string{
		"trigger":  "scheduler",
		"fired_at": now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal scheduler metadata: %w", err)
	}
	return b, nil
}
