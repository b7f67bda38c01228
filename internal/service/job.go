package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/upswyng/alert-worker/internal/core"
	domainjob "github.com/upswyng/alert-worker/internal/domain/job"
	"github.com/upswyng/alert-worker/internal/domain/model"
	"github.com/upswyng/alert-worker/internal/observability/notify"
	"github.com/upswyng/alert-worker/internal/service/failurenotifier"
)

// JobWakeups hands out per-kind wake-up channels for idle runners.
type JobWakeups interface {
	Subscribe(kind model.JobKind) (func(), <-chan struct{})
	StopAll()
}

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository       // Required: job repository
	DefaultLease    time.Duration            // Required unless LeasePolicy is set
	Logger          *slog.Logger             // Optional: structured logger
	FailureNotifier *failurenotifier.Service // Optional: failure notification fan-out
	LeasePolicy     *domainjob.LeasePolicy   // Optional: override default lease policy
	Wakeups         JobWakeups               // Optional: custom wake-up source
	WakeupOptions   domainjob.WakeupOptions  // Optional: configure the default wake-up source
}

// JobService wraps the job queue with lease policy, wake-ups and failure
// notifications.
type JobService struct {
	repo            core.JobRepository
	leasePolicy     *domainjob.LeasePolicy
	wakeups         JobWakeups
	logger          *slog.Logger
	failureNotifier *failurenotifier.Service
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	var leasePolicy *domainjob.LeasePolicy
	switch {
	case opts.LeasePolicy != nil:
		leasePolicy = opts.LeasePolicy
	case opts.DefaultLease > 0:
		var err error
		leasePolicy, err = domainjob.NewLeasePolicy(opts.DefaultLease)
		if err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	default:
		return nil, errors.New("DefaultLease must be positive")
	}

	wakeups := opts.Wakeups
	if wakeups == nil {
		options := opts.WakeupOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		w, err := domainjob.NewWakeups(options)
		if err != nil {
			return nil, fmt.Errorf("create job wakeups: %w", err)
		}
		wakeups = w
	}

	logger := resolveLogger(opts.Logger).With("component", "job_service")
	logger.Debug("JobService initialized", "default_lease", leasePolicy.Default())

	return &JobService{
		repo:            opts.Repo,
		leasePolicy:     leasePolicy,
		wakeups:         wakeups,
		logger:          logger,
		failureNotifier: opts.FailureNotifier,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Create creates a new job with the given request parameters.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.logger.DebugContext(ctx, "job created",
		"job_id", job.ID,
		"kind", job.Kind,
		"status", job.Status,
	)
	return job, nil
}

// ReserveNext reserves the next available job of kind. A zero lease selects
// the default.
func (s *JobService) ReserveNext(ctx context.Context, kind model.JobKind, lease time.Duration) (*model.Job, error) {
	seconds := s.leasePolicy.Seconds(lease)

	job, err := s.repo.ReserveNext(ctx, kind, seconds)
	if err != nil {
		return nil, fmt.Errorf("reserve next job: %w", err)
	}

	if job != nil {
		s.logger.DebugContext(ctx, "job reserved",
			"job_id", job.ID,
			"kind", kind,
			"lease_seconds", seconds,
		)
	}
	return job, nil
}

// LeaseSeconds resolves lease through the service's lease policy.
func (s *JobService) LeaseSeconds(lease time.Duration) int {
	return s.leasePolicy.Seconds(lease)
}

// Subscribe creates a subscription for job notifications of kind.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *JobService) Subscribe(kind model.JobKind) (func(), <-chan struct{}) {
	return s.wakeups.Subscribe(kind)
}

// Heartbeat extends the lease on a running job. It reports false when the
// job is no longer running.
func (s *JobService) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	seconds := s.leasePolicy.Seconds(extend)

	updated, err := s.repo.Heartbeat(ctx, id, seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}

	if updated {
		s.logger.DebugContext(ctx, "job heartbeat updated", "job_id", id, "extend_seconds", seconds)
	}
	return updated, nil
}

// UpdateProgress records percent for a running job.
func (s *JobService) UpdateProgress(ctx context.Context, id string, percent int) (bool, error) {
	ok, err := s.repo.UpdateProgress(ctx, id, percent)
	if err != nil {
		return false, fmt.Errorf("update progress for job %s: %w", id, err)
	}
	return ok, nil
}

// RecordProgress implements domainjob.ProgressSink.
func (s *JobService) RecordProgress(ctx context.Context, jobID string, percent int) error {
	ok, err := s.UpdateProgress(ctx, jobID, percent)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.DebugContext(ctx, "progress ignored for job that is not running", "job_id", jobID, "progress", percent)
	}
	return nil
}

// Complete marks a job as completed successfully.
func (s *JobService) Complete(ctx context.Context, id string) (bool, error) {
	completed, err := s.repo.Complete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}

	if completed {
		s.logger.DebugContext(ctx, "job completed", "job_id", id)
	}
	return completed, nil
}

// Fail marks a job as failed with the given error message.
func (s *JobService) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	return s.FailWithDetails(ctx, id, errMsg, JobFailureDetails{})
}

// JobFailureDetails captures optional context for failure notifications.
type JobFailureDetails struct {
	ErrorClass string
	Metadata   map[string]string
	Severity   string
	OccurredAt time.Time
}

// FailWithDetails records the failure on the job and, when it was recorded,
// notifies the failure sinks. Attempts that will be retried are sent with
// warning severity; the final attempt is critical.
func (s *JobService) FailWithDetails(
	ctx context.Context,
	id, errMsg string,
	details JobFailureDetails,
) (bool, error) {
	if errMsg == "" {
		return false, errors.New("error message required")
	}

	var job *model.Job
	if s.failureNotifier.Enabled() {
		var err error
		job, err = s.repo.GetByID(ctx, id)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to load job for failure notification", "job_id", id, "error", err)
		}
	}

	failed, err := s.repo.Fail(ctx, id, errMsg)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", id, err)
	}

	if failed {
		s.logger.DebugContext(ctx, "job failed", "job_id", id, "error", errMsg)
	}

	if failed && s.failureNotifier.Enabled() {
		s.failureNotifier.NotifyJobFailure(ctx, buildJobFailurePayload(id, job, errMsg, details))
	}

	return failed, nil
}

func buildJobFailurePayload(id string, job *model.Job, errMsg string, details JobFailureDetails) notify.JobFailurePayload {
	payload := notify.JobFailurePayload{
		JobID:      id,
		Error:      errMsg,
		ErrorClass: details.ErrorClass,
		Severity:   details.Severity,
		OccurredAt: details.OccurredAt,
		Metadata:   copyMetadata(details.Metadata),
		Final:      true,
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = time.Now().UTC()
	}

	if job != nil {
		payload.JobKind = string(job.Kind)
		attempt := max(job.RetryCount+1, 0)
		payload.Final = attempt >= job.MaxRetries

		status := model.JobStatusPending
		if payload.Final {
			status = model.JobStatusFailed
		}
		payload.Metadata = mergeMetadata(payload.Metadata, map[string]string{
			"retry_count": strconv.Itoa(attempt),
			"max_retries": strconv.Itoa(job.MaxRetries),
			"priority":    strconv.Itoa(job.Priority),
			"status":      string(status),
		})
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
		if !payload.Final {
			payload.Severity = notify.SeverityWarning
		}
	}
	if payload.ErrorClass != "" {
		payload.Metadata = mergeMetadata(payload.Metadata, map[string]string{"error_class": payload.ErrorClass})
	}
	if len(payload.Metadata) == 0 {
		payload.Metadata = nil
	}
	return payload
}

func copyMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		dst[k] = v
	}
	return dst
}

func mergeMetadata(base, extra map[string]string) map[string]string {
	out := copyMetadata(base)
	if out == nil && len(extra) == 0 {
		return nil
	}
	if out == nil {
		out = make(map[string]string, len(extra))
	}
	for k, v := range extra {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	return out
}

// Stats returns statistics about jobs of kind in different states.
func (s *JobService) Stats(ctx context.Context, kind model.JobKind) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("get job stats for kind %s: %w", kind, err)
	}
	return stats, nil
}

// GetStatus returns the status information for a specific job.
func (s *JobService) GetStatus(ctx context.Context, id string) (*model.JobStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	return &model.JobStatusResponse{
		Status:      job.Status,
		Progress:    job.Progress,
		CompletedAt: job.CompletedAt,
		LastError:   job.LastError,
	}, nil
}

// GetByID returns a job by its ID.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job by id %s: %w", id, err)
	}
	return job, nil
}

// paginationParams holds normalized pagination parameters.
type paginationParams struct {
	Limit  int
	Offset int
}

// normalizePagination clamps pagination parameters to safe defaults.
// Default limit: 50, max limit: 1000, min offset: 0.
func normalizePagination(limit, offset int) paginationParams {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return paginationParams{Limit: limit, Offset: offset}
}

// List returns jobs with optional status and kind filters, newest first.
func (s *JobService) List(ctx context.Context, opts *model.JobListOptions) ([]*model.Job, error) {
	if opts == nil {
		opts = &model.JobListOptions{}
	}
	p := normalizePagination(opts.Limit, opts.Offset)
	opts.Limit = p.Limit
	opts.Offset = p.Offset

	jobs, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes a job that is not running. Its persisted result is kept.
func (s *JobService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("job id is required")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.DebugContext(ctx, "failed to delete job", "job_id", id, "error", err)
		return fmt.Errorf("delete job %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "job deleted", "job_id", id)
	return nil
}

// StopAllListeners stops all active job notification listeners.
// This should be called during graceful shutdown to clean up goroutines.
func (s *JobService) StopAllListeners() {
	s.logger.Info("stopping all job listeners")
	s.wakeups.StopAll()
}
