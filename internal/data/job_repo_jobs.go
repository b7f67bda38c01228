package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/upswyng/alert-worker/internal/data/pgxutil"
	"github.com/upswyng/alert-worker/internal/domain/model"
)

const (
	defaultRetryDelaySeconds = 30
	defaultMaxRetries        = 3
)

func (r *JobRepo) retryDelay() time.Duration {
	if r.cfg.RetryDelaySeconds > 0 {
		return time.Duration(r.cfg.RetryDelaySeconds) * time.Second
	}
	return defaultRetryDelaySeconds * time.Second
}

// Create inserts a pending job and signals listeners for its kind in the same transaction.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload := []byte(req.Payload)
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	meta := []byte(req.Metadata)
	if len(meta) == 0 {
		meta = []byte(`{}`)
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	scheduledAt := r.timeProvider.Now().UTC()
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	}

	query := `
		INSERT INTO jobs (kind, status, priority, payload, metadata, scheduled_at, max_retries)
		VALUES ($1, 'pending', $2, $3, $4, $5, $6)
		RETURNING ` + jobColumns

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			j, scanErr := scanJob(tx.QueryRow(ctx, query,
				req.Kind, req.Priority, payload, meta, scheduledAt, maxRetries,
			))
			if scanErr != nil {
				return fmt.Errorf("insert job: %w", scanErr)
			}
			if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, notifyChannel(req.Kind), j.ID); execErr != nil {
				return fmt.Errorf("send job notification: %w", execErr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Advisory lock namespace for requeueExpired to avoid cross-kind contention.
const advisoryLockRequeueMajor int64 = 1001

func advisoryLockRequeueMinor(kind model.JobKind) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(kind))
	return int64(h.Sum32() & math.MaxInt32)
}

// requeueExpired returns running jobs whose lease lapsed to pending.
func (r *JobRepo) requeueExpired(ctx context.Context, kind model.JobKind) (int64, error) {
	var n int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx,
				"SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
				advisoryLockRequeueMajor, advisoryLockRequeueMinor(kind),
			).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}

			res, err := tx.ExecContext(ctx, `
				UPDATE jobs
				SET status = 'pending', lease_expires_at = NULL, progress = 0
				WHERE kind = $1 AND status = 'running'
				  AND lease_expires_at IS NOT NULL
				  AND lease_expires_at < $2
			`, kind, r.timeProvider.Now().UTC())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			n, err = res.RowsAffected()
			return err
		},
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.WarnContext(ctx, "requeued jobs with expired leases", "kind", kind, "count", n)
	}
	return n, nil
}

const reserveNextSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE kind = $1 AND status = 'pending' AND scheduled_at <= $2
    ORDER BY priority DESC, scheduled_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'running',
    progress = 0,
    started_at = COALESCE(j.started_at, $2),
    lease_expires_at = $3,
    updated_at = $2
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.kind, j.status, j.priority, j.payload, j.metadata, j.progress, j.scheduled_at,
    j.started_at, j.completed_at, j.retry_count, j.max_retries, j.last_error, j.lease_expires_at,
    j.created_at, j.updated_at`

// ReserveNext leases the next due job of kind. It returns model.ErrNoJobsAvailable when none is due.
func (r *JobRepo) ReserveNext(ctx context.Context, kind model.JobKind, leaseSeconds int) (*model.Job, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidJobKind, kind)
	}
	if leaseSeconds <= 0 {
		return nil, errors.New("leaseSeconds must be positive")
	}
	if _, err := r.requeueExpired(ctx, kind); err != nil {
		return nil, fmt.Errorf("requeue expired jobs: %w", err)
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now().UTC()
			lease := now.Add(time.Duration(leaseSeconds) * time.Second)
			j, err := scanJob(tx.QueryRow(ctx, reserveNextSQL, kind, now, lease))
			if errors.Is(err, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if err != nil {
				return fmt.Errorf("reserve job: %w", err)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Heartbeat extends the lease on a running job. It returns false when the job is no longer running.
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, jobID, now.Add(time.Duration(leaseSeconds)*time.Second), now)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}
	return affected(res, "heartbeat")
}

// UpdateProgress stores percent for a running job, keeping the larger of the stored and new values.
func (r *JobRepo) UpdateProgress(ctx context.Context, id string, percent int) (bool, error) {
	if percent < 0 || percent > 100 {
		return false, fmt.Errorf("progress %d out of range", percent)
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET progress = GREATEST(progress, $2),
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, id, percent, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update job progress: %w", err)
	}
	return affected(res, "update progress")
}

// Complete marks a running job as completed.
func (r *JobRepo) Complete(ctx context.Context, id string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed',
		    completed_at = $2,
		    updated_at = $2,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND status = 'running'
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	return affected(res, "complete")
}

// Fail records errMsg on a running job. The job is requeued after the retry delay
// until its retry budget is spent, then marked failed.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	var status string
	err := r.DB.QueryRowContext(ctx, `
		UPDATE jobs
		SET
		  last_error = $2,
		  retry_count = retry_count + 1,
		  status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
		  completed_at = CASE WHEN retry_count + 1 >= max_retries THEN $3::timestamptz ELSE NULL END,
		  scheduled_at = CASE WHEN retry_count + 1 >= max_retries THEN scheduled_at ELSE $4::timestamptz END,
		  progress = CASE WHEN retry_count + 1 >= max_retries THEN progress ELSE 0 END,
		  lease_expires_at = NULL,
		  updated_at = $3
		WHERE id = $1 AND status = 'running'
		RETURNING status
	`, id, errMsg, now, now.Add(r.retryDelay())).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}
	r.logger.DebugContext(ctx, "job failed", "job_id", id, "status", status)
	return true, nil
}

// Stats returns job counts by status for kind.
func (r *JobRepo) Stats(ctx context.Context, kind model.JobKind) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
		SELECT
		  count(*) FILTER (WHERE status = 'pending')   AS pending,
		  count(*) FILTER (WHERE status = 'running')   AS running,
		  count(*) FILTER (WHERE status = 'completed') AS completed,
		  count(*) FILTER (WHERE status = 'failed')    AS failed
		FROM jobs
		WHERE kind = $1
	`, kind).Scan(&s.Pending, &s.Running, &s.Completed, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return &s, nil
}

// WaitForNotification blocks until a job of kind is created or ctx ends.
func (r *JobRepo) WaitForNotification(ctx context.Context, kind model.JobKind) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() { _ = conn.Close() }()

	channel := notifyChannel(kind)
	quoted := pgx.Identifier{channel}.Sanitize()
	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", channel, execErr)
	}
	defer func() { _, _ = conn.ExecContext(context.Background(), "UNLISTEN "+quoted) }()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, waitErr := sc.Conn().WaitForNotification(ctx)
		return waitErr
	})
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrJobNotFound
	}
	job, err := scanJob(r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs newest first, optionally filtered by status and kind.
func (r *JobRepo) List(ctx context.Context, opts *model.JobListOptions) ([]*model.Job, error) {
	if opts == nil {
		opts = &model.JobListOptions{}
	}
	limit := opts.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := max(opts.Offset, 0)

	var (
		where []string
		args  []any
	)
	if opts.Status != nil {
		args = append(args, *opts.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if opts.Kind != nil {
		args = append(args, *opts.Kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}
	return jobs, nil
}

// ActiveJobExists reports whether a job of kind is pending or holds an unexpired lease at now.
func (r *JobRepo) ActiveJobExists(ctx context.Context, kind model.JobKind, now time.Time) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS (
		  SELECT 1 FROM jobs
		  WHERE kind = $1
		    AND (status = 'pending' OR (status = 'running' AND lease_expires_at > $2))
		)
	`, kind, now.UTC()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active jobs: %w", err)
	}
	return exists, nil
}

// Delete removes a job that is not currently leased.
func (r *JobRepo) Delete(ctx context.Context, id string) error {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE id = $1
		  AND status IN ('pending', 'completed', 'failed')
		  AND (lease_expires_at IS NULL OR lease_expires_at <= $2)
	`, id, now)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if ok, affErr := affected(res, "delete"); affErr != nil || ok {
		return affErr
	}

	job, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == model.JobStatusRunning {
		return ErrJobNotDeletable
	}
	if job.LeaseExpiresAt != nil && now.Before(*job.LeaseExpiresAt) {
		return ErrJobReserved
	}
	return errors.New("unexpected state: job is in deletable state but delete failed")
}

func affected(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n > 0, nil
}
