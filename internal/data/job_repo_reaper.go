package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upswyng/alert-worker/internal/core"
	"github.com/upswyng/alert-worker/internal/data/pgxutil"
	"github.com/upswyng/alert-worker/internal/domain/model"
)

// Reaper operations take pg_try_advisory_xact_lock(major, minor) so concurrent
// reapers skip rather than queue behind each other.
const (
	advisoryLockReaperMajor         = 1000
	advisoryLockReaperFailPending   = 1
	advisoryLockReaperDelete        = 2
	advisoryLockReaperDeleteResults = 3
)

const staleJobError = "Job timed out in pending status"

// withReaperLock runs stmt under the reaper lock identified by minor and returns
// the affected row count. It returns 0 without running stmt when another reaper holds the lock.
func (r *JobRepo) withReaperLock(ctx context.Context, minor int, stmt string, args ...any) (int64, error) {
	var n int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, minor).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}
			res, err := tx.ExecContext(ctx, stmt, args...)
			if err != nil {
				return err
			}
			n, err = res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func validateReap(maxAge time.Duration, batchSize int) error {
	if batchSize <= 0 {
		return errors.New("batch size must be greater than zero")
	}
	if maxAge <= 0 {
		return errors.New("max age must be greater than zero")
	}
	return nil
}

// FailStalePendingJobs marks up to batchSize pending jobs created before now-maxAge as failed.
func (r *JobRepo) FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if err := validateReap(maxAge, batchSize); err != nil {
		return 0, err
	}
	now := r.timeProvider.Now().UTC()
	n, err := r.withReaperLock(ctx, advisoryLockReaperFailPending, `
		UPDATE jobs
		SET status = 'failed',
		    last_error = $4,
		    completed_at = $1,
		    updated_at = $1
		WHERE id IN (
		  SELECT id FROM jobs
		  WHERE status = 'pending'
		    AND created_at < $2
		  ORDER BY created_at
		  LIMIT $3
		)
	`, now, now.Add(-maxAge), batchSize, staleJobError)
	if err != nil {
		return 0, fmt.Errorf("fail stale pending jobs: %w", err)
	}
	return n, nil
}

// DeleteOldJobs deletes up to BatchSize jobs in Status that finished before now-MaxAge.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if !params.Status.Valid() {
		return 0, fmt.Errorf("invalid job status: %s", params.Status)
	}
	if err := validateReap(params.MaxAge, params.BatchSize); err != nil {
		return 0, err
	}
	cutoff := r.timeProvider.Now().Add(-params.MaxAge).UTC()
	n, err := r.withReaperLock(ctx, advisoryLockReaperDelete, `
		DELETE FROM jobs
		WHERE id IN (
		  SELECT id FROM jobs
		  WHERE status = $1
		    AND (completed_at < $2 OR (completed_at IS NULL AND updated_at < $2))
		  ORDER BY COALESCE(completed_at, updated_at)
		  LIMIT $3
		)
	`, params.Status, cutoff, params.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("delete old jobs: %w", err)
	}
	return n, nil
}

// DeleteOldJobResults deletes up to BatchSize job_results rows of JobKind last updated before now-MaxAge.
func (r *JobRepo) DeleteOldJobResults(ctx context.Context, params core.DeleteOldJobResultsParams) (int64, error) {
	if !params.JobKind.Valid() {
		return 0, fmt.Errorf("%w: %s", model.ErrInvalidJobKind, params.JobKind)
	}
	if err := validateReap(params.MaxAge, params.BatchSize); err != nil {
		return 0, err
	}
	cutoff := r.timeProvider.Now().Add(-params.MaxAge).UTC()
	n, err := r.withReaperLock(ctx, advisoryLockReaperDeleteResults, `
		DELETE FROM job_results
		USING (
		  SELECT ctid
		  FROM job_results
		  WHERE job_kind = $1
		    AND updated_at < $2
		  ORDER BY updated_at
		  LIMIT $3
		) sub
		WHERE job_results.ctid = sub.ctid
	`, params.JobKind, cutoff, params.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("delete old job_results: %w", err)
	}
	return n, nil
}
