package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/upswyng/alert-worker/internal/core"
	"github.com/upswyng/alert-worker/internal/data/pgxutil"
	"github.com/upswyng/alert-worker/internal/domain/model"
)

// JobResultRepo persists the JSON result of each job run, one row per job.
type JobResultRepo struct {
	DB *sql.DB
}

// NewJobResultRepo constructs a JobResultRepo.
func NewJobResultRepo(db *sql.DB) *JobResultRepo {
	return &JobResultRepo{DB: db}
}

// Upsert stores the result for a job, replacing any earlier attempt's result.
func (r *JobResultRepo) Upsert(ctx context.Context, params core.UpsertJobResultParams) error {
	if r == nil || r.DB == nil {
		return ErrJobResultsNotConfigured
	}
	if params.JobID == "" {
		return ErrJobIDRequired
	}
	if !params.JobKind.Valid() {
		return fmt.Errorf("%w: %s", model.ErrInvalidJobKind, params.JobKind)
	}
	const query = `
		INSERT INTO job_results (job_id, job_kind, result, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (job_id)
		DO UPDATE SET
			job_kind = EXCLUDED.job_kind,
			result = EXCLUDED.result,
			updated_at = now()`
	if _, err := r.DB.ExecContext(ctx, query, params.JobID, params.JobKind, params.Result); err != nil {
		return fmt.Errorf("upsert job_results: %w", err)
	}
	return nil
}

// GetByJobID retrieves the stored result for a job.
func (r *JobResultRepo) GetByJobID(ctx context.Context, jobID string) (*model.JobResult, error) {
	if r == nil || r.DB == nil {
		return nil, ErrJobResultsNotConfigured
	}
	if jobID == "" {
		return nil, ErrJobIDRequired
	}

	const query = `
		SELECT job_id, job_kind, result, created_at, updated_at
		FROM job_results
		WHERE job_id = $1`

	var res *model.JobResult
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, jobID)
		if err != nil {
			return err
		}
		res, err = pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.JobResult])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobResultsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job_results: %w", err)
	}
	return res, nil
}
