package core

import (
	"context"
	"time"

	"github.com/upswyng/alert-worker/internal/domain/model"
)

// ProgressSnapshot is the most recent progress value observed for a job.
type ProgressSnapshot struct {
	JobID     string        `json:"job_id"`
	Kind      model.JobKind `json:"kind"`
	Percent   int           `json:"percent"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ProgressPublisher fans progress out to observers that do not poll the jobs table.
type ProgressPublisher interface {
	// Publish stores snap as the latest value for its job and broadcasts it.
	Publish(ctx context.Context, snap ProgressSnapshot) error
	// Latest returns the last published snapshot, or nil when none is cached.
	Latest(ctx context.Context, jobID string) (*ProgressSnapshot, error)
	// Health checks the backing connection.
	Health(ctx context.Context) error
}
