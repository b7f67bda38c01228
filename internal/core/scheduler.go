package core

import (
	"context"
	"time"

	"github.com/upswyng/alert-worker/internal/domain/model"
)

// JobIntrospector defines the interface for inspecting in-flight jobs.
type JobIntrospector interface {
	// ActiveJobExists reports whether a job of kind is pending, or running with
	// an unexpired lease at now.
	ActiveJobExists(ctx context.Context, kind model.JobKind, now time.Time) (bool, error)
}

// JobScheduler defines the interface for the scheduler service.
type JobScheduler interface {
	// Tick enqueues the recurring job if it is not already in flight.
	// Returns the number of jobs enqueued.
	Tick(ctx context.Context, now time.Time) (int, error)
}

// SchedulerConfig holds configuration for the recurring alert check.
type SchedulerConfig struct {
	Kind       model.JobKind `json:"kind"`
	Priority   int           `json:"priority"`
	MaxRetries int           `json:"max_retries"`
}

// DefaultSchedulerConfig returns a SchedulerConfig with sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Kind:       model.JobKindCheckNewAlerts,
		Priority:   0,
		MaxRetries: 3,
	}
}
