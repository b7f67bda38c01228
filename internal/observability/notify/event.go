// Package notify delivers job failure notifications to operator channels.
package notify

import (
	"context"
	"errors"
	"time"
)

// Severity values understood by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// JobFailurePayload is the canonical job failure notification.
type JobFailurePayload struct {
	JobID      string
	JobKind    string
	Error      string
	ErrorClass string
	Severity   string
	// Final is false while the job still has retries left.
	Final      bool
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink consumes job failure notifications.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements Sink.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}

// Multi sends to every sink and joins their errors.
type Multi []Sink

// SendJobFailure implements Sink.
func (m Multi) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.SendJobFailure(ctx, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
