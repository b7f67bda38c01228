package alertcheck

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/upswyng/alert-worker/internal/domain/model"
)

var (
	// ErrMissingStart marks an active alert returned without a start instant.
	ErrMissingStart = errors.New("alert has no start")
	// ErrMissingID marks an active alert returned without an identifier.
	ErrMissingID = errors.New("alert has no id")
)

// SelectionInputError reports a malformed alert returned by the store. It
// aborts the run before any alert is processed.
type SelectionInputError struct {
	AlertID string
	Index   int
	Err     error
}

func (e *SelectionInputError) Error() string {
	if e.AlertID == "" {
		return fmt.Sprintf("invalid active alert at index %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("invalid active alert %s: %v", e.AlertID, e.Err)
}

func (e *SelectionInputError) Unwrap() error { return e.Err }

// ProcessingFailure reports that saving one alert failed. Alerts saved before
// it keep their processed flag; Partial lists them.
type ProcessingFailure struct {
	AlertID string
	Cause   error
	Partial *model.AlertCheckResult
}

func (e *ProcessingFailure) Error() string {
	return fmt.Sprintf("process alert %s: %v", e.AlertID, e.Cause)
}

func (e *ProcessingFailure) Unwrap() error { return e.Cause }

// AlertsProcessed returns the ids saved before the failure.
func (e *ProcessingFailure) AlertsProcessed() []string {
	if e == nil || e.Partial == nil {
		return nil
	}
	return e.Partial.AlertsProcessed
}

// PartialResult exposes the partial run result for persistence by the job runner.
func (e *ProcessingFailure) PartialResult() any {
	if e == nil || e.Partial == nil {
		return nil
	}
	return &model.AlertCheckFailureResult{
		AlertCheckResult: *e.Partial,
		FailedAlertID:    e.AlertID,
		Error:            e.Cause.Error(),
	}
}

// FailureMetadata describes the failure for operator notifications.
func (e *ProcessingFailure) FailureMetadata() map[string]string {
	if e == nil {
		return nil
	}
	processed := e.AlertsProcessed()
	md := map[string]string{
		"failed_alert_id":        e.AlertID,
		"alerts_processed_count": strconv.Itoa(len(processed)),
	}
	if len(processed) > 0 {
		md["alerts_processed"] = strings.Join(processed, ",")
	}
	return md
}

// NotifyError wraps a notifier failure. It is logged and counted but never
// fails the run or reverts the processed flag.
type NotifyError struct {
	AlertID string
	Cause   error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify alert %s: %v", e.AlertID, e.Cause)
}

func (e *NotifyError) Unwrap() error { return e.Cause }
