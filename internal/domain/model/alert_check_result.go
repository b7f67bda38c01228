//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import "fmt"

// AlertCheckResult is the outcome of one check_new_alerts run.
//
// AlertsProcessed lists, in processing order, the ids of alerts that were
// eligible and whose processed flag was durably saved during the run.
type AlertCheckResult struct {
	Kind            JobKind  `json:"kind"`
	AlertsProcessed []string `json:"alerts_processed"`
	JobName         string   `json:"job_name"`
}

// NewAlertCheckResult builds a result for the given job, copying ids so the
// caller's accumulator can't alias it.
func NewAlertCheckResult(job *Job, ids []string) (*AlertCheckResult, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: nil job", ErrInvalidJobKind)
	}
	if job.Kind != JobKindCheckNewAlerts {
		return nil, fmt.Errorf("%w: %q cannot produce an alert check result", ErrInvalidJobKind, job.Kind)
	}
	processed := make([]string, len(ids))
	copy(processed, ids)
	return &AlertCheckResult{
		Kind:            job.Kind,
		AlertsProcessed: processed,
		JobName:         job.Name(),
	}, nil
}

// AlertCheckFailureResult is persisted for a run that stopped on a save failure.
type AlertCheckFailureResult struct {
	AlertCheckResult
	FailedAlertID string `json:"failed_alert_id"`
	Error         string `json:"error"`
}
