package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	ErrJobResultsNotConfigured = errors.New("job results repository not configured")
	ErrJobResultsNotFound      = errors.New("job results not found")
	ErrJobIDRequired           = errors.New("job_id is required")

	// ErrAlertNotFound is returned when an alert is not found.
	ErrAlertNotFound = errors.New("alert not found")
	// ErrAlertIDRequired is returned when an alert operation is missing its id.
	ErrAlertIDRequired = errors.New("alert id is required")
)
