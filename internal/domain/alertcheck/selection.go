// Package alertcheck implements the check_new_alerts job: selecting alerts that
// have newly become active, marking each processed, and reporting progress.
package alertcheck

import (
	"time"

	"github.com/upswyng/alert-worker/internal/domain/model"
)

// StaleWindow bounds how far back an unprocessed alert may have started and
// still be dispatched. Alerts older than this are skipped on purpose so a
// worker returning from an outage does not flood recipients.
const StaleWindow = 3 * time.Hour

// Eligible reports whether a is unprocessed and started within StaleWindow of
// now. The window's lower bound is inclusive.
func Eligible(a *model.Alert, now time.Time) bool {
	if a == nil || a.Start == nil || a.WasProcessed {
		return false
	}
	return !a.Start.Before(now.Add(-StaleWindow))
}

// SelectEligible returns the eligible alerts from active, preserving order.
// active is expected to hold alerts with start <= now.
func SelectEligible(active []*model.Alert, now time.Time) []*model.Alert {
	out := make([]*model.Alert, 0, len(active))
	for _, a := range active {
		if Eligible(a, now) {
			out = append(out, a)
		}
	}
	return out
}

// validateActive rejects malformed records handed back by the store.
func validateActive(active []*model.Alert) error {
	for i, a := range active {
		switch {
		case a == nil:
			return &SelectionInputError{Index: i, Err: ErrMissingID}
		case a.ID == "":
			return &SelectionInputError{Index: i, Err: ErrMissingID}
		case a.Start == nil || a.Start.IsZero():
			return &SelectionInputError{AlertID: a.ID, Index: i, Err: ErrMissingStart}
		}
	}
	return nil
}
