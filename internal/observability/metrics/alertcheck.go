package metrics

import (
	"time"

	obserrors "github.com/upswyng/alert-worker/internal/observability/errors"
	"github.com/upswyng/alert-worker/internal/observability/statsd"
)

// AlertCheckMetric summarises one check_new_alerts run.
type AlertCheckMetric struct {
	Active         int
	Eligible       int
	Processed      int
	NotifyFailures int
	Duration       time.Duration
	Err            error
}

// EmitAlertCheck emits the alert_check.* series for a run.
func EmitAlertCheck(sink statsd.Sink, in AlertCheckMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Eligible == 0:
		result = ResultNoop
	}
	tags := map[string]string{"result": result}
	if in.Err != nil {
		tags["error_class"] = obserrors.Classify(in.Err)
	}

	sink.Gauge("alert_check.active", float64(in.Active), nil)
	sink.Gauge("alert_check.eligible", float64(in.Eligible), nil)
	sink.Count("alert_check.processed", int64(in.Processed), tags)
	if in.NotifyFailures > 0 {
		sink.Count("alert_check.notify_failures", int64(in.NotifyFailures), nil)
	}
	if in.Duration > 0 {
		sink.Timing("alert_check.duration", in.Duration, tags)
	}
}

// EmitNotification counts one delivery attempt by sink name.
func EmitNotification(sink statsd.Sink, target string, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"sink": target, "result": ResultSuccess}
	if err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(err)
	}
	sink.Count("alert.notification", 1, tags)
}
