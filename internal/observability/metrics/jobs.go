// Package metrics names and tags the worker's StatsD series.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/upswyng/alert-worker/internal/observability/errors"
	"github.com/upswyng/alert-worker/internal/observability/statsd"
)

// Result tag values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Job lifecycle transitions.
const (
	TransitionReserved  = "reserved"
	TransitionCompleted = "completed"
	TransitionFailed    = "failed"
	TransitionEnqueued  = "enqueued"
	TransitionReaped    = "reaped"
)

// JobMetric describes one job lifecycle event.
type JobMetric struct {
	JobKind    string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits job.transition and, when timed, job.duration.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"job_kind":   in.JobKind,
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, maps.Clone(tags))
	}
}

// ReapMetric describes one reaper pass over a single target.
type ReapMetric struct {
	Target   string
	Affected int64
	Err      error
}

// EmitReap counts rows touched by the reaper.
func EmitReap(sink statsd.Sink, in ReapMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"target": in.Target, "result": ResultSuccess}
	if in.Err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	sink.Count("job.reaper.rows", in.Affected, tags)
}
