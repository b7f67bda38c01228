package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/upswyng/alert-worker/internal/core"
	"github.com/upswyng/alert-worker/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeAlertCheckRunner runs the check_new_alerts job runner.
	ServiceModeAlertCheckRunner ServiceMode = "alert-check-runner"
	// ServiceModeScheduler enqueues the recurring alert check.
	ServiceModeScheduler ServiceMode = "scheduler"
	// ServiceModeReaper runs the job reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeAlertCheckRunner,
		ServiceModeScheduler,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeAlertCheckRunner, ServiceModeScheduler, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: alert-check-runner, scheduler, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// AlertCheckRunnerConfig contains alert check runner service configuration.
type AlertCheckRunnerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"ALERT_CHECK_RUNNER_CONCURRENCY" envDefault:"1"`

	// JobLease is the duration to lease an alert check job. The runner renews it
	// every half lease while the job runs.
	JobLease time.Duration `env:"ALERT_CHECK_RUNNER_JOB_LEASE" envDefault:"30s"`

	// PublishProgress mirrors job progress to Redis for observers.
	PublishProgress bool `env:"ALERT_CHECK_RUNNER_PUBLISH_PROGRESS" envDefault:"false"`

	// ProgressTTL is how long the last progress value stays readable in Redis.
	ProgressTTL time.Duration `env:"ALERT_CHECK_RUNNER_PROGRESS_TTL" envDefault:"1h"`
}

// Sanitize applies guardrails to alert check runner configuration values.
func (a *AlertCheckRunnerConfig) Sanitize() {
	if a.Concurrency < 1 {
		a.Concurrency = 1
	}
	if a.JobLease < 5*time.Second {
		a.JobLease = 5 * time.Second
	}
	if a.ProgressTTL < time.Minute {
		a.ProgressTTL = time.Minute
	}
}

// SchedulerConfig contains scheduler service configuration.
type SchedulerConfig struct {
	// Interval is the scheduler tick interval.
	Interval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1m"`

	// Priority is the priority given to scheduled jobs.
	Priority int `env:"SCHEDULER_PRIORITY" envDefault:"0"`

	// MaxRetries is the maximum number of attempts for a scheduled job.
	MaxRetries int `env:"SCHEDULER_MAX_RETRIES" envDefault:"3"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	if s.Interval < time.Second {
		s.Interval = time.Second
	}
	s.Priority = min(max(s.Priority, 0), 100)
	if s.MaxRetries < 1 {
		s.MaxRetries = 1
	}
}

// JobConfig converts the scheduler settings into the service's job template.
func (s SchedulerConfig) JobConfig() core.SchedulerConfig {
	return core.SchedulerConfig{
		Kind:       model.JobKindCheckNewAlerts,
		Priority:   s.Priority,
		MaxRetries: s.MaxRetries,
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// PendingMaxAge is the maximum age for pending jobs before they are marked as failed.
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"1h"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// JobResultsMaxAge is the maximum age for persisted job_results rows before deletion.
	// These rows keep the alertsProcessed history after their jobs are reaped.
	JobResultsMaxAge time.Duration `env:"REAPER_JOB_RESULTS_MAX_AGE" envDefault:"2160h"` // 90 days

	// BatchSize is the maximum number of rows to process per operation.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.PendingMaxAge < 5*time.Minute {
		r.PendingMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}
	if r.JobResultsMaxAge < 24*time.Hour {
		r.JobResultsMaxAge = 24 * time.Hour
	}
	r.BatchSize = min(max(r.BatchSize, 1), 10000)
}
