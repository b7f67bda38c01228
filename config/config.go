package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Postgres, Redis and NATS connections
//   - services.go: Service mode and worker configuration
//   - delivery.go: Where newly processed alerts are sent
//   - observability.go: Metrics and failure notifications
type AppConfig struct {
	// IsDev switches logging to a human-readable text handler.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Connections
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	NATS     NATSConfig  `envPrefix:"NATS_"`

	// Services is a comma-delimited list of enabled services.
	// Valid values: alert-check-runner, scheduler, reaper
	Services string `env:"SERVICES" envDefault:"alert-check-runner,scheduler,reaper"`

	AlertCheckRunner AlertCheckRunnerConfig
	Scheduler        SchedulerConfig
	Reaper           ReaperConfig
	Delivery         DeliveryConfig
	Observability    ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Postgres.Sanitize()
	c.NATS.Sanitize()
	c.AlertCheckRunner.Sanitize()
	c.Scheduler.Sanitize()
	c.Reaper.Sanitize()
	c.Delivery.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsAlertCheckRunnerEnabled returns true if the alert check runner is enabled.
func (c *AppConfig) IsAlertCheckRunnerEnabled() bool {
	return c.serviceEnabled(ServiceModeAlertCheckRunner)
}

// IsSchedulerEnabled returns true if the scheduler service is enabled.
func (c *AppConfig) IsSchedulerEnabled() bool {
	return c.serviceEnabled(ServiceModeScheduler)
}

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.serviceEnabled(ServiceModeReaper)
}

// NeedsRedis reports whether any enabled service publishes job progress.
func (c *AppConfig) NeedsRedis() bool {
	return c.IsAlertCheckRunnerEnabled() && c.AlertCheckRunner.PublishProgress
}

// NeedsNATS reports whether any enabled service publishes alerts to NATS.
func (c *AppConfig) NeedsNATS() bool {
	return c.IsAlertCheckRunnerEnabled() && c.Delivery.NATSEnabled
}
