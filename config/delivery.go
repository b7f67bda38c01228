package config

import (
	"strings"
	"time"
)

// DefaultNATSSubject is the subject newly processed alerts are published on.
const DefaultNATSSubject = "alerts.new"

// DeliveryConfig selects where newly processed alerts are sent. Every enabled
// sink receives every alert.
type DeliveryConfig struct {
	// LogEnabled writes each delivered alert to the structured log.
	LogEnabled bool `env:"DELIVERY_LOG_ENABLED" envDefault:"true"`

	// NATSEnabled publishes each alert to NATSSubject.
	NATSEnabled bool   `env:"DELIVERY_NATS_ENABLED" envDefault:"false"`
	NATSSubject string `env:"DELIVERY_NATS_SUBJECT" envDefault:"alerts.new"`

	// Projection is an optional JMESPath expression applied to the alert event
	// before it is published.
	Projection string `env:"DELIVERY_PROJECTION"`

	// SlackWebhookURL posts a short message per alert when set.
	SlackWebhookURL string `env:"DELIVERY_SLACK_WEBHOOK_URL"`
	SlackChannel    string `env:"DELIVERY_SLACK_CHANNEL"`

	// Timeout bounds a single delivery attempt.
	Timeout time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"5s"`
}

// Sanitize normalises delivery configuration values.
func (c *DeliveryConfig) Sanitize() {
	c.NATSSubject = strings.TrimSpace(c.NATSSubject)
	if c.NATSSubject == "" {
		c.NATSSubject = DefaultNATSSubject
	}
	c.Projection = strings.TrimSpace(c.Projection)
	c.SlackWebhookURL = strings.TrimSpace(c.SlackWebhookURL)
	c.SlackChannel = strings.TrimSpace(c.SlackChannel)
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// SlackEnabled reports whether per-alert Slack messages are configured.
func (c *DeliveryConfig) SlackEnabled() bool {
	return c.SlackWebhookURL != ""
}
