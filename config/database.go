package config

import (
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"alertworker"`
	Password string `env:"PASSWORD"                envDefault:"alertworker"`
	Name     string `env:"NAME"                    envDefault:"alertworker"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// MaxOpenConns bounds the pool; the runner holds one extra connection per LISTEN.
	MaxOpenConns int `env:"MAX_OPEN_CONNS" envDefault:"10"`
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// Sanitize applies guardrails to database configuration values.
func (c *DBConfig) Sanitize() {
	if c.MaxOpenConns < 2 {
		c.MaxOpenConns = 2
	}
	if c.SSLMode = strings.TrimSpace(c.SSLMode); c.SSLMode == "" {
		c.SSLMode = "disable"
	}
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL            string        `env:"URL"             envDefault:"nats://127.0.0.1:4222"`
	Name           string        `env:"CLIENT_NAME"     envDefault:"alert-worker"`
	Token          string        `env:"TOKEN"`
	User           string        `env:"USER"`
	Password       string        `env:"PASSWORD"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`
	ReconnectWait  time.Duration `env:"RECONNECT_WAIT"  envDefault:"2s"`
	MaxReconnects  int           `env:"MAX_RECONNECTS"  envDefault:"60"`
}

// Sanitize applies guardrails to NATS configuration values.
func (c *NATSConfig) Sanitize() {
	c.URL = strings.TrimSpace(c.URL)
	if c.Name = strings.TrimSpace(c.Name); c.Name == "" {
		c.Name = defaultObservabilityName
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.MaxReconnects < -1 {
		c.MaxReconnects = -1
	}
}
