package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the gateway.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	IdentityBaseURL string `envconfig:"IDENTITY_BASE_URL" default:"http://127.0.0.1:4000"`
	IdentityAPIKey  string `envconfig:"IDENTITY_API_KEY"`

	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	// MaintenanceSecret signs service-account bypass tokens. Missing
	// secret disables the bypass entirely rather than failing startup.
	MaintenanceSecret string `envconfig:"MAINTENANCE_SECRET"`
	// ServiceAccounts is a JSON list of {id, tiers[]} entries.
	ServiceAccounts string `envconfig:"SERVICE_ACCOUNTS"`

	// RedisAddr enables the fleet-wide rate-limit store and the audit
	// task queue. Empty keeps both in-process.
	RedisAddr string `envconfig:"REDIS_ADDR"`

	// PGDSN enables the Postgres audit sink in the worker.
	PGDSN string `envconfig:"PG_DSN"`
	// PGMaxConns caps the audit sink pool; the worker is the only
	// writer so it stays small.
	PGMaxConns int32 `envconfig:"PG_MAX_CONNS" default:"4"`

	// AuditBaseURL is the HTTP audit collector; used when no queue is
	// configured.
	AuditBaseURL   string `envconfig:"AUDIT_BASE_URL"`
	AuditAPIKey    string `envconfig:"AUDIT_API_KEY"`
	AuditQueueSize int    `envconfig:"AUDIT_QUEUE_SIZE" default:"1024"`

	// GlobalRateLimit caps total requests per client IP per minute in
	// the middleware stack, before policy-scoped limits apply.
	GlobalRateLimit int `envconfig:"GLOBAL_RATE_LIMIT" default:"600"`

	RateLimitSweepInterval time.Duration `envconfig:"RATE_LIMIT_SWEEP_INTERVAL" default:"1m"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.IdentityBaseURL == "" {
		return nil, errors.New("identity base url must be provided")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
