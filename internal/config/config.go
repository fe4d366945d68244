// Package config loads catalogd settings from environment variables.
// Every field has an env tag and most have a default; Load validates the
// result so a bad deployment fails at startup instead of on the first job.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Worker    WorkerConfig
	Queue     QueueConfig
	Upload    UploadConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Scheduler SchedulerConfig
	POS       POSConfig
	Notify    NotifyConfig
	Registry  RegistryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds the graceful shutdown, including the wait for
	// in-flight uploads (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is either a PostgreSQL connection string or "sqlite:<path>"
	// (required). DB_URL is accepted for compatibility.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true" secret:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies pending migrations on startup (default: false)
	AutoMigrate bool `env:"AUTO_MIGRATE" default:"false"`
}

// WorkerConfig sizes the job worker pool.
type WorkerConfig struct {
	// Concurrency is the number of jobs processed in parallel (default: 4)
	Concurrency int `env:"WORKER_CONCURRENCY" default:"4"`

	// PollInterval is how long an idle worker sleeps before claiming again
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" default:"1s"`

	// JobTimeout bounds a single job run (default: 10m)
	JobTimeout time.Duration `env:"WORKER_JOB_TIMEOUT" default:"10m"`
}

// QueueConfig holds job queue settings.
type QueueConfig struct {
	// LeaseTimeout is how long a claimed job may run before it is requeued
	// for another worker. Must exceed WORKER_JOB_TIMEOUT.
	LeaseTimeout time.Duration `env:"QUEUE_LEASE_TIMEOUT" default:"20m"`

	// SerializePerRestaurant keeps one import per restaurant in flight
	SerializePerRestaurant bool `env:"QUEUE_SERIALIZE_PER_RESTAURANT" default:"true"`
}

// UploadConfig holds spreadsheet upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 10MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"10485760"`

	// MaxConcurrent is the maximum number of parallel parses (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds parsing and queueing one upload (default: 2m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"2m"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the API limit per client IP (default: 120)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`
}

// SecurityConfig holds request authentication settings.
type SecurityConfig struct {
	// JWTSecret verifies HS256 bearer tokens
	JWTSecret string `env:"JWT_SECRET" secret:"true"`

	// RequireAuth rejects requests without a valid bearer token (default: true).
	// When false every request runs as the system principal.
	RequireAuth bool `env:"REQUIRE_AUTH" default:"true"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Forwarded-For headers are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// CORSOrigins is a comma-separated list of allowed browser origins
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// SchedulerConfig holds the maintenance intervals.
type SchedulerConfig struct {
	TokenRefreshInterval time.Duration `env:"TOKEN_REFRESH_INTERVAL" default:"15m"`

	// TokenRefreshWindow refreshes credentials expiring within this window
	TokenRefreshWindow time.Duration `env:"TOKEN_REFRESH_WINDOW" default:"1h"`

	LeaseCheckInterval time.Duration `env:"LEASE_CHECK_INTERVAL" default:"1m"`

	// AuditRetentionDays is how long upload audit entries are kept (default: 90)
	AuditRetentionDays int `env:"AUDIT_RETENTION_DAYS" default:"90"`

	AuditPurgeInterval time.Duration `env:"AUDIT_PURGE_INTERVAL" default:"24h"`
}

// AuditRetention returns AuditRetentionDays as a duration.
func (c SchedulerConfig) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionDays) * 24 * time.Hour
}

// POSConfig holds the point-of-sale integration settings. The integration
// is disabled while ClientID is empty.
type POSConfig struct {
	APIBaseURL   string `env:"POS_API_BASE_URL" default:"https://api.clover.com"`
	TokenURL     string `env:"POS_TOKEN_URL" default:"https://www.clover.com/oauth/v2/refresh"`
	ClientID     string `env:"POS_CLIENT_ID"`
	ClientSecret string `env:"POS_CLIENT_SECRET" secret:"true"`

	// CredentialsKey is the base64 key that seals stored tokens
	CredentialsKey string `env:"POS_CREDENTIALS_KEY" secret:"true"`

	HTTPTimeout time.Duration `env:"POS_HTTP_TIMEOUT" default:"30s"`
}

// Enabled reports whether the POS integration is configured.
func (c POSConfig) Enabled() bool {
	return c.ClientID != ""
}

// NotifyConfig holds notification settings. Telegram delivery is disabled
// while TelegramToken is empty; notifications are always logged.
type NotifyConfig struct {
	TelegramToken  string `env:"TELEGRAM_BOT_TOKEN" secret:"true"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`
}

// RegistryConfig locates the master option registry.
type RegistryConfig struct {
	// Path is a YAML file; empty uses the built-in defaults
	Path string `env:"REGISTRY_PATH"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
