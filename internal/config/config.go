// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
	_ "time/tzdata" // CALENDAR_TIMEZONE must resolve on hosts without zoneinfo
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Ingest   IngestConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Calendar CalendarConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds the shared reservation store settings.
// An empty URL keeps reservations in process memory only.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// DocumentID names the shared reservation document (default: reservations)
	DocumentID string `env:"STORE_DOCUMENT_ID" default:"reservations"`

	// Channel is the LISTEN/NOTIFY channel for document changes
	Channel string `env:"STORE_CHANNEL" default:"reservation_documents"`
}

// IngestConfig holds export file ingestion settings.
type IngestConfig struct {
	// MaxFileSize is the maximum allowed size of one file in bytes (default: 20MB)
	MaxFileSize int64 `env:"INGEST_MAX_FILE_SIZE" default:"20971520"`

	// MaxFiles is the maximum number of files in one ingestion (default: 10)
	MaxFiles int `env:"INGEST_MAX_FILES" default:"10"`

	// MaxConcurrent is the maximum number of parallel ingestions (default: 4)
	MaxConcurrent int `env:"INGEST_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for an ingest slot (default: 30s)
	MaxWaitTime time.Duration `env:"INGEST_MAX_WAIT_TIME" default:"30s"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// IngestLimit is requests per minute for ingest endpoints (default: 10)
	IngestLimit int `env:"RATE_LIMIT_INGEST" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey gates /api routes behind the shared secret (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted shared secrets
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// CalendarConfig holds the calendar day settings.
type CalendarConfig struct {
	// Timezone is the IANA zone whose midnight starts "today" (default: Asia/Tokyo)
	Timezone string `env:"CALENDAR_TIMEZONE" default:"Asia/Tokyo"`

	// ReclassifySpec is the cron spec for day-change reclassification (default: midnight)
	ReclassifySpec string `env:"CALENDAR_RECLASSIFY_SPEC" default:"0 0 * * *"`
}

// RedisConfig holds the optional Redis store settings. Used only when
// DATABASE_URL is empty and REDIS_URL is set.
type RedisConfig struct {
	// URL is a redis:// connection URL
	URL string `env:"REDIS_URL"`

	// Key holds the reservation document
	Key string `env:"REDIS_KEY" default:"staygrid:reservations"`

	// Channel receives the key on every save
	Channel string `env:"REDIS_CHANNEL" default:"staygrid:reservations:changed"`
}

// Store backends selected by StoreBackend.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// UseMemoryStore reports whether no database is configured.
func (c *DatabaseConfig) UseMemoryStore() bool {
	return c.URL == ""
}

// StoreBackend picks the shared store: Postgres when DATABASE_URL is set,
// then Redis when REDIS_URL is set, else the in-process memory store.
func (c *Config) StoreBackend() string {
	switch {
	case c.Database.URL != "":
		return BackendPostgres
	case c.Redis.URL != "":
		return BackendRedis
	default:
		return BackendMemory
	}
}

// Location loads the configured time zone.
func (c *CalendarConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
