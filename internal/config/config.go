// Package config loads application settings from environment variables with
// defaults, and validates them on startup so misconfiguration fails fast.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Identity IdentityConfig
	Mail     MailConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including the wait for
	// running imports to finish.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests other than
	// commit and account retry.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"5m"`
}

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// StoreConfig selects where records and history live.
type StoreConfig struct {
	Driver string `env:"STORE_DRIVER" default:"postgres"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Required with the postgres driver.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds import processing settings.
type ImportConfig struct {
	// MaxFileSize is the maximum upload size in bytes (default: 20MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20971520"`

	// MaxConcurrent is the number of commits allowed at once per process
	MaxConcurrent int           `env:"IMPORT_MAX_CONCURRENT" default:"5"`
	MaxWaitTime   time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// AccountWorkers bounds parallel account provisioning within one import
	AccountWorkers int           `env:"IMPORT_ACCOUNT_WORKERS" default:"4"`
	AccountTimeout time.Duration `env:"IMPORT_ACCOUNT_TIMEOUT" default:"10s"`
	EmailTimeout   time.Duration `env:"IMPORT_EMAIL_TIMEOUT" default:"15s"`

	// LoginURL is included in credential emails when set
	LoginURL string `env:"IMPORT_LOGIN_URL"`

	// CatalogPath names an extra YAML catalog installed next to the built-in modules
	CatalogPath string `env:"IMPORT_CATALOG_PATH"`
}

// RateLimitConfig holds per-client token bucket settings.
type RateLimitConfig struct {
	Enabled           bool    `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerSecond float64 `env:"RATE_LIMIT_RPS" default:"5"`
	Burst             int     `env:"RATE_LIMIT_BURST" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Identity providers.
const (
	IdentityLocal    = "local"
	IdentitySupabase = "supabase"
)

// IdentityConfig selects who creates login accounts.
type IdentityConfig struct {
	Provider           string        `env:"IDENTITY_PROVIDER" default:"local"`
	SupabaseURL        string        `env:"SUPABASE_URL"`
	SupabaseServiceKey string        `env:"SUPABASE_SERVICE_ROLE_KEY" envAlt:"SUPABASE_SERVICE_KEY"`
	Timeout            time.Duration `env:"IDENTITY_TIMEOUT" default:"30s"`
}

// MailConfig holds SMTP settings. When disabled, credential emails are only
// logged.
type MailConfig struct {
	Enabled  bool   `env:"MAIL_ENABLED" default:"false"`
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" default:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"MAIL_FROM"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
