// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Export   ExportConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response.
	// Zero disables the limit: a full export batch must always be able
	// to finish inside one request (default: 0s).
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RedisConfig holds settings for the transient session store.
type RedisConfig struct {
	// Addr is the Redis host:port (default: localhost:6379)
	Addr string `env:"REDIS_ADDR" default:"localhost:6379"`

	// Password is the Redis password (default: empty)
	Password string `env:"REDIS_PASSWORD"`

	// DB is the Redis database number (default: 0)
	DB int `env:"REDIS_DB" default:"0"`
}

// ExportConfig holds CSV export settings.
type ExportConfig struct {
	// Dir is the directory the export file is written to (default: uploads)
	Dir string `env:"EXPORT_DIR" default:"uploads"`

	// FileName is the name of the export artifact inside Dir (default: edd-export.csv)
	FileName string `env:"EXPORT_FILE_NAME" default:"edd-export.csv"`

	// BatchSize is the number of licenses processed per batch (default: 500).
	// Values above the fixed maximum are clamped at runtime.
	BatchSize int `env:"EXPORT_BATCH_SIZE" default:"500"`

	// SessionTTL bounds the lifetime of an export run. Choose it to cover
	// the worst-case total export duration; the session expires naturally
	// once the run finishes or is abandoned (default: 1h).
	SessionTTL time.Duration `env:"EXPORT_SESSION_TTL" default:"1h"`

	// SpawnTimeout is the HTTP client timeout for the detached self-call.
	// The call is fire-and-forget; the response is discarded (default: 2s).
	SpawnTimeout time.Duration `env:"EXPORT_SPAWN_TIMEOUT" default:"2s"`

	// DebugRows logs every projected row at debug level (default: false)
	DebugRows bool `env:"EXPORT_DEBUG_ROWS" default:"false"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey gates the admin endpoints behind X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
