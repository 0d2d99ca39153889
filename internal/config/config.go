// Package config loads runtime settings for the relay server from the
// environment, falling back to defaults for anything unset or unparseable.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers understood by Load.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds the server configuration.
type Config struct {
	Port         string
	StoreDriver  string
	DatabaseURL  string
	SQLitePath   string
	JWTSecret    string
	CORSOrigins  string
	LogLevel     string
	SendBuffer   int
	MaxFrameSize int64

	// HeartbeatInterval is the period of server-initiated heartbeat_response frames.
	HeartbeatInterval time.Duration
	// StaleTimeout is how long an online user may go without a heartbeat before the reaper flips them offline.
	StaleTimeout time.Duration
	ReapInterval time.Duration
	StoreTimeout time.Duration
	WriteTimeout time.Duration
	// IdleTimeout closes a session that sends nothing (frames or pongs) for this long. Zero disables it.
	IdleTimeout time.Duration
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Port:              "8080",
		StoreDriver:       DriverPostgres,
		SQLitePath:        "chat.db",
		CORSOrigins:       "http://localhost:3000",
		LogLevel:          "info",
		SendBuffer:        256,
		MaxFrameSize:      64 * 1024,
		HeartbeatInterval: 30 * time.Second,
		StaleTimeout:      5 * time.Minute,
		ReapInterval:      time.Minute,
		StoreTimeout:      5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}

// Load reads the configuration from environment variables.
// Call godotenv.Load beforehand if a .env file should be honoured.
func Load() *Config {
	cfg := Default()

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if driver := os.Getenv("STORE_DRIVER"); driver != "" {
		cfg.StoreDriver = strings.ToLower(strings.TrimSpace(driver))
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		cfg.SQLitePath = path
	}
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = origins
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}

	cfg.SendBuffer = parseInt(os.Getenv("SEND_BUFFER"), cfg.SendBuffer)
	cfg.MaxFrameSize = int64(parseInt(os.Getenv("MAX_FRAME_SIZE"), int(cfg.MaxFrameSize)))

	cfg.HeartbeatInterval = parseDuration(os.Getenv("HEARTBEAT_INTERVAL"), cfg.HeartbeatInterval)
	cfg.StaleTimeout = parseDuration(os.Getenv("STALE_TIMEOUT"), cfg.StaleTimeout)
	cfg.ReapInterval = parseDuration(os.Getenv("REAP_INTERVAL"), cfg.ReapInterval)
	cfg.StoreTimeout = parseDuration(os.Getenv("STORE_TIMEOUT"), cfg.StoreTimeout)
	cfg.WriteTimeout = parseDuration(os.Getenv("WRITE_TIMEOUT"), cfg.WriteTimeout)

	if idle, ok := os.LookupEnv("IDLE_TIMEOUT"); ok {
		if d, err := time.ParseDuration(idle); err == nil && d >= 0 {
			cfg.IdleTimeout = d
		}
	}

	return cfg
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}

	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL environment variable is not set")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH must not be empty")
		}
	case DriverMemory:
	default:
		return errors.New("STORE_DRIVER must be one of postgres, sqlite, memory")
	}

	return nil
}

func parseInt(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts Go duration strings ("30s") or a bare number of seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
