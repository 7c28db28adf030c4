// Package server wires the robofleet hub into an HTTP server alongside the
// REST endpoints used by dashboards.
package server

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/markus-barta/robofleet/internal/hub"
)

// Config holds server configuration from environment variables.
type Config struct {
	// Server
	ListenAddr string
	StaticDir  string // served at /

	// Authentication
	JWTSecret    string        // HS256 signing key for socket tokens
	TokenTTL     time.Duration // lifetime of issued tokens
	PasswordHash string        // optional bcrypt hash required at login
	TOTPSecret   string        // optional, for 2FA

	// Rate limiting
	RateLimitRequests int           // max login attempts
	RateLimitWindow   time.Duration // time window

	// Storage
	DataDir      string
	DatabasePath string

	// Hub
	PingInterval   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	RequireAuth    bool     // gate telemetry/command/signal/register on auth
	AllowedOrigins []string // optional, for WebSocket origin validation

	LogLevel string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	dataDir := getEnv("ROBOFLEET_DATA_DIR", "data")

	cfg := &Config{
		ListenAddr:        getEnv("ROBOFLEET_LISTEN", ":4000"),
		StaticDir:         getEnv("ROBOFLEET_STATIC_DIR", "public"),
		JWTSecret:         os.Getenv("ROBOFLEET_JWT_SECRET"),
		TokenTTL:          parseDuration("ROBOFLEET_TOKEN_TTL", 12*time.Hour),
		PasswordHash:      os.Getenv("ROBOFLEET_PASSWORD_HASH"),
		TOTPSecret:        os.Getenv("ROBOFLEET_TOTP_SECRET"),
		RateLimitRequests: parseInt("ROBOFLEET_RATE_LIMIT", 5),
		RateLimitWindow:   parseDuration("ROBOFLEET_RATE_WINDOW", 1*time.Minute),
		DataDir:           dataDir,
		DatabasePath:      getEnv("ROBOFLEET_DB_PATH", dataDir+"/robofleet.db"),
		PingInterval:      parseDuration("ROBOFLEET_PING_INTERVAL", 30*time.Second),
		SendBuffer:        parseInt("ROBOFLEET_SEND_BUFFER", 256),
		MaxMessageSize:    int64(parseInt("ROBOFLEET_MAX_MESSAGE", 1<<20)),
		RequireAuth:       parseBool("ROBOFLEET_REQUIRE_AUTH", false),
		AllowedOrigins:    parseList("ROBOFLEET_ALLOWED_ORIGINS"),
		LogLevel:          getEnv("ROBOFLEET_LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var errs []string

	if c.JWTSecret == "" {
		errs = append(errs, "ROBOFLEET_JWT_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, "ROBOFLEET_TOKEN_TTL must be positive")
	}
	if c.PingInterval < time.Second {
		errs = append(errs, "ROBOFLEET_PING_INTERVAL must be at least 1s")
	}
	if c.SendBuffer < 1 {
		errs = append(errs, "ROBOFLEET_SEND_BUFFER must be at least 1")
	}
	if c.RateLimitRequests < 1 {
		errs = append(errs, "ROBOFLEET_RATE_LIMIT must be at least 1")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// HubOptions returns the hub settings.
func (c *Config) HubOptions() hub.Options {
	return hub.Options{
		PingInterval:   c.PingInterval,
		SendBuffer:     c.SendBuffer,
		MaxMessageSize: c.MaxMessageSize,
		RequireAuth:    c.RequireAuth,
		AllowedOrigins: c.AllowedOrigins,
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func parseDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
