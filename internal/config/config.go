// Package config handles robot simulator configuration from environment
// variables.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all simulator configuration.
type Config struct {
	// Connection
	HubURL string // WebSocket URL (ws:// or wss://)
	Token  string // Optional socket token from /api/login

	// Behavior
	RobotID           string        // Identity announced in register
	TelemetryInterval time.Duration // How often to send telemetry
	LogLevel          string        // Logging level (debug, info, warn, error)
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		HubURL:            "ws://localhost:4000/ws",
		RobotID:           hostname,
		TelemetryInterval: time.Second,
		LogLevel:          "info",
	}
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()

	if url := os.Getenv("FLEETBOT_URL"); url != "" {
		cfg.HubURL = url
	}
	cfg.Token = os.Getenv("FLEETBOT_TOKEN")

	if id := os.Getenv("FLEETBOT_ROBOT_ID"); id != "" {
		cfg.RobotID = id
	}

	if interval := os.Getenv("FLEETBOT_INTERVAL"); interval != "" {
		seconds, err := strconv.ParseFloat(interval, 64)
		if err != nil {
			return nil, errors.New("FLEETBOT_INTERVAL must be a number (seconds)")
		}
		cfg.TelemetryInterval = time.Duration(seconds * float64(time.Second))
	}

	if level := os.Getenv("FLEETBOT_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.HubURL == "" {
		return errors.New("hub URL is required")
	}
	if !strings.HasPrefix(c.HubURL, "ws://") && !strings.HasPrefix(c.HubURL, "wss://") {
		return errors.New("hub URL must start with ws:// or wss://")
	}
	if c.RobotID == "" {
		return errors.New("robot id is required")
	}
	if c.TelemetryInterval < 10*time.Millisecond {
		return errors.New("telemetry interval must be at least 10ms")
	}
	return nil
}
