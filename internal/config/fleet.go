package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FleetFile describes several simulated robots driven by one fleetbot
// process. Fields left empty fall back to the environment config.
//
//	url: ws://localhost:4000/ws
//	token: ""
//	interval: 500ms
//	robots:
//	  - id: amr-1
//	  - id: amr-2
//	    interval: 2s
type FleetFile struct {
	URL      string        `yaml:"url"`
	Token    string        `yaml:"token"`
	Interval time.Duration `yaml:"interval"`
	Robots   []FleetRobot  `yaml:"robots"`
}

// FleetRobot is one entry of a fleet file.
type FleetRobot struct {
	ID       string        `yaml:"id"`
	Interval time.Duration `yaml:"interval"`
}

// LoadFleet reads a fleet file and expands it into one config per robot,
// starting from base.
func LoadFleet(path string, base *Config) ([]*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fleet file: %w", err)
	}
	return ParseFleet(data, base)
}

// ParseFleet is LoadFleet on an in-memory document.
func ParseFleet(data []byte, base *Config) ([]*Config, error) {
	var f FleetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fleet file: %w", err)
	}
	if len(f.Robots) == 0 {
		return nil, errors.New("fleet file lists no robots")
	}

	seen := make(map[string]bool, len(f.Robots))
	out := make([]*Config, 0, len(f.Robots))
	for i, r := range f.Robots {
		if r.ID == "" {
			return nil, fmt.Errorf("robots[%d]: id is required", i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("robots[%d]: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = true

		cfg := *base
		cfg.RobotID = r.ID
		if f.URL != "" {
			cfg.HubURL = f.URL
		}
		if f.Token != "" {
			cfg.Token = f.Token
		}
		switch {
		case r.Interval > 0:
			cfg.TelemetryInterval = r.Interval
		case f.Interval > 0:
			cfg.TelemetryInterval = f.Interval
		}

		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("robots[%d] (%s): %w", i, r.ID, err)
		}
		out = append(out, &cfg)
	}
	return out, nil
}
