// Package config holds the meshchat client configuration, loaded from an
// optional YAML file with flag overrides applied in cmd.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names accepted by RelayConfig.Transport.
const (
	TransportTCP = "tcp"
	TransportWS  = "ws"
)

// Config holds all meshchat configuration.
type Config struct {
	Relay     RelayConfig     `yaml:"relay"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	History   HistoryConfig   `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RelayConfig configures the connection to the relay endpoint.
type RelayConfig struct {
	// Address is the relay host:port.
	Address string `yaml:"address"`
	// Transport selects the transport: "tcp" or "ws".
	Transport string `yaml:"transport"`
	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ReconnectConfig configures automatic reconnection after a drop.
type ReconnectConfig struct {
	Enabled      bool          `yaml:"enabled"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	// MaxAttempts limits consecutive retries; zero retries forever.
	MaxAttempts int `yaml:"max_attempts"`
}

// HistoryConfig configures the message log.
type HistoryConfig struct {
	// Capacity bounds the log; zero keeps it unbounded.
	Capacity int `yaml:"capacity"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// File receives log output. The TUI owns the terminal, so logs never
	// go to stdout; empty disables logging.
	File string `yaml:"file"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		Relay: RelayConfig{
			Address:     "127.0.0.1:9000",
			Transport:   TransportTCP,
			DialTimeout: 10 * time.Second,
		},
		Reconnect: ReconnectConfig{
			Enabled:      true,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			MaxAttempts:  0,
		},
		History: HistoryConfig{Capacity: 0},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is
// not an error: the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field values that have a closed domain.
func (c Config) Validate() error {
	switch c.Relay.Transport {
	case TransportTCP, TransportWS:
	default:
		return fmt.Errorf("unknown transport %q (want %q or %q)",
			c.Relay.Transport, TransportTCP, TransportWS)
	}
	if c.Relay.Address == "" {
		return fmt.Errorf("relay address must not be empty")
	}
	if c.History.Capacity < 0 {
		return fmt.Errorf("history capacity must not be negative")
	}
	return nil
}
