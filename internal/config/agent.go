// ABOUTME: TOML configuration for the notssh-agent binary
// ABOUTME: Endpoint, identity file location and reconnect/heartbeat timing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/BurntSushi/toml"
)

// AgentConfig configures a notssh-agent process.
type AgentConfig struct {
	Endpoint          string   `toml:"endpoint"`
	IDFile            string   `toml:"id_file"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
	ReconnectMin      Duration `toml:"reconnect_min"`
	ReconnectMax      Duration `toml:"reconnect_max"`
	LogLevel          string   `toml:"log_level"`
}

// Duration decodes TOML strings such as "30s" into a time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultAgent returns the agent configuration used when no file exists.
func DefaultAgent() *AgentConfig {
	return &AgentConfig{
		Endpoint:          "http://127.0.0.1:3144",
		IDFile:            "/var/lib/notssh/agent.id",
		HeartbeatInterval: Duration{30 * time.Second},
		ReconnectMin:      Duration{time.Second},
		ReconnectMax:      Duration{time.Minute},
		LogLevel:          "info",
	}
}

// LoadAgent reads a TOML agent config. A missing file yields the defaults.
func LoadAgent(path string) (*AgentConfig, error) {
	cfg := DefaultAgent()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("parsing agent config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating agent config: %w", err)
	}
	return cfg, nil
}

// Validate checks the agent configuration for consistency.
func (c *AgentConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.IDFile == "" {
		return fmt.Errorf("id_file is required")
	}
	if c.HeartbeatInterval.Duration <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if c.ReconnectMin.Duration <= 0 {
		return fmt.Errorf("reconnect_min must be positive")
	}
	if c.ReconnectMax.Duration < c.ReconnectMin.Duration {
		return fmt.Errorf("reconnect_max (%v) must not be below reconnect_min (%v)",
			c.ReconnectMax.Duration, c.ReconnectMin.Duration)
	}
	return nil
}
