// ABOUTME: Configuration loading and parsing for notssh-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied before the YAML document is decoded.
const (
	DefaultGRPCAddr      = "0.0.0.0:3144"
	DefaultHTTPAddr      = "127.0.0.1:3145"
	DefaultControlSocket = "/run/notssh/cli.sock"
	DefaultDBDriver      = "sqlite"
	DefaultDBPath        = "/var/lib/notssh/notssh.db"

	DefaultPingTimeout   = 10 * time.Second
	DefaultPurgeTimeout  = 60 * time.Second
	DefaultShellTimeout  = time.Hour
	DefaultSweepInterval = time.Second
	DefaultPruneInterval = time.Hour
	DefaultRetention     = 7 * 24 * time.Hour
	DefaultPingInterval  = 60 * time.Second
)

// Config represents the complete notssh-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Actions   ActionsConfig   `yaml:"actions"`
	Agents    AgentsConfig    `yaml:"agents"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	GRPCAddr      string `yaml:"grpc_addr"`
	HTTPAddr      string `yaml:"http_addr"`
	ControlSocket string `yaml:"control_socket"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite (pure Go) or sqlite3 (cgo)
	Path   string `yaml:"path"`
}

// ActionsConfig holds per-kind operator timeouts and housekeeping intervals
type ActionsConfig struct {
	PingTimeout   time.Duration `yaml:"-"`
	PurgeTimeout  time.Duration `yaml:"-"`
	ShellTimeout  time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`
	PruneInterval time.Duration `yaml:"-"`
	Retention     time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	PingTimeoutRaw   string `yaml:"ping_timeout"`
	PurgeTimeoutRaw  string `yaml:"purge_timeout"`
	ShellTimeoutRaw  string `yaml:"shell_timeout"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
	PruneIntervalRaw string `yaml:"prune_interval"`
	RetentionRaw     string `yaml:"retention"`
}

// AgentsConfig holds agent-related timing configuration
type AgentsConfig struct {
	// PingInterval is how often the gateway queues a heartbeat ping for each
	// connected agent. Zero disables server-originated pings.
	PingInterval time.Duration `yaml:"-"`

	PingIntervalRaw string `yaml:"ping_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCAddr:      DefaultGRPCAddr,
			HTTPAddr:      DefaultHTTPAddr,
			ControlSocket: DefaultControlSocket,
		},
		Tailscale: TailscaleConfig{
			Hostname: "notssh",
		},
		Database: DatabaseConfig{
			Driver: DefaultDBDriver,
			Path:   DefaultDBPath,
		},
		Actions: ActionsConfig{
			PingTimeout:   DefaultPingTimeout,
			PurgeTimeout:  DefaultPurgeTimeout,
			ShellTimeout:  DefaultShellTimeout,
			SweepInterval: DefaultSweepInterval,
			PruneInterval: DefaultPruneInterval,
			Retention:     DefaultRetention,
		},
		Agents: AgentsConfig{
			PingInterval: DefaultPingInterval,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config path used when none is given:
// $NOTSSH_CONFIG, then $XDG_CONFIG_HOME/notssh/gateway.yaml, then
// ~/.config/notssh/gateway.yaml.
func DefaultPath() string {
	if p := os.Getenv("NOTSSH_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "notssh", "gateway.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "gateway.yaml"
	}
	return filepath.Join(home, ".config", "notssh", "gateway.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML configuration document. See Load.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if p := os.Getenv("NOTSSH_DB_PATH"); p != "" {
		cfg.Database.Path = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The agent listener is required unless Tailscale provides one
	if !c.Tailscale.Enabled && c.Server.GRPCAddr == "" {
		return fmt.Errorf("server.grpc_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	timeouts := map[string]time.Duration{
		"actions.ping_timeout":   c.Actions.PingTimeout,
		"actions.purge_timeout":  c.Actions.PurgeTimeout,
		"actions.shell_timeout":  c.Actions.ShellTimeout,
		"actions.sweep_interval": c.Actions.SweepInterval,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}

	if c.Actions.Retention < 0 {
		return fmt.Errorf("actions.retention must not be negative")
	}
	if c.Actions.Retention > 0 && c.Actions.PruneInterval <= 0 {
		return fmt.Errorf("actions.prune_interval must be positive when retention is set")
	}
	if c.Agents.PingInterval < 0 {
		return fmt.Errorf("agents.ping_interval must not be negative")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"ping_timeout", cfg.Actions.PingTimeoutRaw, &cfg.Actions.PingTimeout},
		{"purge_timeout", cfg.Actions.PurgeTimeoutRaw, &cfg.Actions.PurgeTimeout},
		{"shell_timeout", cfg.Actions.ShellTimeoutRaw, &cfg.Actions.ShellTimeout},
		{"sweep_interval", cfg.Actions.SweepIntervalRaw, &cfg.Actions.SweepInterval},
		{"prune_interval", cfg.Actions.PruneIntervalRaw, &cfg.Actions.PruneInterval},
		{"retention", cfg.Actions.RetentionRaw, &cfg.Actions.Retention},
		{"ping_interval", cfg.Agents.PingIntervalRaw, &cfg.Agents.PingInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
