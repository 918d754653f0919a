// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, validation and the TOML agent config

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  grpc_addr: "0.0.0.0:50051"
  http_addr: "0.0.0.0:8080"
  control_socket: "/tmp/notssh.sock"

database:
  driver: "sqlite3"
  path: "./test.db"

actions:
  ping_timeout: "5s"
  purge_timeout: "30s"
  shell_timeout: "10m"
  sweep_interval: "250ms"
  prune_interval: "30m"
  retention: "24h"

agents:
  ping_interval: "0s"

logging:
  level: "debug"
  format: "json"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.GRPCAddr != "0.0.0.0:50051" {
		t.Errorf("Server.GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, "0.0.0.0:50051")
	}
	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Server.ControlSocket != "/tmp/notssh.sock" {
		t.Errorf("Server.ControlSocket = %q, want %q", cfg.Server.ControlSocket, "/tmp/notssh.sock")
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "sqlite3")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}

	durations := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"PingTimeout", cfg.Actions.PingTimeout, 5 * time.Second},
		{"PurgeTimeout", cfg.Actions.PurgeTimeout, 30 * time.Second},
		{"ShellTimeout", cfg.Actions.ShellTimeout, 10 * time.Minute},
		{"SweepInterval", cfg.Actions.SweepInterval, 250 * time.Millisecond},
		{"PruneInterval", cfg.Actions.PruneInterval, 30 * time.Minute},
		{"Retention", cfg.Actions.Retention, 24 * time.Hour},
		{"PingInterval", cfg.Agents.PingInterval, 0},
	}
	for _, d := range durations {
		if d.got != d.want {
			t.Errorf("%s = %v, want %v", d.name, d.got, d.want)
		}
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("logging:\n  level: warn\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Server.GRPCAddr != DefaultGRPCAddr {
		t.Errorf("Server.GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, DefaultGRPCAddr)
	}
	if cfg.Server.ControlSocket != DefaultControlSocket {
		t.Errorf("Server.ControlSocket = %q, want %q", cfg.Server.ControlSocket, DefaultControlSocket)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Actions.PingTimeout != 10*time.Second {
		t.Errorf("Actions.PingTimeout = %v, want 10s", cfg.Actions.PingTimeout)
	}
	if cfg.Actions.PurgeTimeout != 60*time.Second {
		t.Errorf("Actions.PurgeTimeout = %v, want 60s", cfg.Actions.PurgeTimeout)
	}
	if cfg.Actions.ShellTimeout != time.Hour {
		t.Errorf("Actions.ShellTimeout = %v, want 1h", cfg.Actions.ShellTimeout)
	}
	if cfg.Agents.PingInterval != 60*time.Second {
		t.Errorf("Agents.PingInterval = %v, want 60s", cfg.Agents.PingInterval)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_NOTSSH_SOCKET", "/run/test/cli.sock")
	t.Setenv("TEST_NOTSSH_TS_KEY", "tskey-abc")

	cfg, err := Parse([]byte(`
server:
  control_socket: "${TEST_NOTSSH_SOCKET}"
tailscale:
  enabled: true
  hostname: "notssh-test"
  auth_key: "${TEST_NOTSSH_TS_KEY}"
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Server.ControlSocket != "/run/test/cli.sock" {
		t.Errorf("Server.ControlSocket = %q, want %q", cfg.Server.ControlSocket, "/run/test/cli.sock")
	}
	if cfg.Tailscale.AuthKey != "tskey-abc" {
		t.Errorf("Tailscale.AuthKey = %q, want %q", cfg.Tailscale.AuthKey, "tskey-abc")
	}
}

func TestLoad_DBPathOverride(t *testing.T) {
	t.Setenv("NOTSSH_DB_PATH", "/tmp/override.db")

	cfg, err := Parse([]byte("database:\n  path: /var/lib/other.db\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/override.db")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for nonexistent file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server:\n  grpc_addr: [unclosed\n"))
	if err == nil {
		t.Fatal("Parse() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Parse([]byte("actions:\n  shell_timeout: \"forever\"\n"))
	if err == nil {
		t.Fatal("Parse() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "shell_timeout") {
		t.Errorf("error = %v, want it to name shell_timeout", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing grpc addr",
			mutate:  func(c *Config) { c.Server.GRPCAddr = "" },
			wantErr: "server.grpc_addr",
		},
		{
			name: "tailscale replaces grpc addr",
			mutate: func(c *Config) {
				c.Server.GRPCAddr = ""
				c.Tailscale.Enabled = true
			},
		},
		{
			name: "tailscale without hostname",
			mutate: func(c *Config) {
				c.Tailscale.Enabled = true
				c.Tailscale.Hostname = ""
			},
			wantErr: "tailscale.hostname",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "postgres" },
			wantErr: "database.driver",
		},
		{
			name:    "missing db path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "zero shell timeout",
			mutate:  func(c *Config) { c.Actions.ShellTimeout = 0 },
			wantErr: "actions.shell_timeout",
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Actions.Retention = -time.Hour },
			wantErr: "actions.retention",
		},
		{
			name: "retention disabled needs no prune interval",
			mutate: func(c *Config) {
				c.Actions.Retention = 0
				c.Actions.PruneInterval = 0
			},
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("NOTSSH_CONFIG", "/etc/notssh/custom.yaml")
	if got := DefaultPath(); got != "/etc/notssh/custom.yaml" {
		t.Errorf("DefaultPath() = %q, want NOTSSH_CONFIG value", got)
	}

	t.Setenv("NOTSSH_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != "/xdg/notssh/gateway.yaml" {
		t.Errorf("DefaultPath() = %q, want %q", got, "/xdg/notssh/gateway.yaml")
	}
}

func TestLoadAgent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.toml")
	content := `
endpoint = "http://gateway.example:3144"
id_file = "/tmp/agent.id"
heartbeat_interval = "15s"
reconnect_min = "500ms"
reconnect_max = "30s"
log_level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write agent config: %v", err)
	}

	cfg, err := LoadAgent(path)
	if err != nil {
		t.Fatalf("LoadAgent() error = %v", err)
	}
	if cfg.Endpoint != "http://gateway.example:3144" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.IDFile != "/tmp/agent.id" {
		t.Errorf("IDFile = %q", cfg.IDFile)
	}
	if cfg.HeartbeatInterval.Duration != 15*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 15s", cfg.HeartbeatInterval.Duration)
	}
	if cfg.ReconnectMin.Duration != 500*time.Millisecond {
		t.Errorf("ReconnectMin = %v, want 500ms", cfg.ReconnectMin.Duration)
	}
	if cfg.ReconnectMax.Duration != 30*time.Second {
		t.Errorf("ReconnectMax = %v, want 30s", cfg.ReconnectMax.Duration)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadAgent_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadAgent(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadAgent() error = %v", err)
	}
	if cfg.Endpoint != DefaultAgent().Endpoint {
		t.Errorf("Endpoint = %q, want default", cfg.Endpoint)
	}
}

func TestLoadAgent_InvalidBackoff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.toml")
	content := "reconnect_min = \"10s\"\nreconnect_max = \"1s\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write agent config: %v", err)
	}

	_, err := LoadAgent(path)
	if err == nil {
		t.Fatal("LoadAgent() expected error for reconnect_max < reconnect_min")
	}
}
