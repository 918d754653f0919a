// Package config handles configuration loading for notssh.
//
// # Overview
//
// The gateway is configured from a YAML file with environment variable
// expansion; fields absent from the file keep their defaults. The agent
// binary reads a small TOML file (see AgentConfig).
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from NOTSSH_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/notssh/gateway.yaml
//  3. ~/.config/notssh/gateway.yaml
//
// NOTSSH_DB_PATH overrides database.path.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	tailscale:
//	  auth_key: "${TS_AUTHKEY}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	actions:
//	  ping_timeout: "10s"
//	  purge_timeout: "60s"
//	  shell_timeout: "1h"
//	  sweep_interval: "1s"
//	  prune_interval: "1h"
//	  retention: "168h"    # 0 keeps resolved actions forever
//
//	agents:
//	  ping_interval: "60s" # 0 disables gateway heartbeat pings
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  grpc_addr: "0.0.0.0:3144"              # Agent connections
//	  http_addr: "127.0.0.1:3145"            # Health and agent listing
//	  control_socket: "/run/notssh/cli.sock" # Operator gRPC (unix socket)
//
// Database:
//
//	database:
//	  driver: "sqlite"   # sqlite (modernc, pure Go) or sqlite3 (mattn, cgo)
//	  path: "/var/lib/notssh/notssh.db"
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "notssh"
//	  auth_key: "${TS_AUTHKEY}"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
