// ABOUTME: Entry point for notssh-agent, the process that runs on managed hosts
// ABOUTME: Usage: notssh-agent [-config /etc/notssh/agent.toml] [-endpoint http://gw:3144]

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/notssh/notssh/internal/client"
	"github.com/notssh/notssh/internal/config"
	"github.com/notssh/notssh/internal/executor"
)

const defaultConfigPath = "/etc/notssh/agent.toml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Agent TOML config file (missing file means defaults)")
	endpoint := flag.String("endpoint", "", "Gateway endpoint, overrides the config file")
	idFile := flag.String("id-file", "", "Identity file, overrides the config file")
	flag.Parse()

	if err := run(*configPath, *endpoint, *idFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, endpoint, idFile string) error {
	cfg, err := config.LoadAgent(configPath)
	if err != nil {
		return err
	}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if idFile != "" {
		cfg.IDFile = idFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting notssh-agent", "endpoint", cfg.Endpoint, "id_file", cfg.IDFile)

	err = client.New(cfg, executor.ExecRunner{}, logger).Run(ctx)
	if errors.Is(err, client.ErrPurged) {
		logger.Info("purged by gateway, exiting")
		return nil
	}
	return err
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
