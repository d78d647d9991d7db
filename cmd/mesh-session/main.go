// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// mesh-session is the session daemon. It owns one Matrix login at a
// time: login options are discovered and logins performed on request
// over its command socket, and while logged in it keeps the joined-room
// index current through /sync. Incoming text messages are written to
// stdout as JSON lines.
//
// Configuration comes from --config or MESH_CONFIG; there is no default
// config file. The daemon runs until SIGINT or SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mesh/cmd/mesh/cli"
	"github.com/bureau-foundation/mesh/lib/account"
	"github.com/bureau-foundation/mesh/lib/clock"
	"github.com/bureau-foundation/mesh/lib/command"
	"github.com/bureau-foundation/mesh/lib/config"
	"github.com/bureau-foundation/mesh/lib/process"
	"github.com/bureau-foundation/mesh/lib/syncloop"
	"github.com/bureau-foundation/mesh/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal("mesh-session", err)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("mesh-session", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&socketPath, "socket", "", "command socket path (overrides socket_path)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("mesh-session")
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.SocketPath = socketPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := account.NewManager(managerConfig(cfg), newMessageWriter(os.Stdout), clock.Real(), logger)
	defer manager.Close()

	if cfg.Homeserver != "" {
		options, err := manager.GetLoginOptions(ctx, cfg.Homeserver)
		if err != nil {
			logger.Warn("initial discovery failed",
				"homeserver", cfg.Homeserver,
				"category", account.CategoryOf(err),
				"error", err,
			)
		} else {
			logger.Info("homeserver discovered", "homeserver", cfg.Homeserver, "login_options", len(options))
		}
	}

	server := command.NewServer(manager, command.ServerConfig{
		SocketPath:             cfg.SocketPath,
		LoginAttemptsPerMinute: cfg.Login.AttemptsPerMinute,
		Logger:                 logger,
	})
	logger.Info("mesh-session starting", "version", version.Info(), "environment", cfg.Environment)
	if err := server.Serve(ctx); err != nil {
		return err
	}
	logger.Info("mesh-session stopped")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// newLogger builds the daemon logger at the configured level.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cli.NewLogger(level), nil
}

func managerConfig(cfg *config.Config) account.Config {
	return account.Config{
		DeviceDisplayName: cfg.DeviceDisplayName,
		Sync: syncloop.Config{
			Timeout:                cfg.Sync.Timeout,
			MaxBackoff:             cfg.Sync.MaxBackoff,
			MaxConsecutiveFailures: cfg.Sync.MaxFailures,
		},
		RoomLookupConcurrency: cfg.Sync.RoomLookupConcurrency,
		ObserverQueueSize:     cfg.Observer.QueueSize,
	}
}

// messageWriter writes each text message as one JSON line. Successive
// logins have their own dispatchers, so writes are serialized here.
type messageWriter struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newMessageWriter(w io.Writer) *messageWriter {
	return &messageWriter{encoder: json.NewEncoder(w)}
}

func (m *messageWriter) OnTextMessage(message syncloop.TextMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.encoder.Encode(message); err != nil {
		slog.Warn("writing message", "room_id", message.RoomID, "error", err)
	}
}
