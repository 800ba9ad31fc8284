// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Termgated is the terminal access daemon. It listens on a unix
// socket and lets local peers spawn and drive a single PTY session
// over a line-delimited JSON protocol.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/termgate/termgate/daemon"
	"github.com/termgate/termgate/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		socketPath     string
		tokenEnv       string
		logLevel       string
		logFormat      string
		noSanitize     bool
		noMinimalRetry bool
		showVersion    bool
	)

	flags := pflag.NewFlagSet("termgated", pflag.ContinueOnError)
	flags.StringVar(&socketPath, "socket", "", "unix socket path (default: user config dir, or TERMGATE_SOCKET)")
	flags.StringVar(&tokenEnv, "token-env", "TERMGATE_TOKEN", "environment variable holding the shared auth token")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default info, or TERMGATE_LOG_LEVEL)")
	flags.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	flags.BoolVar(&noSanitize, "no-sanitize", false, "do not strip dynamic loader variables from spawn environments")
	flags.BoolVar(&noMinimalRetry, "no-minimal-retry", false, "do not retry failed spawns with a minimal environment")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if showVersion {
		fmt.Printf("termgated %s\n", version.Info())
		return nil
	}

	// Flags win over environment variables; environment variables win
	// over built-in defaults.
	if socketPath == "" {
		socketPath = os.Getenv("TERMGATE_SOCKET")
	}
	if socketPath == "" {
		defaultPath, err := daemon.DefaultSocketPath()
		if err != nil {
			return fmt.Errorf("determine default socket path: %w", err)
		}
		socketPath = defaultPath
	}
	if logLevel == "" {
		logLevel = os.Getenv("TERMGATE_LOG_LEVEL")
	}
	if envSet(os.Getenv("TERMGATE_NO_SANITIZE")) {
		noSanitize = true
	}
	if envSet(os.Getenv("TERMGATE_NO_MINIMAL_RETRY")) {
		noMinimalRetry = true
	}

	logger, err := buildLogger(logLevel, logFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	server, err := daemon.New(daemon.Config{
		SocketPath:      socketPath,
		Token:           os.Getenv(tokenEnv),
		SanitizeEnv:     !noSanitize,
		MinimalEnvRetry: !noMinimalRetry,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	logger.Info("starting termgated",
		"version", version.Info(),
		"socket", socketPath,
	)

	// The second SIGINT/SIGTERM after stop() restores default signal
	// handling, so a stuck shutdown can still be interrupted.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx)
}

// buildLogger constructs the process logger from level and format
// settings.
func buildLogger(level, format string) (*slog.Logger, error) {
	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "", "info":
		slogLevel = slog.LevelInfo
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	options := &slog.HandlerOptions{Level: slogLevel}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// envSet reports whether a boolean environment variable is enabled.
// Any non-empty value other than "0" and "false" counts.
func envSet(value string) bool {
	switch strings.ToLower(value) {
	case "", "0", "false":
		return false
	}
	return true
}
