// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Termgate is the command-line client for the termgated daemon. It
// spawns a command in the daemon's PTY session and attaches the local
// terminal to it, mirroring the child's exit status.
//
// Usage:
//
//	termgate run [flags] -- <cmd> [args...]
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/termgate/termgate/client"
	"github.com/termgate/termgate/daemon"
	"github.com/termgate/termgate/version"
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func run() (int, error) {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "--version", "version":
			fmt.Printf("termgate %s\n", version.Info())
			return 0, nil
		case "run":
			args = args[1:]
		case "--help", "help", "-h":
			usage()
			return 0, nil
		default:
			usage()
			return 0, fmt.Errorf("unknown command %q", args[0])
		}
	}

	var (
		socketPath string
		cwd        string
		cols       int
		rows       int
		envPairs   []string
	)

	flags := pflag.NewFlagSet("termgate run", pflag.ContinueOnError)
	flags.StringVar(&socketPath, "socket", "", "daemon socket path (default: user config dir, or TERMGATE_SOCKET)")
	flags.StringVar(&cwd, "cwd", "", "working directory for the command")
	flags.IntVar(&cols, "cols", 0, "terminal columns (default: local terminal width)")
	flags.IntVar(&rows, "rows", 0, "terminal rows (default: local terminal height)")
	flags.StringArrayVar(&envPairs, "env", nil, "extra KEY=VALUE for the command environment (repeatable)")
	if err := flags.Parse(args); err != nil {
		return 0, err
	}
	command := flags.Args()
	if len(command) == 0 {
		usage()
		return 0, fmt.Errorf("command argument required")
	}

	if socketPath == "" {
		socketPath = os.Getenv("TERMGATE_SOCKET")
	}
	if socketPath == "" {
		defaultPath, err := daemon.DefaultSocketPath()
		if err != nil {
			return 0, fmt.Errorf("determine default socket path: %w", err)
		}
		socketPath = defaultPath
	}

	env := make(map[string]string, len(envPairs))
	for _, pair := range envPairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return 0, fmt.Errorf("--env %q is not KEY=VALUE", pair)
		}
		env[key] = value
	}

	// Size the remote terminal like the local one when possible.
	if cols == 0 || rows == 0 {
		if localCols, localRows, err := term.GetSize(int(os.Stdin.Fd())); err == nil {
			if cols == 0 {
				cols = localCols
			}
			if rows == 0 {
				rows = localRows
			}
		}
	}

	conn, err := client.Dial(socketPath)
	if err != nil {
		return 0, fmt.Errorf("%w (is termgated running?)", err)
	}
	defer conn.Close()

	if token := os.Getenv("TERMGATE_TOKEN"); token != "" {
		if err := conn.Hello(token); err != nil {
			return 0, err
		}
	}

	spawned, err := conn.Spawn(client.SpawnRequest{
		Cmd:  command[0],
		Args: command[1:],
		Cwd:  cwd,
		Env:  env,
		Cols: cols,
		Rows: rows,
	})
	if err != nil {
		return 0, err
	}

	status, err := conn.Attach(spawned.Session)
	if err != nil {
		return 0, err
	}
	return exitCode(status), nil
}

// exitCode mirrors the child's exit status the way a shell would: the
// code itself, or 128 plus the signal number for signal deaths.
func exitCode(status client.ExitStatus) int {
	if status.Code != nil {
		return *status.Code
	}
	if status.Signal != nil {
		name := strings.TrimPrefix(*status.Signal, "SIG")
		if number := unix.SignalNum("SIG" + name); number != 0 {
			return 128 + int(number)
		}
	}
	return 1
}

func usage() {
	fmt.Print(`termgate - run a command in the termgated PTY session

USAGE
    termgate run [flags] -- <cmd> [args...]

FLAGS
    --socket PATH    daemon socket path
    --cwd DIR        working directory for the command
    --cols N         terminal columns (default: local terminal width)
    --rows N         terminal rows (default: local terminal height)
    --env KEY=VALUE  extra environment variable (repeatable)

Set TERMGATE_TOKEN to authenticate when the daemon requires a token.
Set TERMGATE_SOCKET to override the default socket path.
`)
}
