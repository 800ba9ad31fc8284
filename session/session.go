// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/termgate/termgate/procenv"
)

// Default terminal dimensions when the spawn request omits them.
const (
	DefaultCols = 80
	DefaultRows = 24
)

// Config describes the child process to spawn and who receives its
// lifecycle events.
type Config struct {
	// ID is the session identifier used in callbacks and logs. When
	// empty, Start generates one.
	ID string

	// Command is the program to run. Required.
	Command string

	// Args are the program arguments, not including the program name.
	Args []string

	// Dir is the child's working directory. Empty means inherit.
	Dir string

	// Cols and Rows are the initial terminal dimensions. Non-positive
	// values fall back to DefaultCols/DefaultRows.
	Cols int
	Rows int

	// Env is the complete environment for the child. TERM and
	// COLORTERM receive defaults when unset so full-screen terminal
	// programs render correctly.
	Env map[string]string

	// OnData receives every chunk of PTY output in production order.
	// Called from the session's relay goroutine; the slice is owned by
	// the callee.
	OnData func(chunk []byte)

	// OnExit is called exactly once, after the final OnData, with the
	// child's exit code (normal exit) or terminating signal name.
	// Exactly one argument is non-nil.
	OnExit func(code *int, signal *string)

	// Logger receives session lifecycle logs. Defaults to slog.Default.
	Logger *slog.Logger
}

// Session is a running PTY-backed child process.
type Session struct {
	// ID is the daemon-generated session identifier.
	ID string

	// PID is the child's OS process id.
	PID int

	// CreatedAt records when the child was spawned.
	CreatedAt time.Time

	cmd    *exec.Cmd
	master *os.File
	logger *slog.Logger

	killOnce sync.Once

	// done is closed after OnExit has fired and the child is reaped.
	done chan struct{}
}

// Start spawns the configured program on a fresh PTY and begins
// relaying output. On failure it returns a *SpawnError and no session
// exists; nothing needs cleaning up.
func Start(config Config) (*Session, error) {
	if config.Command == "" {
		return nil, errors.New("session: command is required")
	}

	cols := config.Cols
	if cols <= 0 {
		cols = DefaultCols
	}
	rows := config.Rows
	if rows <= 0 {
		rows = DefaultRows
	}

	env := make(map[string]string, len(config.Env)+2)
	for key, value := range config.Env {
		env[key] = value
	}
	if _, ok := env["TERM"]; !ok {
		env["TERM"] = "xterm-256color"
	}
	if _, ok := env["COLORTERM"]; !ok {
		env["COLORTERM"] = "truecolor"
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(config.Command, config.Args...)
	cmd.Dir = config.Dir
	cmd.Env = procenv.ToList(env)

	master, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
	if err != nil {
		return nil, newSpawnError(config.Command, err)
	}

	id := config.ID
	if id == "" {
		id = uuid.NewString()
	}

	session := &Session{
		ID:        id,
		PID:       cmd.Process.Pid,
		CreatedAt: time.Now(),
		cmd:       cmd,
		master:    master,
		logger:    logger.With("session", id, "pid", cmd.Process.Pid),
		done:      make(chan struct{}),
	}
	session.logger.Info("session started",
		"command", config.Command,
		"cols", cols,
		"rows", rows,
	)

	go session.relay(config.OnData, config.OnExit)

	return session, nil
}

// relay copies PTY output to OnData until the master read fails (EIO
// once the child exits and the slave side closes), then reaps the
// child and reports the exit. Running both phases on one goroutine is
// what guarantees the exit callback follows the last data callback.
func (s *Session) relay(onData func([]byte), onExit func(*int, *string)) {
	buffer := make([]byte, 4096)
	for {
		bytesRead, readErr := s.master.Read(buffer)
		if bytesRead > 0 && onData != nil {
			chunk := make([]byte, bytesRead)
			copy(chunk, buffer[:bytesRead])
			onData(chunk)
		}
		if readErr != nil {
			break
		}
	}

	waitErr := s.cmd.Wait()
	s.master.Close()

	code, signalName := classifyExit(s.cmd, waitErr)
	if code != nil {
		s.logger.Info("session exited", "code", *code)
	} else if signalName != nil {
		s.logger.Info("session killed", "signal", *signalName)
	}

	if onExit != nil {
		onExit(code, signalName)
	}
	close(s.done)
}

// Write forwards raw bytes to the PTY input, unbuffered.
func (s *Session) Write(data []byte) error {
	if _, err := s.master.Write(data); err != nil {
		return fmt.Errorf("write to session %s: %w", s.ID, err)
	}
	return nil
}

// Resize propagates new terminal dimensions to the PTY, delivering
// SIGWINCH to the child's foreground process group.
func (s *Session) Resize(cols, rows int) error {
	err := pty.Setsize(s.master, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
	if err != nil {
		return fmt.Errorf("resize session %s: %w", s.ID, err)
	}
	return nil
}

// Signal delivers the named signal to the child. Accepts both the
// full "SIGTERM" and short "TERM" spellings; unknown names are an
// error.
func (s *Session) Signal(name string) error {
	signal, err := LookupSignal(name)
	if err != nil {
		return err
	}
	if err := s.cmd.Process.Signal(signal); err != nil {
		return fmt.Errorf("signal session %s: %w", s.ID, err)
	}
	return nil
}

// Terminate force-kills the child and closes the PTY master.
// Idempotent. The relay goroutine still delivers the final exit
// callback once the child is reaped.
func (s *Session) Terminate() {
	s.killOnce.Do(func() {
		if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Warn("kill failed", "error", err)
		}
		s.master.Close()
	})
}

// Done returns a channel closed after the exit callback has fired and
// the child has been reaped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// LookupSignal resolves a signal name to its number. Both "SIGTERM"
// and "TERM" spellings are accepted.
func LookupSignal(name string) (syscall.Signal, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	if normalized == "" {
		return 0, errors.New("empty signal name")
	}
	if !strings.HasPrefix(normalized, "SIG") {
		normalized = "SIG" + normalized
	}
	signal := unix.SignalNum(normalized)
	if signal == 0 {
		return 0, fmt.Errorf("unknown signal %q", name)
	}
	return signal, nil
}

// classifyExit extracts the exit code or terminating signal name from
// a reaped child. Exactly one return value is non-nil.
func classifyExit(cmd *exec.Cmd, waitErr error) (*int, *string) {
	state := cmd.ProcessState
	if state != nil {
		if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			name := unix.SignalName(status.Signal())
			return nil, &name
		}
		code := state.ExitCode()
		return &code, nil
	}

	// Wait failed before producing a process state. Surface it as a
	// generic failure code rather than dropping the exit event.
	code := -1
	if waitErr != nil {
		code = 1
	}
	return &code, nil
}
