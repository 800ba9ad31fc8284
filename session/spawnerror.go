// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// SpawnError describes why the OS refused to start a child process.
// It preserves the underlying syscall detail (name and errno) so the
// daemon can hand the supervisor a diagnostic precise enough to act
// on: a missing binary and a permission problem call for different
// fixes.
type SpawnError struct {
	// Command is the program that failed to start.
	Command string

	// Err is the underlying error from the OS.
	Err error

	// Syscall is the failing syscall name ("fork/exec", "chdir"),
	// empty when unknown.
	Syscall string

	// Errno is the OS error number, 0 when unknown.
	Errno syscall.Errno
}

// newSpawnError wraps a spawn failure, extracting syscall and errno
// detail where the error chain carries it.
func newSpawnError(command string, err error) *SpawnError {
	spawnErr := &SpawnError{Command: command, Err: err}

	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		spawnErr.Syscall = sysErr.Syscall
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) && spawnErr.Syscall == "" {
		spawnErr.Syscall = pathErr.Op
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		spawnErr.Errno = errno
	}
	return spawnErr
}

// Error composes the full diagnostic: OS message plus syscall name and
// symbolic errno when known.
func (e *SpawnError) Error() string {
	message := fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
	if e.Errno != 0 {
		name := unix.ErrnoName(e.Errno)
		if name == "" {
			name = "errno"
		}
		message = fmt.Sprintf("%s (%s %d", message, name, int(e.Errno))
		if e.Syscall != "" {
			message += ", syscall " + e.Syscall
		}
		message += ")"
	}
	return message
}

// Unwrap exposes the underlying OS error for errors.Is/As chains.
func (e *SpawnError) Unwrap() error {
	return e.Err
}
