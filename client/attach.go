// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"
)

// ExitStatus is how a session ended. Exactly one field is non-nil.
type ExitStatus struct {
	Code   *int
	Signal *string
}

// Attach relays the local terminal to the session until the child
// exits: stdin bytes become write requests, data messages stream to
// stdout, and SIGWINCH propagates the local terminal size. When
// stdin is a terminal it is switched to raw mode for the duration.
//
// Attach owns the connection's read side; no other reads may run
// concurrently. It returns the session's exit status.
func (c *Client) Attach(session string) (ExitStatus, error) {
	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			return ExitStatus{}, err
		}
		defer term.Restore(stdinFd, oldState)
	}

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			cols, rows, err := term.GetSize(stdinFd)
			if err != nil {
				continue
			}
			c.Resize(session, cols, rows)
		}
	}()

	// The stdin pump stops on EOF or when the connection closes under
	// it. It stays blocked in Read if stdin never delivers another
	// byte after the session exits; that is harmless for a process
	// about to exit and unavoidable with blocking terminal reads.
	go func() {
		buffer := make([]byte, 4096)
		for {
			bytesRead, err := os.Stdin.Read(buffer)
			if bytesRead > 0 {
				if writeErr := c.Write(session, buffer[:bytesRead]); writeErr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	var status ExitStatus
	err := c.Run(Events{
		Data: func(_ string, chunk []byte) {
			os.Stdout.Write(chunk)
		},
		Exit: func(_ string, code *int, sig *string) {
			status = ExitStatus{Code: code, Signal: sig}
		},
	})
	if err != nil && errors.Is(err, io.EOF) {
		err = errors.New("daemon closed the connection before the session exited")
	}
	return status, err
}
