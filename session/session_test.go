// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

// collector gathers session callbacks for assertions.
type collector struct {
	mu       sync.Mutex
	output   bytes.Buffer
	exitCode *int
	exitSig  *string
	exits    int
}

func (c *collector) onData(chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.output.Write(chunk)
}

func (c *collector) onExit(code *int, signal *string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exitCode = code
	c.exitSig = signal
	c.exits++
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output.String()
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("session did not finish in time")
	}
}

func TestStartEchoDeliversOutputThenExit(t *testing.T) {
	t.Parallel()

	var events collector
	s, err := Start(Config{
		Command: "echo",
		Args:    []string{"hi"},
		Env:     map[string]string{"PATH": "/usr/bin:/bin"},
		OnData:  events.onData,
		OnExit:  events.onExit,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.ID == "" {
		t.Error("session has no generated id")
	}
	if s.PID <= 0 {
		t.Errorf("pid = %d, want positive", s.PID)
	}

	waitDone(t, s)

	if !strings.Contains(events.String(), "hi") {
		t.Errorf("output %q does not contain %q", events.String(), "hi")
	}
	if events.exits != 1 {
		t.Fatalf("exit callback fired %d times, want 1", events.exits)
	}
	if events.exitCode == nil || *events.exitCode != 0 {
		t.Errorf("exit code = %v, want 0", events.exitCode)
	}
	if events.exitSig != nil {
		t.Errorf("exit signal = %q, want nil", *events.exitSig)
	}
}

func TestWriteReachesChild(t *testing.T) {
	t.Parallel()

	var events collector
	s, err := Start(Config{
		Command: "cat",
		Env:     map[string]string{"PATH": "/usr/bin:/bin"},
		OnData:  events.onData,
		OnExit:  events.onExit,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := s.Write([]byte("ping\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.After(10 * time.Second)
	for !strings.Contains(events.String(), "ping") {
		select {
		case <-deadline:
			t.Fatalf("output %q never echoed the write", events.String())
		case <-time.After(10 * time.Millisecond):
		}
	}

	s.Terminate()
	waitDone(t, s)
}

func TestTerminateReportsSignalExit(t *testing.T) {
	t.Parallel()

	var events collector
	s, err := Start(Config{
		Command: "sleep",
		Args:    []string{"60"},
		Env:     map[string]string{"PATH": "/usr/bin:/bin"},
		OnExit:  events.onExit,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Terminate()
	s.Terminate() // idempotent
	waitDone(t, s)

	if events.exitSig == nil || *events.exitSig != "SIGKILL" {
		t.Errorf("exit signal = %v, want SIGKILL", events.exitSig)
	}
	if events.exitCode != nil {
		t.Errorf("exit code = %d, want nil", *events.exitCode)
	}
}

func TestSignalByName(t *testing.T) {
	t.Parallel()

	var events collector
	s, err := Start(Config{
		Command: "sleep",
		Args:    []string{"60"},
		Env:     map[string]string{"PATH": "/usr/bin:/bin"},
		OnExit:  events.onExit,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := s.Signal("SIGTERM"); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	waitDone(t, s)

	if events.exitSig == nil || *events.exitSig != "SIGTERM" {
		t.Errorf("exit signal = %v, want SIGTERM", events.exitSig)
	}
}

func TestStartFailureYieldsSpawnError(t *testing.T) {
	t.Parallel()

	_, err := Start(Config{
		Command: "/nonexistent/definitely-not-a-binary",
		Env:     map[string]string{},
	})
	if err == nil {
		t.Fatal("Start succeeded for a nonexistent binary")
	}

	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("error type = %T, want *SpawnError", err)
	}
	if spawnErr.Errno != syscall.ENOENT {
		t.Errorf("errno = %v, want ENOENT", spawnErr.Errno)
	}
	if !strings.Contains(spawnErr.Error(), "ENOENT") {
		t.Errorf("diagnostic %q does not name ENOENT", spawnErr.Error())
	}
}

func TestStartRequiresCommand(t *testing.T) {
	t.Parallel()

	if _, err := Start(Config{}); err == nil {
		t.Fatal("Start succeeded with empty command")
	}
}

func TestLookupSignal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    syscall.Signal
		wantErr bool
	}{
		{"full name", "SIGTERM", syscall.SIGTERM, false},
		{"short name", "TERM", syscall.SIGTERM, false},
		{"lowercase", "sigint", syscall.SIGINT, false},
		{"kill", "KILL", syscall.SIGKILL, false},
		{"winch", "SIGWINCH", syscall.SIGWINCH, false},
		{"unknown", "SIGBOGUS", 0, true},
		{"empty", "", 0, true},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got, err := LookupSignal(test.input)
			if test.wantErr {
				if err == nil {
					t.Fatalf("LookupSignal(%q) succeeded, want error", test.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("LookupSignal(%q): %v", test.input, err)
			}
			if got != test.want {
				t.Errorf("LookupSignal(%q) = %v, want %v", test.input, got, test.want)
			}
		})
	}
}
