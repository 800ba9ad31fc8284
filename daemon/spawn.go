// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/termgate/termgate/procenv"
	"github.com/termgate/termgate/protocol"
	"github.com/termgate/termgate/session"
)

// handleSpawn creates the single session. The slot is reserved before
// the spawn so a concurrent spawn from any connection sees
// session_active instead of racing; the reservation is rolled back on
// failure so the daemon stays ready for the next attempt.
func (c *connection) handleSpawn(request protocol.Request) {
	if strings.TrimSpace(request.Cmd) == "" {
		c.sendError(request, protocol.CodeInvalidRequest, "spawn requires a non-empty cmd")
		return
	}

	sessionID, ok := c.server.reserveSession(c)
	if !ok {
		c.sendError(request, protocol.CodeSessionActive, "a session is already active")
		return
	}

	// Hold the writer across the spawn so the spawned reply reaches
	// the wire before the relay goroutine's first data message.
	c.writeMu.Lock()
	sess, err := c.server.startSession(c, sessionID, request)
	if err != nil {
		c.writeMu.Unlock()
		c.server.releaseSession(sessionID)
		c.logger.Warn("spawn failed", "cmd", request.Cmd, "error", err)
		c.sendError(request, protocol.CodeSpawnFailed, err.Error())
		return
	}
	if !c.server.bindSession(sessionID, sess) {
		// Shutdown raced the spawn and cleared the reservation.
		c.writeMu.Unlock()
		sess.Terminate()
		c.sendError(request, protocol.CodeSpawnFailed, "daemon is shutting down")
		return
	}
	c.sendLocked(protocol.NewSpawned(request.ID, sessionID, sess.PID))
	c.writeMu.Unlock()
}

// startSession builds the child environment and starts the session,
// applying the minimal-environment retry policy: after a spawn
// failure, exactly one more attempt with the allow-listed minimal
// environment, and only when that environment actually differs from
// the one just tried. A double failure reports both diagnostics.
func (s *Server) startSession(owner *connection, sessionID string, request protocol.Request) (*session.Session, error) {
	merged := procenv.Merge(procenv.FromList(os.Environ()), request.Env)
	env, removed := procenv.Sanitize(merged, s.config.SanitizeEnv)
	if len(removed) > 0 {
		s.logger.Info("stripped loader variables from spawn environment",
			"session", sessionID,
			"keys", removed,
		)
	}

	config := session.Config{
		ID:      sessionID,
		Command: request.Cmd,
		Args:    request.Args,
		Dir:     request.Cwd,
		Cols:    request.Cols,
		Rows:    request.Rows,
		Env:     env,
		Logger:  s.logger,
		OnData: func(chunk []byte) {
			owner.send(protocol.NewData(sessionID, base64.StdEncoding.EncodeToString(chunk)))
		},
		OnExit: func(code *int, signal *string) {
			// Exit is the last message for the session; afterwards the
			// slot is free for the next spawn.
			owner.send(protocol.NewExit(sessionID, code, signal))
			s.releaseSession(sessionID)
		},
	}

	sess, err := session.Start(config)
	if err == nil {
		return sess, nil
	}
	if !s.config.MinimalEnvRetry {
		return nil, err
	}

	minimal := procenv.Minimal(env)
	if procenv.Equivalent(minimal, env) {
		return nil, err
	}

	s.logger.Warn("spawn failed, retrying with minimal environment",
		"session", sessionID,
		"error", err,
	)
	config.Env = minimal
	retried, retryErr := session.Start(config)
	if retryErr != nil {
		return nil, fmt.Errorf("%v; retry: %v", err, retryErr)
	}
	return retried, nil
}
