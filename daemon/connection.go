// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/termgate/termgate/protocol"
	"github.com/termgate/termgate/session"
)

// connection is one accepted client stream: its identity, auth state,
// and a serialized writer shared between request replies and session
// event delivery.
type connection struct {
	id            string
	conn          net.Conn
	server        *Server
	logger        *slog.Logger
	authenticated bool

	// writeMu serializes outbound messages so session data arriving
	// from the relay goroutine cannot tear a reply in half.
	writeMu sync.Mutex
}

// run reads the connection until EOF or error, feeding the framer.
// Dispatch happens synchronously on this goroutine, so per-connection
// requests are processed strictly in arrival order.
func (c *connection) run() {
	framer := &protocol.Framer{
		OnMessage: c.dispatch,
		OnError: func(line []byte, err error) {
			// A bad line never drops the connection; log and move on.
			c.logger.Warn("malformed protocol line",
				"error", err,
				"length", len(line),
			)
		},
	}

	buffer := make([]byte, 32*1024)
	for {
		bytesRead, err := c.conn.Read(buffer)
		if bytesRead > 0 {
			framer.Feed(buffer[:bytesRead])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.logger.Warn("connection read failed", "error", err)
			}
			return
		}
	}
}

// dispatch routes one parsed request. Field validation happens here,
// at the boundary, before any handler logic.
func (c *connection) dispatch(request protocol.Request) {
	if !c.authenticated {
		if request.Op != protocol.OpHello {
			c.sendError(request, protocol.CodeAuthRequired, "authentication required: send hello first")
			return
		}
		c.handleHello(request)
		return
	}

	switch request.Op {
	case protocol.OpHello:
		// Re-hello from an authenticated connection is harmless.
		c.send(protocol.NewHelloOK())
	case protocol.OpSpawn:
		c.handleSpawn(request)
	case protocol.OpWrite:
		c.handleWrite(request)
	case protocol.OpResize:
		c.handleResize(request)
	case protocol.OpSignal:
		c.handleSignal(request)
	case protocol.OpClose:
		c.handleClose(request)
	default:
		c.sendError(request, protocol.CodeUnknownOp, "unknown op: "+request.Op)
	}
}

// handleHello checks the shared secret. A mismatch is answered and
// then the socket is closed; this is the one per-request error that
// costs the client its connection.
func (c *connection) handleHello(request protocol.Request) {
	if subtle.ConstantTimeCompare([]byte(request.Token), []byte(c.server.config.Token)) != 1 {
		c.logger.Warn("authentication failed")
		c.sendError(request, protocol.CodeAuthFailed, "invalid token")
		c.conn.Close()
		return
	}
	c.authenticated = true
	c.logger.Debug("authenticated")
	c.send(protocol.NewHelloOK())
}

// handleWrite forwards input bytes to the session. Base64 payloads
// take precedence; raw text is accepted for convenience.
func (c *connection) handleWrite(request protocol.Request) {
	sess, ok := c.requireOwnedSession(request)
	if !ok {
		return
	}

	var payload []byte
	switch {
	case request.DataB64 != "":
		decoded, err := base64.StdEncoding.DecodeString(request.DataB64)
		if err != nil {
			c.sendError(request, protocol.CodeInvalidRequest, "invalid base64 in data_b64")
			return
		}
		payload = decoded
	case request.Data != "":
		payload = []byte(request.Data)
	default:
		c.sendError(request, protocol.CodeInvalidRequest, "write requires data_b64 or data")
		return
	}

	if err := sess.Write(payload); err != nil {
		// The child raced us to exit; the slot is clearing.
		c.sendError(request, protocol.CodeInvalidSession, "session is no longer writable")
	}
}

func (c *connection) handleResize(request protocol.Request) {
	sess, ok := c.requireOwnedSession(request)
	if !ok {
		return
	}
	if request.Cols <= 0 || request.Rows <= 0 {
		c.sendError(request, protocol.CodeInvalidRequest, "resize requires positive cols and rows")
		return
	}
	if err := sess.Resize(request.Cols, request.Rows); err != nil {
		c.logger.Warn("resize failed", "error", err)
		c.sendError(request, protocol.CodeInvalidSession, "session is no longer resizable")
	}
}

func (c *connection) handleSignal(request protocol.Request) {
	sess, ok := c.requireOwnedSession(request)
	if !ok {
		return
	}
	name := request.Signal
	if name == "" {
		name = "SIGTERM"
	}
	if err := sess.Signal(name); err != nil {
		c.sendError(request, protocol.CodeInvalidRequest, err.Error())
	}
}

// handleClose terminates the session and frees the slot immediately.
// The exit message still follows once the child is reaped.
func (c *connection) handleClose(request protocol.Request) {
	sess, ok := c.requireOwnedSession(request)
	if !ok {
		return
	}
	c.logger.Info("session closed by owner", "session", sess.ID)
	c.server.releaseSession(sess.ID)
	sess.Terminate()
}

// requireOwnedSession validates the session id and ownership shared by
// write, resize, signal, and close. Replies with the appropriate error
// when validation fails.
func (c *connection) requireOwnedSession(request protocol.Request) (*session.Session, bool) {
	active, owner, found := c.server.lookupSession(request.Session)
	if !found {
		c.sendError(request, protocol.CodeInvalidSession, "no such session")
		return nil, false
	}
	if owner != c {
		c.sendError(request, protocol.CodeNotOwner, "session is owned by another connection")
		return nil, false
	}
	return active, true
}

// send serializes and writes one message. Write failures mark the
// connection dead by closing it; the read loop observes the close and
// runs the teardown path.
func (c *connection) send(message any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.sendLocked(message)
}

// sendLocked writes one message with writeMu already held. The spawn
// path uses it to emit the spawned reply before releasing the writer
// to the session's data stream.
func (c *connection) sendLocked(message any) {
	encoded, err := protocol.Encode(message)
	if err != nil {
		c.logger.Error("encoding outbound message", "error", err)
		return
	}
	if _, err := c.conn.Write(encoded); err != nil {
		c.logger.Warn("connection write failed", "error", err)
		c.conn.Close()
	}
}

func (c *connection) sendError(request protocol.Request, code, message string) {
	c.send(protocol.NewError(code, message, request))
}
