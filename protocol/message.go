// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// Version is the protocol version reported in hello_ok responses.
// Clients use it to detect incompatible daemons.
const Version = 1

// Inbound op names. Every client-to-daemon line carries one of these
// in its "op" field.
const (
	OpHello  = "hello"
	OpSpawn  = "spawn"
	OpWrite  = "write"
	OpResize = "resize"
	OpSignal = "signal"
	OpClose  = "close"
)

// Outbound op names.
const (
	OpHelloOK = "hello_ok"
	OpSpawned = "spawned"
	OpData    = "data"
	OpExit    = "exit"
	OpError   = "error"
)

// Error codes carried in error messages.
const (
	// CodeAuthFailed is sent when a hello carries a wrong or missing
	// token. The daemon closes the connection after sending it.
	CodeAuthFailed = "auth_failed"

	// CodeAuthRequired is sent when a connection issues any op other
	// than hello before authenticating. The connection stays open.
	CodeAuthRequired = "auth_required"

	// CodeInvalidRequest is sent for structurally valid requests with
	// bad fields: empty cmd, non-positive resize dimensions, a write
	// with no payload, an unknown signal name.
	CodeInvalidRequest = "invalid_request"

	// CodeSessionActive rejects a spawn while a session already exists.
	// Spawns are never queued.
	CodeSessionActive = "session_active"

	// CodeSpawnFailed reports an OS-level spawn failure, including the
	// composed diagnostic when the minimal-environment retry also fails.
	CodeSpawnFailed = "spawn_failed"

	// CodeInvalidSession is sent when the request's session field does
	// not name the active session.
	CodeInvalidSession = "invalid_session"

	// CodeNotOwner is sent when a connection other than the session's
	// owner tries to mutate it.
	CodeNotOwner = "not_owner"

	// CodeUnknownOp is sent for an unrecognized op.
	CodeUnknownOp = "unknown_op"
)

// Request is the inbound message union. One struct covers every
// inbound op; the daemon validates the fields relevant to the op at
// the dispatch boundary before any handler logic runs.
type Request struct {
	// Op tags the request. Always required.
	Op string `json:"op"`

	// ID is an optional client-chosen request identifier, echoed back
	// on the spawned response and on error responses so callers can
	// correlate replies.
	ID string `json:"id,omitempty"`

	// Token authenticates a hello when the daemon has a shared secret
	// configured.
	Token string `json:"token,omitempty"`

	// Spawn fields.
	Cmd  string            `json:"cmd,omitempty"`
	Args []string          `json:"args,omitempty"`
	Cwd  string            `json:"cwd,omitempty"`
	Env  map[string]string `json:"env,omitempty"`

	// Terminal dimensions, used by spawn and resize.
	Cols int `json:"cols,omitempty"`
	Rows int `json:"rows,omitempty"`

	// Write payload: DataB64 is preferred and carries base64; Data
	// carries raw text for convenience. Exactly one should be set.
	Data    string `json:"data,omitempty"`
	DataB64 string `json:"data_b64,omitempty"`

	// Signal is the signal name for the signal op ("SIGTERM" or the
	// short "TERM" spelling). Defaults to SIGTERM when empty.
	Signal string `json:"signal,omitempty"`

	// Session names the target session for write, resize, signal and
	// close.
	Session string `json:"session,omitempty"`
}

// HelloOK acknowledges a successful (or unnecessary) authentication.
type HelloOK struct {
	Op      string `json:"op"`
	Version int    `json:"version"`
}

// NewHelloOK constructs the hello_ok response.
func NewHelloOK() HelloOK {
	return HelloOK{Op: OpHelloOK, Version: Version}
}

// Spawned reports a successful spawn: the daemon-generated session id
// and the child's OS process id.
type Spawned struct {
	Op      string `json:"op"`
	ID      string `json:"id,omitempty"`
	Session string `json:"session"`
	PID     int    `json:"pid"`
}

// NewSpawned constructs the spawned response for a request id.
func NewSpawned(requestID, sessionID string, pid int) Spawned {
	return Spawned{Op: OpSpawned, ID: requestID, Session: sessionID, PID: pid}
}

// Data carries a chunk of terminal output, base64-encoded so control
// bytes survive the text framing.
type Data struct {
	Op      string `json:"op"`
	Session string `json:"session"`
	DataB64 string `json:"data_b64"`
}

// NewData constructs a data message from already-encoded payload.
func NewData(sessionID, payloadB64 string) Data {
	return Data{Op: OpData, Session: sessionID, DataB64: payloadB64}
}

// Exit reports child termination. Exactly one of Code and Signal is
// non-nil; the other serializes as JSON null. It is always the last
// message sent for its session.
type Exit struct {
	Op      string  `json:"op"`
	Session string  `json:"session"`
	Code    *int    `json:"code"`
	Signal  *string `json:"signal"`
}

// NewExit constructs an exit message.
func NewExit(sessionID string, code *int, signal *string) Exit {
	return Exit{Op: OpExit, Session: sessionID, Code: code, Signal: signal}
}

// ErrorMessage reports a caller-relevant failure. ID and Session echo
// the triggering request where known so the message is self-contained.
type ErrorMessage struct {
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
	Session string `json:"session,omitempty"`
}

// NewError constructs an error message for a request.
func NewError(code, message string, request Request) ErrorMessage {
	return ErrorMessage{
		Op:      OpError,
		Code:    code,
		Message: message,
		ID:      request.ID,
		Session: request.Session,
	}
}
