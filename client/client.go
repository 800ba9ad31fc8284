// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/termgate/termgate/protocol"
)

// Client is a connection to the termgate daemon. Request methods are
// safe for concurrent use; only one goroutine may run the read side
// (Spawn's reply wait and Events) at a time.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
}

// ProtocolError is an error message received from the daemon.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("daemon error %s: %s", e.Code, e.Message)
}

// SpawnRequest describes the child process to start.
type SpawnRequest struct {
	Cmd  string
	Args []string
	Cwd  string
	Env  map[string]string
	Cols int
	Rows int
}

// Spawned is the daemon's acknowledgement of a successful spawn.
type Spawned struct {
	Session string
	PID     int
}

// Dial connects to the daemon socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial daemon socket %s: %w", socketPath, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close closes the daemon connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Hello authenticates the connection. It must be the first exchange
// when the daemon is configured with a token; with an empty daemon
// token it is a harmless version check.
func (c *Client) Hello(token string) error {
	if err := c.write(protocol.Request{Op: protocol.OpHello, Token: token}); err != nil {
		return err
	}
	op, line, err := c.readMessage()
	if err != nil {
		return err
	}
	switch op {
	case protocol.OpHelloOK:
		var reply protocol.HelloOK
		if err := json.Unmarshal(line, &reply); err != nil {
			return fmt.Errorf("decode hello_ok: %w", err)
		}
		if reply.Version != protocol.Version {
			return fmt.Errorf("daemon speaks protocol version %d, client speaks %d", reply.Version, protocol.Version)
		}
		return nil
	case protocol.OpError:
		return decodeError(line)
	default:
		return fmt.Errorf("unexpected %s reply to hello", op)
	}
}

// Spawn starts the session and waits for the spawned reply. The
// daemon guarantees no data message precedes it, so the next line on
// the wire is either spawned or error.
func (c *Client) Spawn(request SpawnRequest) (Spawned, error) {
	requestID := uuid.NewString()
	wire := protocol.Request{
		Op:   protocol.OpSpawn,
		ID:   requestID,
		Cmd:  request.Cmd,
		Args: request.Args,
		Cwd:  request.Cwd,
		Env:  request.Env,
		Cols: request.Cols,
		Rows: request.Rows,
	}
	if err := c.write(wire); err != nil {
		return Spawned{}, err
	}
	op, line, err := c.readMessage()
	if err != nil {
		return Spawned{}, err
	}
	switch op {
	case protocol.OpSpawned:
		var reply protocol.Spawned
		if err := json.Unmarshal(line, &reply); err != nil {
			return Spawned{}, fmt.Errorf("decode spawned: %w", err)
		}
		if reply.ID != "" && reply.ID != requestID {
			return Spawned{}, fmt.Errorf("spawned reply for request %q, sent %q", reply.ID, requestID)
		}
		return Spawned{Session: reply.Session, PID: reply.PID}, nil
	case protocol.OpError:
		return Spawned{}, decodeError(line)
	default:
		return Spawned{}, fmt.Errorf("unexpected %s reply to spawn", op)
	}
}

// Write sends input bytes to the session's terminal.
func (c *Client) Write(session string, data []byte) error {
	return c.write(protocol.Request{
		Op:      protocol.OpWrite,
		Session: session,
		DataB64: base64.StdEncoding.EncodeToString(data),
	})
}

// WriteString sends text input to the session's terminal.
func (c *Client) WriteString(session, text string) error {
	return c.Write(session, []byte(text))
}

// Resize updates the session's terminal dimensions.
func (c *Client) Resize(session string, cols, rows int) error {
	return c.write(protocol.Request{
		Op:      protocol.OpResize,
		Session: session,
		Cols:    cols,
		Rows:    rows,
	})
}

// Signal delivers a signal by name ("SIGTERM", "INT", ...) to the
// session's child process.
func (c *Client) Signal(session, name string) error {
	return c.write(protocol.Request{
		Op:      protocol.OpSignal,
		Session: session,
		Signal:  name,
	})
}

// CloseSession force-terminates the session. The exit event still
// arrives through the event loop.
func (c *Client) CloseSession(session string) error {
	return c.write(protocol.Request{Op: protocol.OpClose, Session: session})
}

// Events receives the daemon's asynchronous stream. Handlers run on
// the goroutine calling Run; a nil handler drops that event kind.
type Events struct {
	// Data delivers decoded terminal output bytes.
	Data func(session string, chunk []byte)

	// Exit reports session termination. Exactly one of code and
	// signal is non-nil.
	Exit func(session string, code *int, signal *string)

	// Error receives per-request error messages that arrive while the
	// event loop owns the read side.
	Error func(err *ProtocolError)
}

// Run reads daemon messages and dispatches them until an exit event
// arrives, the connection closes, or a message cannot be decoded.
// Returns nil after the exit event.
func (c *Client) Run(events Events) error {
	for {
		op, line, err := c.readMessage()
		if err != nil {
			return err
		}
		switch op {
		case protocol.OpData:
			var message protocol.Data
			if err := json.Unmarshal(line, &message); err != nil {
				return fmt.Errorf("decode data message: %w", err)
			}
			decoded, err := base64.StdEncoding.DecodeString(message.DataB64)
			if err != nil {
				return fmt.Errorf("decode terminal bytes: %w", err)
			}
			if events.Data != nil {
				events.Data(message.Session, decoded)
			}
		case protocol.OpExit:
			var message protocol.Exit
			if err := json.Unmarshal(line, &message); err != nil {
				return fmt.Errorf("decode exit message: %w", err)
			}
			if events.Exit != nil {
				events.Exit(message.Session, message.Code, message.Signal)
			}
			return nil
		case protocol.OpError:
			protocolErr, ok := decodeError(line).(*ProtocolError)
			if !ok {
				return fmt.Errorf("malformed error message: %s", line)
			}
			if events.Error != nil {
				events.Error(protocolErr)
			}
		default:
			return fmt.Errorf("unexpected %s message in event stream", op)
		}
	}
}

// write serializes one request line to the socket.
func (c *Client) write(request protocol.Request) error {
	encoded, err := protocol.Encode(request)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", request.Op, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(encoded); err != nil {
		return fmt.Errorf("send %s request: %w", request.Op, err)
	}
	return nil
}

// readMessage reads one line and identifies its op without fully
// decoding it. The daemon multiplexes several message shapes over one
// stream; callers decode the line into the struct the op names.
func (c *Client) readMessage() (string, []byte, error) {
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return "", nil, fmt.Errorf("read daemon message: %w", err)
	}
	var envelope struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return "", nil, fmt.Errorf("decode daemon message: %w", err)
	}
	return envelope.Op, line, nil
}

func decodeError(line []byte) error {
	var message protocol.ErrorMessage
	if err := json.Unmarshal(line, &message); err != nil {
		return fmt.Errorf("decode error message: %w", err)
	}
	return &ProtocolError{Code: message.Code, Message: message.Message}
}
