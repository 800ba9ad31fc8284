// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/termgate/termgate/session"
)

// Config holds daemon configuration, resolved by the caller from flags
// and environment variables.
type Config struct {
	// SocketPath is where the Unix socket is created. Required.
	SocketPath string

	// Token is the shared secret clients must present in hello. Empty
	// disables authentication: connections start authenticated.
	Token string

	// SanitizeEnv strips loader injection variables from spawn
	// environments.
	SanitizeEnv bool

	// MinimalEnvRetry enables the one-shot retry with a minimal
	// environment after a spawn failure.
	MinimalEnvRetry bool

	// Logger receives daemon logs. Defaults to slog.Default.
	Logger *slog.Logger
}

// Server owns the listening socket and the single active session.
type Server struct {
	config Config
	logger *slog.Logger

	listener net.Listener

	// mu guards active. The slot is checked-and-set under the lock so
	// spawn exclusivity has no race window.
	mu     sync.Mutex
	active *activeSession

	// connMu guards open, the set of live connections. Shutdown closes
	// them so persistent clients cannot stall the accept-loop drain.
	connMu sync.Mutex
	open   map[*connection]struct{}

	shutdownOnce sync.Once
	connections  sync.WaitGroup
}

// activeSession pairs the running session with its owning connection.
// The owner is fixed at spawn and never transferred.
type activeSession struct {
	id      string
	owner   *connection
	session *session.Session
}

// DefaultSocketPath returns the socket location under the per-user
// configuration directory.
func DefaultSocketPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(configDir, "termgate", "termgated.sock"), nil
}

// New validates the configuration and returns an unstarted server.
func New(config Config) (*Server, error) {
	if config.SocketPath == "" {
		return nil, errors.New("socket path is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config: config,
		logger: logger,
		open:   make(map[*connection]struct{}),
	}, nil
}

// Serve binds the socket and accepts connections until ctx is
// cancelled, then shuts down: the active session is force-killed, the
// listener closed, and the socket file removed. Returns nil on clean
// shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.listen(); err != nil {
		return err
	}

	// Drive shutdown from context cancellation. Shutdown is
	// idempotent, so a caller may also invoke it directly.
	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	s.logger.Info("daemon listening",
		"socket", s.config.SocketPath,
		"auth", s.config.Token != "",
	)
	notifySystemd("READY=1")

	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.connections.Add(1)
		go func() {
			defer s.connections.Done()
			s.handleConnection(netConn)
		}()
	}

	s.connections.Wait()
	s.logger.Info("daemon stopped")
	return nil
}

// listen prepares the socket path and binds the listener. A stale
// socket file left by a previous run is removed; any other object at
// the path is a fatal startup error rather than something to clobber.
func (s *Server) listen() error {
	socketDir := filepath.Dir(s.config.SocketPath)
	if err := os.MkdirAll(socketDir, 0o700); err != nil {
		return fmt.Errorf("creating socket directory %s: %w", socketDir, err)
	}

	if info, err := os.Lstat(s.config.SocketPath); err == nil {
		if info.Mode()&os.ModeSocket == 0 {
			return fmt.Errorf("refusing to remove %s: not a socket", s.config.SocketPath)
		}
		if err := os.Remove(s.config.SocketPath); err != nil {
			return fmt.Errorf("removing stale socket %s: %w", s.config.SocketPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("inspecting socket path %s: %w", s.config.SocketPath, err)
	}

	listener, err := net.Listen("unix", s.config.SocketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.SocketPath, err)
	}

	// Owner-only: the socket is the entire security boundary when no
	// token is configured.
	if err := os.Chmod(s.config.SocketPath, 0o600); err != nil {
		listener.Close()
		os.Remove(s.config.SocketPath)
		return fmt.Errorf("restricting socket permissions: %w", err)
	}

	s.listener = listener
	return nil
}

// Shutdown stops the daemon: kills the active session, closes the
// listener, and removes the socket file. Idempotent; repeat calls are
// no-ops. Socket unlink failures are ignored; the file is advisory
// once the listener is closed.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.logger.Info("shutting down")

		s.mu.Lock()
		active := s.active
		s.active = nil
		s.mu.Unlock()
		if active != nil && active.session != nil {
			s.logger.Info("killing active session", "session", active.id)
			active.session.Terminate()
		}

		if s.listener != nil {
			s.listener.Close()
		}
		os.Remove(s.config.SocketPath)

		s.connMu.Lock()
		for conn := range s.open {
			conn.conn.Close()
		}
		s.connMu.Unlock()
	})
}

// handleConnection runs one client connection to completion.
func (s *Server) handleConnection(netConn net.Conn) {
	conn := &connection{
		id:     uuid.NewString(),
		conn:   netConn,
		server: s,
		// With no token configured, connections start authenticated.
		authenticated: s.config.Token == "",
	}
	conn.logger = s.logger.With("conn", conn.id)
	conn.logger.Debug("connection accepted")

	s.connMu.Lock()
	s.open[conn] = struct{}{}
	s.connMu.Unlock()

	conn.run()

	s.connMu.Lock()
	delete(s.open, conn)
	s.connMu.Unlock()

	// If this connection owns the active session, the disconnect
	// orphans it: force-kill and free the slot.
	s.mu.Lock()
	var orphaned *session.Session
	if s.active != nil && s.active.owner == conn {
		orphaned = s.active.session
		s.active = nil
	}
	s.mu.Unlock()
	if orphaned != nil {
		conn.logger.Warn("owner disconnected with session active, terminating",
			"session", orphaned.ID)
		orphaned.Terminate()
	}

	netConn.Close()
	conn.logger.Debug("connection closed")
}

// reserveSession claims the single-session slot for a connection,
// generating the session id. Fails when a session is already active.
func (s *Server) reserveSession(conn *connection) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return "", false
	}
	id := uuid.NewString()
	s.active = &activeSession{id: id, owner: conn}
	return id, true
}

// bindSession attaches the started session to its reservation.
// Returns false if the reservation is gone (daemon shut down while
// the spawn was in flight).
func (s *Server) bindSession(id string, sess *session.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.id != id {
		return false
	}
	s.active.session = sess
	return true
}

// releaseSession frees the slot if it still holds the given session id.
func (s *Server) releaseSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.id == id {
		s.active = nil
	}
}

// lookupSession resolves a session id to the running session and its
// owner. ok is false when no session is active or the id does not
// match.
func (s *Server) lookupSession(id string) (sess *session.Session, owner *connection, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.id != id || s.active.session == nil {
		return nil, nil, false
	}
	return s.active.session, s.active.owner, true
}

// notifySystemd reports readiness to systemd's notify socket. No-op
// when not running under systemd.
func notifySystemd(state string) {
	socketPath := os.Getenv("NOTIFY_SOCKET")
	if socketPath == "" {
		return
	}
	conn, err := net.Dial("unixgram", socketPath)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.Write([]byte(state))
}
