package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ju4n97/estimator/internal/logger"
	"github.com/ju4n97/estimator/internal/power"
	"github.com/ju4n97/estimator/internal/xfs"
)

const (
	defaultWriteTimeout = 10 * time.Second
	acceptBackoff       = 50 * time.Millisecond
)

// ErrNotListening is returned by Serve when Listen was not called first.
var ErrNotListening = errors.New("socket server is not listening")

// Handler turns one raw request into a response.
type Handler interface {
	Handle(ctx context.Context, raw []byte) power.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, raw []byte) power.Response

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, raw []byte) power.Response {
	return f(ctx, raw)
}

// Option configures a Server.
type Option func(*Server)

// WithReadTimeout bounds how long a peer may take to send its request.
// Zero disables the deadline.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = d
	}
}

// WithStateHook is called on every state transition.
func WithStateHook(hook func(State)) Option {
	return func(s *Server) {
		s.hook = hook
	}
}

// Server serves one JSON request per connection on a unix socket.
// Connections are handled strictly one after another.
type Server struct {
	path        string
	handler     Handler
	readTimeout time.Duration
	hook        func(State)

	mu       sync.Mutex
	listener net.Listener
	state    atomic.Int32
}

// New creates a server for the socket at path.
func New(path string, handler Handler, opts ...Option) *Server {
	s := &Server{
		path:    path,
		handler: handler,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(state State) {
	s.state.Store(int32(state))
	if s.hook != nil {
		s.hook(state)
	}
}

// Listen removes any stale socket at the path and binds it.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	s.cleanup()

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.path, err)
	}
	s.listener = ln
	s.setState(StateListening)

	slog.Info("Started serving", "socket", s.path)

	return nil
}

// ListenAndServe binds the socket and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		s.cleanup()
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until ctx is done. The socket path is removed
// when Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	defer s.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("Failed to accept connection", "error", err)
			time.Sleep(acceptBackoff)
			continue
		}

		s.serveConn(ctx, conn)
	}
}

// Close stops listening and removes the socket path. It is idempotent.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateClosed {
		return nil
	}

	var err error
	if s.listener != nil {
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	s.cleanup()
	s.setState(StateClosed)

	slog.Info("Closed socket", "socket", s.path)

	return err
}

// cleanup removes the socket path. A missing path is not an error.
func (s *Server) cleanup() {
	if err := xfs.Remove(s.path); err != nil {
		slog.Error("Failed to remove socket", "socket", s.path, "error", err)
	}
}

// serveConn reads exactly one JSON value, dispatches it and writes the
// response back.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	log := slog.With("request_id", uuid.NewString())
	ctx = logger.WithContext(ctx, log)

	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}

	var resp power.Response

	var raw json.RawMessage
	if err := json.NewDecoder(conn).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			log.Debug("Peer closed without sending a request")
			return
		}
		log.Warn("Failed to read request", "error", err)
		resp = power.Failure(fmt.Sprintf("failed to handle request: %v", err))
	} else {
		resp = s.handler.Handle(ctx, raw)
	}

	data, err := resp.Encode()
	if err != nil {
		log.Error("Failed to encode response", "error", err)
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if _, err := conn.Write(data); err != nil {
		log.Warn("Failed to write response", "error", err)
		return
	}

	log.Debug("Served request", "ok", resp.OK())
}
