// Package server runs the chat accept loop: every accepted connection gets a
// termination channel in the shared registry and an echo handler on the
// worker pool.
package server

import (
	"errors"
	"log/slog"
	"net"

	"tools.zach/dev/loopchat/internal/chat"
	"tools.zach/dev/loopchat/internal/pool"
	"tools.zach/dev/loopchat/internal/shutdown"
)

// Executor queues jobs. [*pool.Pool] satisfies it.
type Executor interface {
	Execute(job pool.Job) error
}

// Server accepts connections on a listener and dispatches a [chat.Handler]
// for each.
type Server struct {
	ln       net.Listener
	exec     Executor
	registry *shutdown.Registry
	// handlerOpts are applied to every handler after the server's defaults.
	handlerOpts []chat.Option
	logger      *slog.Logger
}

// Option configures a [Server].
type Option func(*Server)

// WithHandlerOptions appends options passed to every connection handler.
func WithHandlerOptions(opts ...chat.Option) Option {
	return func(s *Server) { s.handlerOpts = append(s.handlerOpts, opts...) }
}

// WithLogger sets the server's logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a server. The registry must be the one the shutdown coordinator
// broadcasts to.
func New(ln net.Listener, exec Executor, registry *shutdown.Registry, opts ...Option) *Server {
	s := &Server{
		ln:       ln,
		exec:     exec,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts until the listener is closed, then returns nil. Accept
// failures are logged and the loop continues.
func (s *Server) Serve() error {
	s.logger.Info("accepting connections", "addr", s.ln.Addr().String())
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info("listener closed, accept loop stopped")
				return nil
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		s.dispatch(conn)
	}
}

// Close stops the accept loop. Running handlers are unaffected; they stop on
// the coordinator's terminate broadcast.
func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) dispatch(conn net.Conn) {
	term := shutdown.NewTermination()
	s.registry.Register(term)

	opts := append([]chat.Option{chat.WithLogger(s.logger)}, s.handlerOpts...)
	h := chat.NewHandler(conn, term, opts...)
	if err := s.exec.Execute(h); err != nil {
		s.logger.Warn("rejecting connection", "remote", conn.RemoteAddr().String(), "error", err)
		conn.Close()
		return
	}
	s.logger.Debug("connection dispatched", "remote", conn.RemoteAddr().String(), "registered", s.registry.Len())
}
