// Package runtime accepts connections, binds them to sessions and relays
// their messages. It owns the only shared mutable state of the relay, the
// Registry, and never holds its lock on behalf of a caller.
package runtime

import (
	"chat-relay/contract"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

type ServerOptions struct {
	Address string
	Session SessionOptions
}

// Server owns the registry, the router and the acceptor.
//
// Shutdown stops accepting and waits for the running sessions to end on their
// own; it never closes a session's connection.
type Server struct {
	log        *slog.Logger
	registry   *Registry
	router     *Router
	supervisor contract.ISupervisor
	opts       ServerOptions

	mu       sync.Mutex
	listener net.Listener
	workers  []contract.Worker
	sessions sync.WaitGroup
}

func NewServer(log *slog.Logger, supervisor contract.ISupervisor, registry *Registry,
	router *Router, opts ServerOptions) *Server {
	return &Server{
		log:        log,
		registry:   registry,
		router:     router,
		supervisor: supervisor,
		opts:       opts,
	}
}

// Add registers auxiliary workers supervised next to the acceptor.
func (s *Server) Add(workers ...contract.Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, workers...)
}

// Listen binds the listening socket. Serve calls it when needed; calling it
// first lets the caller read Addr before serving.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Address, err)
	}
	s.listener = listener
	return nil
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the acceptor and the auxiliary workers until ctx is cancelled
// or Shutdown is called. Sessions may still be running when it returns.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	s.supervisor.Add(NewAcceptor(s.log, s.listener, s.handle))
	s.supervisor.Add(s.workers...)
	s.mu.Unlock()

	s.log.Info("Chat relay started", "address", s.Addr().String())
	s.supervisor.Run(ctx)
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight sessions
// to drain until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Requesting relay shutdown", "sessions", s.registry.Count())
	s.supervisor.Stop()

	drained := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.log.Info("All sessions drained")
		return nil
	case <-ctx.Done():
		s.log.Warn("Shutdown deadline reached with sessions still running", "sessions", s.registry.Count())
		return ctx.Err()
	}
}

func (s *Server) handle(conn net.Conn) {
	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("Session panicked", "remote", conn.RemoteAddr().String(), "panic", r)
				_ = conn.Close()
			}
		}()
		NewSession(s.log, conn, s.registry, s.router, s.opts.Session).Serve()
	}()
}
