package runtime

import (
	"bufio"
	"chat-relay/codec"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMaxLineBytes = 64 * 1024
	initialLineBuffer   = 4 * 1024
)

type SessionOptions struct {
	MaxLineBytes int
	WriteTimeout time.Duration
}

// Session is the server side of one connection.
//
// It is the only reader of its connection. Writes come from any goroutine
// (its own replies, other sessions' broadcasts) and are serialized by the
// outbound lock so a frame is never interleaved with another one.
type Session struct {
	ID       uuid.UUID
	log      *slog.Logger
	conn     net.Conn
	registry contract.IRegistry
	router   contract.IRouter
	opts     SessionOptions

	outbound  sync.Mutex
	username  string
	state     atomic.Int32
	closeOnce sync.Once
}

func NewSession(log *slog.Logger, conn net.Conn, registry contract.IRegistry,
	router contract.IRouter, opts SessionOptions) *Session {
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = defaultMaxLineBytes
	}
	id := uuid.New()
	return &Session{
		ID:       id,
		log:      log.With("session_id", id.String(), "remote", conn.RemoteAddr().String()),
		conn:     conn,
		registry: registry,
		router:   router,
		opts:     opts,
	}
}

// Username is empty until the handshake decoded a join, then never changes.
func (s *Session) Username() string {
	return s.username
}

func (s *Session) State() domain.SessionState {
	return domain.SessionState(s.state.Load())
}

// Send writes one frame followed by the line delimiter.
// A failed write may have left part of the frame on the wire, so the
// connection is closed and the read loop tears the session down.
func (s *Session) Send(frame []byte) error {
	if s.State() == domain.Closed {
		return errors.ErrSessionClosed
	}

	line := make([]byte, 0, len(frame)+1)
	line = append(line, frame...)
	line = append(line, '\n')

	s.outbound.Lock()
	defer s.outbound.Unlock()

	if s.State() == domain.Closed {
		return errors.ErrSessionClosed
	}
	if s.opts.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			s.close()
			return err
		}
	}
	if _, err := s.conn.Write(line); err != nil {
		s.close()
		return err
	}
	return nil
}

// Serve runs the session until its connection fails or closes.
// Serve owns the connection and has closed it when it returns.
func (s *Session) Serve() {
	defer s.close()

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, min(initialLineBuffer, s.opts.MaxLineBytes)), s.opts.MaxLineBytes)

	if !s.handshake(scanner) {
		return
	}
	defer s.leave()

	s.readLoop(scanner)
}

// handshake expects a join as the very first line and reserves its username.
func (s *Session) handshake(scanner *bufio.Scanner) bool {
	if !scanner.Scan() {
		s.log.Debug("Connection closed before handshake", "error", scanner.Err())
		return false
	}

	join, err := codec.DecodeHandshake(scanner.Bytes())
	if err != nil {
		s.log.Info("Handshake rejected", "error", err)
		s.reject("First message must be join")
		return false
	}

	s.username = join.From
	if !s.registry.TryRegister(join.From, s) {
		s.log.Info("Handshake rejected", "username", join.From,
			"error", fmt.Errorf("%w: %s", errors.ErrIdentityConflict, join.From))
		s.reject(fmt.Sprintf("Username '%s' is already taken", join.From))
		return false
	}

	s.state.CompareAndSwap(int32(domain.Connecting), int32(domain.Active))
	s.log = s.log.With("username", s.username)
	s.log.Info("Client connected")
	s.router.Joined(s.username)
	return true
}

func (s *Session) readLoop(scanner *bufio.Scanner) {
	for scanner.Scan() {
		msg, err := codec.Decode(scanner.Bytes())
		if err == nil {
			err = codec.Validate(msg)
		}
		if err != nil {
			s.log.Debug("Dropping malformed line", "error", err)
			continue
		}
		s.router.Route(s, msg)
	}
	if err := scanner.Err(); err != nil {
		s.log.Debug("Read failed", "error", err)
	}
}

// reject sends a single sys message to a session that never became Active.
func (s *Session) reject(reason string) {
	frame, err := codec.Encode(domain.NewSys(reason, time.Now()))
	if err != nil {
		return
	}
	if err = s.Send(frame); err != nil {
		s.log.Debug("Could not deliver rejection", "error", err)
	}
}

// leave releases the username before announcing the departure, so the
// refreshed roster no longer carries it and the name can be claimed again.
func (s *Session) leave() {
	s.registry.Unregister(s.username)
	s.close()
	s.router.Left(s.username)
	s.log.Info("Client disconnected")
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(domain.Closed))
		if err := s.conn.Close(); err != nil {
			s.log.Debug("Error closing connection", "error", err)
		}
	})
}
