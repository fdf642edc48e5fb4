package runtime

import (
	"chat-relay/errors"
	"context"
	"log/slog"
	"net"
	"time"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Acceptor hands every accepted connection to handle and immediately goes
// back to Accept. It runs as a supervised worker: closing the listener, which
// happens when ctx is cancelled, ends Run without error.
type Acceptor struct {
	log      *slog.Logger
	listener net.Listener
	handle   func(conn net.Conn)
}

func NewAcceptor(log *slog.Logger, listener net.Listener, handle func(conn net.Conn)) *Acceptor {
	return &Acceptor{log: log, listener: listener, handle: handle}
}

func (a *Acceptor) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = a.listener.Close()
	})
	defer stop()

	a.log.Info("Accepting connections", "address", a.listener.Addr().String())
	var backoff time.Duration
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				a.log.Info("Acceptor stopped", "address", a.listener.Addr().String())
				return nil
			}
			backoff = nextBackoff(backoff)
			a.log.Warn("Accept failed, retrying", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0
		a.handle(conn)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return minAcceptBackoff
	}
	return min(current*2, maxAcceptBackoff)
}
