package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RelayService is the service name reported next to the overall ("") status.
const RelayService = "chat.Relay"

// HealthWorker exposes the standard grpc.health.v1 service.
// It reports SERVING while it runs and NOT_SERVING as soon as its context
// is cancelled, before the gRPC server drains.
type HealthWorker struct {
	log     *slog.Logger
	address string
	health  *health.Server

	mu       sync.Mutex
	listener net.Listener
}

func NewHealthWorker(log *slog.Logger, address string) *HealthWorker {
	return &HealthWorker{log: log, address: address, health: health.NewServer()}
}

// Listen binds the health port ahead of Run so callers can read Addr.
func (w *HealthWorker) Listen() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", w.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", w.address, err)
	}
	w.listener = listener
	return nil
}

func (w *HealthWorker) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.listener == nil {
		return nil
	}
	return w.listener.Addr()
}

func (w *HealthWorker) Run(ctx context.Context) error {
	if err := w.Listen(); err != nil {
		return err
	}
	w.mu.Lock()
	listener := w.listener
	w.mu.Unlock()

	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, w.health)
	w.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	w.health.SetServingStatus(RelayService, healthpb.HealthCheckResponse_SERVING)

	// Use an error channel to capture Serve() issues
	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting gRPC health server", "address", listener.Addr().String())
		if err := s.Serve(listener); err != nil && err != grpc.ErrServerStopped {
			errChan <- fmt.Errorf("gRPC health server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		w.health.Shutdown()
		s.GracefulStop()
		w.log.Info("gRPC health server stopped")
		return nil
	case err := <-errChan:
		s.Stop()
		// The listener is gone, a restart must bind again.
		w.mu.Lock()
		w.listener = nil
		w.mu.Unlock()
		return err
	}
}
