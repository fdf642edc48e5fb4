package main

import (
	"chat-relay/infrastructure/grpc/server"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the relay and blocks until SIGINT/SIGTERM, then drains the
// sessions for at most SHUTDOWN_TIMEOUT.
func run() error {
	// 1. Configuration & Logger
	config, err := internal.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Routing
	registry := runtime.NewRegistry()
	router, err := newRouter(log, config, registry)
	if err != nil {
		return err
	}

	// 3. Supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	relay := runtime.NewServer(log, sup, registry, router, runtime.ServerOptions{
		Address: config.Address(),
		Session: runtime.SessionOptions{
			MaxLineBytes: config.MaxLineBytes,
			WriteTimeout: config.WriteTimeout,
		},
	})
	if config.MetricInterval > 0 {
		relay.Add(workers.NewTelemetryWorker(log, registry, config.MetricInterval))
	}
	if address := config.HealthAddress(); address != "" {
		relay.Add(server.NewHealthWorker(log, address))
	}
	if err = relay.Listen(); err != nil {
		return err
	}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Serve until a signal arrives
	if err = relay.Serve(ctx); err != nil {
		return fmt.Errorf("relay failed: %w", err)
	}

	// 6. Drain
	log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err = relay.Shutdown(shutdownCtx); err != nil {
		log.Warn("Sessions still open at exit", "error", err)
	}
	log.Info("Program stopped cleanly")
	return nil
}

// newRouter enables moderation only when CENSORED_WORDS lists something.
func newRouter(log *slog.Logger, config internal.Config, registry *runtime.Registry) (*runtime.Router, error) {
	words := moderation.ParseDictionary(config.CensoredWords)
	if len(words) == 0 {
		return runtime.NewRouter(log, registry, nil), nil
	}

	char, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	moderator, err := moderation.NewModerator(words, char, log)
	if err != nil {
		return nil, fmt.Errorf("moderation setup failed: %w", err)
	}
	log.Info("Moderation enabled", "words", len(words))
	return runtime.NewRouter(log, registry, moderator), nil
}
