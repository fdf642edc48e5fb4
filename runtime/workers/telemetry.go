package workers

import (
	"context"
	"log/slog"
	"os"
	goruntime "runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// SessionCounter is satisfied by the registry.
type SessionCounter interface {
	Count() int
}

type Snapshot struct {
	Sessions   int
	Goroutines int
	RSSBytes   uint64
	CPUPercent float64
}

// TelemetryWorker periodically logs the relay load: active sessions,
// goroutines and the resource usage of the current process.
type TelemetryWorker struct {
	log      *slog.Logger
	sessions SessionCounter
	interval time.Duration
	pid      int32
}

func NewTelemetryWorker(log *slog.Logger, sessions SessionCounter, interval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{
		log:      log,
		sessions: sessions,
		interval: interval,
		pid:      int32(os.Getpid()),
	}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(w.pid)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case <-ticker.C:
			w.report(p)
		}
	}
}

func (w *TelemetryWorker) report(p *process.Process) {
	snapshot, err := w.Collect(p)
	if err != nil {
		w.log.Error("Failed to collect self stats", "error", err)
		return
	}
	w.log.Info("Relay telemetry",
		"sessions", snapshot.Sessions,
		"goroutines", snapshot.Goroutines,
		"rss_bytes", snapshot.RSSBytes,
		"cpu_percent", snapshot.CPUPercent)
}

// Collect reads the current load figures.
func (w *TelemetryWorker) Collect(p *process.Process) (Snapshot, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return Snapshot{}, err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Sessions:   w.sessions.Count(),
		Goroutines: goruntime.NumGoroutine(),
		RSSBytes:   memInfo.RSS,
		CPUPercent: cpu,
	}, nil
}
