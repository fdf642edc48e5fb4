package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/shirou/gopsutil/process"
	"github.com/stretchr/testify/require"
)

type fixedCounter int

func (c fixedCounter) Count() int { return int(c) }

func TestTelemetryWorker_Collect(t *testing.T) {
	req := require.New(t)
	worker := NewTelemetryWorker(logs.GetLoggerFromLevel(slog.LevelDebug), fixedCounter(3), time.Second)

	p, err := process.NewProcess(int32(os.Getpid()))
	req.NoError(err)

	snapshot, err := worker.Collect(p)
	req.NoError(err)
	req.Equal(3, snapshot.Sessions)
	req.Positive(snapshot.Goroutines)
	req.Positive(snapshot.RSSBytes)
}

func TestTelemetryWorker_StopsWithContext(t *testing.T) {
	worker := NewTelemetryWorker(logs.GetLoggerFromLevel(slog.LevelDebug), fixedCounter(0), 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, worker.Run(ctx))
}

func TestTelemetryWorker_ReportsCollectFailure(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&out, nil))
	worker := NewTelemetryWorker(log, fixedCounter(0), time.Second)

	// No such process
	worker.report(&process.Process{Pid: math.MaxInt32})

	var record map[string]any
	req.NoError(json.Unmarshal(out.Bytes(), &record))
	req.Equal("Failed to collect self stats", record["msg"])
	req.Contains(record, "error")
	req.NotContains(record, "err")
}
