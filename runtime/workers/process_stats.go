package workers

import (
	"context"
	"log/slog"
	"os"
	"rendezvous/observability"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessStatsWorker samples the server's own memory and CPU usage and
// publishes them as gauges.
type ProcessStatsWorker struct {
	log      *slog.Logger
	interval time.Duration
	metrics  *observability.Metrics
}

func NewProcessStatsWorker(log *slog.Logger, interval time.Duration, metrics *observability.Metrics) *ProcessStatsWorker {
	return &ProcessStatsWorker{log: log, interval: interval, metrics: metrics}
}

func (w *ProcessStatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rss, cpu, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect process stats", "error", err)
				continue
			}
			w.metrics.SetProcessStats(rss, cpu)
		}
	}
}

func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
