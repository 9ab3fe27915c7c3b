package workers

import (
	"chat-notify/observability"
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HealthMonitoringWorker samples this process (status, CPU, RSS, goroutines) on every tick.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	monitoring     *observability.MonitoringManager
	metricInterval time.Duration
}

func NewHealthMonitoringWorker(
	log *slog.Logger,
	monitoring *observability.MonitoringManager,
	metricInterval time.Duration,
) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		monitoring:     monitoring,
		metricInterval: metricInterval,
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	pid := int32(os.Getpid())
	p, err := process.NewProcess(pid)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			info, err := sample(p)
			if err != nil {
				w.log.Error("Error while sampling process", "pid", pid, "err", err)
				continue
			}
			w.monitoring.UpdateProcess(info)
		}
	}
}

func sample(p *process.Process) (observability.ProcessInfo, error) {
	status, err := p.Status()
	if err != nil {
		return observability.ProcessInfo{}, err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return observability.ProcessInfo{}, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return observability.ProcessInfo{}, err
	}
	return observability.ProcessInfo{
		PID:        p.Pid,
		Status:     status,
		CpuPercent: cpu,
		RssBytes:   mem.RSS,
		Goroutines: runtime.NumGoroutine(),
	}, nil
}
