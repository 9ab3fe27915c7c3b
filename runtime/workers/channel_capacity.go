package workers

import (
	"chat-notify/observability"
	"context"
	"log/slog"
	"time"
)

// Queue is anything whose depth can be sampled without blocking.
type Queue interface {
	Name() string
	Len() int
	Cap() int
	Dropped() uint64
}

// ChannelCapacityWorker periodically reports queue length and capacity.
// Reading len and cap of a channel never blocks, so sampling does not interfere with the queue.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	queues         []Queue
	monitoring     *observability.MonitoringManager
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger,
	monitoring *observability.MonitoringManager,
	metricInterval time.Duration,
	queues ...Queue) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		queues:         queues,
		monitoring:     monitoring,
		metricInterval: metricInterval,
	}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling")
			return nil
		case <-ticker.C:
			w.Sample()
		}
	}
}

func (w ChannelCapacityWorker) Sample() {
	for _, q := range w.queues {
		info := observability.QueueInfo{
			Name:     q.Name(),
			Length:   q.Len(),
			Capacity: q.Cap(),
			Dropped:  q.Dropped(),
		}
		if info.Capacity > 0 && info.Length == info.Capacity {
			w.log.Warn("Queue is full", "name", info.Name, "capacity", info.Capacity)
		}
		w.monitoring.UpdateQueue(info)
	}
}
