// Package runtime moves events from the change feed to the live sessions.
// It wires the pipeline together without containing business logic or routing rules.
package runtime

import (
	"chat-notify/contract"
	"chat-notify/observability"
	"chat-notify/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const dispatcherSubscription = "dispatcher"

type PipelineConfig struct {
	Channels                 []string
	ReconnectInitialInterval time.Duration
	ReconnectMaxInterval     time.Duration
	ResolveTimeout           time.Duration
	FanoutConcurrency        int
	MetricInterval           time.Duration
}

// Orchestrator owns the notification pipeline:
// ChangeFeedListener -> EventBus -> Dispatcher -> Sessions.
type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	supervisor contract.ISupervisor
	registry   *Registry
	bus        *EventBus
	feed       contract.ChangeFeed
	resolver   contract.MembershipResolver
	monitoring *observability.MonitoringManager
	reporters  []contract.StatusReporter
	extra      []contract.Worker
	config     PipelineConfig
}

func NewOrchestrator(log *slog.Logger, supervisor *workers.Supervisor,
	registry *Registry, bus *EventBus,
	feed contract.ChangeFeed, resolver contract.MembershipResolver,
	monitoring *observability.MonitoringManager, config PipelineConfig) *Orchestrator {
	return &Orchestrator{
		log:        log,
		supervisor: supervisor,
		registry:   registry,
		bus:        bus,
		feed:       feed,
		resolver:   resolver,
		monitoring: monitoring.WithLiveSessions(registry.Count),
		config:     config,
	}
}

// Add supervises extra workers next to the pipeline.
func (o *Orchestrator) Add(workers ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extra = append(o.extra, workers...)
}

// AddReporter registers a listener for change feed connectivity.
func (o *Orchestrator) AddReporter(reporters ...contract.StatusReporter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reporters = append(o.reporters, reporters...)
}

// Start blocks until Stop is called or ctx is cancelled.
// The bus is closed once every worker, the listener included, has returned.
func (o *Orchestrator) Start(ctx context.Context) error {
	if len(o.config.Channels) == 0 {
		return fmt.Errorf("orchestrator: no change feed channel")
	}
	subscription := o.bus.Subscribe(dispatcherSubscription)

	o.mu.Lock()
	listener := workers.NewChangeFeedListener(o.log, o.feed, o.config.Channels, o.bus, o.monitoring,
		o.config.ReconnectInitialInterval, o.config.ReconnectMaxInterval, o.reporters...)
	dispatcher := workers.NewDispatcher(o.log, subscription.Events(), o.registry, o.resolver, o.monitoring,
		o.config.ResolveTimeout, o.config.FanoutConcurrency)
	o.supervisor.Add(listener, dispatcher)
	if o.config.MetricInterval > 0 {
		o.supervisor.Add(
			workers.NewChannelCapacityWorker(o.log, o.monitoring, o.config.MetricInterval, subscription),
			workers.NewHealthMonitoringWorker(o.log, o.monitoring, o.config.MetricInterval),
		)
	}
	o.supervisor.Add(o.extra...)
	o.mu.Unlock()

	o.log.Info("Starting notification pipeline", "channels", o.config.Channels)
	o.supervisor.Run(ctx)
	o.bus.Close()
	return nil
}

// Stop cancels the workers and closes every live session so streaming handlers return.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
	closed := o.CloseSessions()
	o.log.Debug("Live sessions closed", "count", closed)
}

// CloseSessions ends every registered session.
func (o *Orchestrator) CloseSessions() int {
	closed := 0
	for _, sinks := range o.registry.Snapshot() {
		for _, sink := range sinks {
			if c, ok := sink.(interface{ Close() }); ok {
				c.Close()
				closed++
			}
		}
	}
	return closed
}
