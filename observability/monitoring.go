package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// QueueInfo is the last sampled depth of an internal queue.
type QueueInfo struct {
	Name     string `json:"name"`
	Length   int    `json:"length"`
	Capacity int    `json:"capacity"`
	Dropped  uint64 `json:"dropped"`
}

// ProcessInfo is the last sampled state of this process.
type ProcessInfo struct {
	PID        int32   `json:"pid"`
	Status     string  `json:"status"`
	CpuPercent float64 `json:"cpu_percent"`
	RssBytes   uint64  `json:"rss_bytes"`
	Goroutines int     `json:"goroutines"`
	SampledAt  string  `json:"sampled_at"`
}

// MonitoringStats aggregates every counter exposed on the debug server.
type MonitoringStats struct {
	FeedConnected          bool        `json:"feed_connected"`
	NotificationsReceived  uint64      `json:"notifications_received"`
	NotificationsMalformed uint64      `json:"notifications_malformed"`
	FeedReconnects         uint64      `json:"feed_reconnects"`
	EventsDispatched       uint64      `json:"events_dispatched"`
	EventsDropped          uint64      `json:"events_dropped"`
	Deliveries             uint64      `json:"deliveries"`
	DeliveryFailures       uint64      `json:"delivery_failures"`
	SessionsOpened         uint64      `json:"sessions_opened"`
	SessionsClosed         uint64      `json:"sessions_closed"`
	SessionOverflows       uint64      `json:"session_overflows"`
	AuthFailures           uint64      `json:"auth_failures"`
	LiveSessions           int         `json:"live_sessions"`
	AllocMemMb             uint64      `json:"alloc_mem_mb"`
	NumGC                  uint32      `json:"num_gc"`
	Queues                 []QueueInfo `json:"queues"`
	Process                ProcessInfo `json:"process"`
}

// MonitoringManager collects counters from the running components.
// Counters are atomics; sampled values are guarded by mu.
type MonitoringManager struct {
	log *slog.Logger
	mu  sync.RWMutex

	feedConnected          atomic.Bool
	notificationsReceived  atomic.Uint64
	notificationsMalformed atomic.Uint64
	feedReconnects         atomic.Uint64
	eventsDispatched       atomic.Uint64
	eventsDropped          atomic.Uint64
	deliveries             atomic.Uint64
	deliveryFailures       atomic.Uint64
	sessionsOpened         atomic.Uint64
	sessionsClosed         atomic.Uint64
	sessionOverflows       atomic.Uint64
	authFailures           atomic.Uint64

	liveSessions func() int
	queues       map[string]QueueInfo
	process      ProcessInfo
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{
		log:    log,
		queues: make(map[string]QueueInfo),
	}
}

// WithLiveSessions plugs the source of the live session count.
func (mm *MonitoringManager) WithLiveSessions(count func() int) *MonitoringManager {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.liveSessions = count
	return mm
}

func (mm *MonitoringManager) SetFeedConnected(connected bool) {
	mm.feedConnected.Store(connected)
}

func (mm *MonitoringManager) IncrNotificationsReceived()  { mm.notificationsReceived.Add(1) }
func (mm *MonitoringManager) IncrNotificationsMalformed() { mm.notificationsMalformed.Add(1) }
func (mm *MonitoringManager) IncrFeedReconnects()         { mm.feedReconnects.Add(1) }
func (mm *MonitoringManager) IncrEventsDispatched()       { mm.eventsDispatched.Add(1) }
func (mm *MonitoringManager) IncrEventsDropped()          { mm.eventsDropped.Add(1) }
func (mm *MonitoringManager) IncrDeliveries()             { mm.deliveries.Add(1) }
func (mm *MonitoringManager) IncrDeliveryFailures()       { mm.deliveryFailures.Add(1) }
func (mm *MonitoringManager) IncrSessionsOpened()         { mm.sessionsOpened.Add(1) }
func (mm *MonitoringManager) IncrSessionsClosed()         { mm.sessionsClosed.Add(1) }
func (mm *MonitoringManager) IncrSessionOverflows()       { mm.sessionOverflows.Add(1) }
func (mm *MonitoringManager) IncrAuthFailures()           { mm.authFailures.Add(1) }

// UpdateQueue records the sampled depth of a named queue.
func (mm *MonitoringManager) UpdateQueue(info QueueInfo) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.queues[info.Name] = info
}

// UpdateProcess records the sampled process metrics.
func (mm *MonitoringManager) UpdateProcess(info ProcessInfo) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	info.SampledAt = time.Now().UTC().Format(time.RFC3339)
	mm.process = info
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	stats := MonitoringStats{
		FeedConnected:          mm.feedConnected.Load(),
		NotificationsReceived:  mm.notificationsReceived.Load(),
		NotificationsMalformed: mm.notificationsMalformed.Load(),
		FeedReconnects:         mm.feedReconnects.Load(),
		EventsDispatched:       mm.eventsDispatched.Load(),
		EventsDropped:          mm.eventsDropped.Load(),
		Deliveries:             mm.deliveries.Load(),
		DeliveryFailures:       mm.deliveryFailures.Load(),
		SessionsOpened:         mm.sessionsOpened.Load(),
		SessionsClosed:         mm.sessionsClosed.Load(),
		SessionOverflows:       mm.sessionOverflows.Load(),
		AuthFailures:           mm.authFailures.Load(),
		Queues:                 make([]QueueInfo, 0, len(mm.queues)),
		Process:                mm.process,
	}
	if mm.liveSessions != nil {
		stats.LiveSessions = mm.liveSessions()
	}
	for _, q := range mm.queues {
		stats.Queues = append(stats.Queues, q)
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.AllocMemMb = m.Alloc / 1024 / 1024
	stats.NumGC = m.NumGC

	mm.log.Debug("Stats collected",
		"feed_connected", stats.FeedConnected,
		"live_sessions", stats.LiveSessions,
		"events_dispatched", stats.EventsDispatched,
	)
	return stats
}
