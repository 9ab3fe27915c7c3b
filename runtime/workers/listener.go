package workers

import (
	"chat-notify/contract"
	"chat-notify/domain/event"
	apperrors "chat-notify/errors"
	"chat-notify/observability"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const feedCloseTimeout = 2 * time.Second

// ChangeFeedListener keeps a single subscription to the store's notification channels,
// decodes what it receives and publishes the events in arrival order.
// Notifications sent while it is disconnected are lost.
type ChangeFeedListener struct {
	log        *slog.Logger
	feed       contract.ChangeFeed
	channels   []string
	publisher  contract.Publisher
	monitoring *observability.MonitoringManager
	reporters  []contract.StatusReporter
	initial    time.Duration
	max        time.Duration
}

func NewChangeFeedListener(
	log *slog.Logger,
	feed contract.ChangeFeed,
	channels []string,
	publisher contract.Publisher,
	monitoring *observability.MonitoringManager,
	initialInterval, maxInterval time.Duration,
	reporters ...contract.StatusReporter,
) *ChangeFeedListener {
	return &ChangeFeedListener{
		log:        log,
		feed:       feed,
		channels:   channels,
		publisher:  publisher,
		monitoring: monitoring,
		reporters:  append([]contract.StatusReporter{monitoring}, reporters...),
		initial:    initialInterval,
		max:        maxInterval,
	}
}

func (w *ChangeFeedListener) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if w.initial > 0 {
		b.InitialInterval = w.initial
	}
	if w.max > 0 {
		b.MaxInterval = w.max
	}
	b.Reset()
	return b
}

func (w *ChangeFeedListener) Run(ctx context.Context) error {
	b := w.newBackOff()
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := w.feed.Listen(ctx, w.channels)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn("Change feed connection failed", "channels", w.channels, "error", err)
			if !w.wait(ctx, b) {
				return nil
			}
			continue
		}

		connectedAt := time.Now()
		w.setConnected(true)
		w.log.Info("Change feed connected", "channels", w.channels)

		received, err := w.consume(ctx, conn)
		// A connection that drops before proving useful keeps the backoff growing.
		if received || time.Since(connectedAt) >= b.MaxInterval {
			b.Reset()
		}

		w.setConnected(false)
		w.close(ctx, conn)

		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, apperrors.ErrBusClosed) {
			w.log.Info("Event bus closed, stopping change feed listener")
			return nil
		}

		w.monitoring.IncrFeedReconnects()
		w.log.Warn("Change feed connection lost, reconnecting", "error", err)
		if !w.wait(ctx, b) {
			return nil
		}
	}
}

// consume returns when the connection fails, the context ends or publishing is no longer possible.
// received reports whether at least one notification came through.
func (w *ChangeFeedListener) consume(ctx context.Context, conn contract.FeedConn) (received bool, err error) {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return received, err
		}
		received = true
		w.monitoring.IncrNotificationsReceived()

		events, err := event.Decode(n.Channel, n.Payload)
		if err != nil {
			w.monitoring.IncrNotificationsMalformed()
			w.log.Warn("Skipping undecodable notification", "channel", n.Channel, "error", err)
			continue
		}

		for _, e := range events {
			if err := w.publisher.Publish(ctx, e); err != nil {
				return received, err
			}
		}
	}
}

func (w *ChangeFeedListener) close(ctx context.Context, conn contract.FeedConn) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), feedCloseTimeout)
	defer cancel()
	if err := conn.Close(closeCtx); err != nil {
		w.log.Debug("Error while closing change feed connection", "error", err)
	}
}

// wait sleeps for the next backoff interval; false means the context ended first.
func (w *ChangeFeedListener) wait(ctx context.Context, b *backoff.ExponentialBackOff) bool {
	delay := b.NextBackOff()
	if delay == backoff.Stop {
		delay = b.MaxInterval
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *ChangeFeedListener) setConnected(connected bool) {
	for _, r := range w.reporters {
		r.SetFeedConnected(connected)
	}
}
