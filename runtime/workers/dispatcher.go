package workers

import (
	"chat-notify/contract"
	"chat-notify/domain"
	"chat-notify/domain/event"
	apperrors "chat-notify/errors"
	"chat-notify/observability"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const defaultFanoutConcurrency = 16

// Dispatcher routes each event from the bus to the live sessions of its audience.
//
// Events are handled one at a time: the fan-out of an event runs concurrently
// across sessions but completes before the next event is taken, so every session
// observes events in bus order.
type Dispatcher struct {
	log            *slog.Logger
	events         <-chan event.Event
	registry       contract.ISessionRegistry
	resolver       contract.MembershipResolver
	monitoring     *observability.MonitoringManager
	resolveTimeout time.Duration
	concurrency    int
}

func NewDispatcher(
	log *slog.Logger,
	events <-chan event.Event,
	registry contract.ISessionRegistry,
	resolver contract.MembershipResolver,
	monitoring *observability.MonitoringManager,
	resolveTimeout time.Duration,
	concurrency int,
) *Dispatcher {
	if concurrency < 1 {
		concurrency = defaultFanoutConcurrency
	}
	return &Dispatcher{
		log:            log,
		events:         events,
		registry:       registry,
		resolver:       resolver,
		monitoring:     monitoring,
		resolveTimeout: resolveTimeout,
		concurrency:    concurrency,
	}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.log.Debug("Context done, stopping dispatcher")
			return nil
		case evt, ok := <-d.events:
			if !ok {
				d.log.Info("Event stream closed, stopping dispatcher")
				return nil
			}
			d.Dispatch(ctx, evt)
		}
	}
}

// Dispatch delivers one event and returns once every push has completed.
func (d *Dispatcher) Dispatch(ctx context.Context, evt event.Event) {
	recipients, ok := d.recipients(ctx, evt)
	if !ok {
		d.monitoring.IncrEventsDropped()
		return
	}
	d.monitoring.IncrEventsDispatched()

	var sinks []contract.EventSink
	for _, userID := range recipients {
		sinks = append(sinks, d.registry.SessionsFor(userID)...)
	}
	if len(sinks) == 0 {
		d.log.Debug("No live session for event", "event", evt.Kind(), "chat_id", evt.ChatID())
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)
	for _, sink := range sinks {
		g.Go(func() error {
			if err := sink.Consume(ctx, evt); err != nil {
				d.monitoring.IncrDeliveryFailures()
				d.log.Debug("Delivery failed, dropping session",
					"session_id", sink.ID(), "user_id", sink.UserID(), "error", err)
				d.registry.Deregister(sink.UserID(), sink)
				return nil
			}
			d.monitoring.IncrDeliveries()
			return nil
		})
	}
	_ = g.Wait()
}

// recipients resolves the audience of an event; false means the event is dropped.
func (d *Dispatcher) recipients(ctx context.Context, evt event.Event) ([]domain.UserID, bool) {
	audience := event.AudienceOf(evt)
	if !audience.Resolve {
		return lo.Uniq(audience.Members), true
	}

	resolveCtx := ctx
	if d.resolveTimeout > 0 {
		var cancel context.CancelFunc
		resolveCtx, cancel = context.WithTimeout(ctx, d.resolveTimeout)
		defer cancel()
	}

	members, err := d.resolver.MembersOf(resolveCtx, audience.Chat)
	switch {
	case err == nil:
		return lo.Uniq(append(append([]domain.UserID{}, audience.Members...), members...)), true
	case errors.Is(err, apperrors.ErrChatNotFound) && audience.Required:
		d.log.Debug("Chat not found, dropping event", "event", evt.Kind(), "chat_id", audience.Chat)
		return nil, false
	case errors.Is(err, apperrors.ErrChatNotFound):
		d.log.Debug("Chat not found, notifying affected users only", "event", evt.Kind(), "chat_id", audience.Chat)
		return lo.Uniq(audience.Members), true
	default:
		d.log.Warn("Membership lookup failed, dropping event", "event", evt.Kind(), "chat_id", audience.Chat, "error", err)
		return nil, false
	}
}
