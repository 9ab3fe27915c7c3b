package runtime

import (
	"chat-notify/domain/event"
	"chat-notify/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

type OverflowPolicy string

const (
	// OverflowBlock makes the producer wait until the consumer has room.
	OverflowBlock OverflowPolicy = "block"
	// OverflowDropOldest evicts the oldest queued event to make room.
	OverflowDropOldest OverflowPolicy = "drop_oldest"
)

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch OverflowPolicy(s) {
	case OverflowBlock, OverflowDropOldest:
		return OverflowPolicy(s), nil
	default:
		return "", fmt.Errorf("%w: unknown overflow policy %q", errors.ErrInvalidConfig, s)
	}
}

// EventBus is an in-process single producer, multi consumer queue.
// Every subscription owns a bounded FIFO; the producer writes to each of them in order.
type EventBus struct {
	mu       sync.RWMutex
	log      *slog.Logger
	capacity int
	policy   OverflowPolicy
	subs     map[string]*Subscription
	closed   bool
}

func NewEventBus(log *slog.Logger, capacity int, policy OverflowPolicy) *EventBus {
	if capacity < 1 {
		capacity = 1
	}
	return &EventBus{
		log:      log,
		capacity: capacity,
		policy:   policy,
		subs:     make(map[string]*Subscription),
	}
}

// Subscription is one consumer cursor over the bus.
type Subscription struct {
	name    string
	bus     *EventBus
	events  chan event.Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// Subscribe attaches a named consumer. Subscribing twice with the same name replaces the previous cursor.
func (b *EventBus) Subscribe(name string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		name:   name,
		bus:    b,
		events: make(chan event.Event, b.capacity),
		done:   make(chan struct{}),
	}
	if b.closed {
		close(sub.events)
		return sub
	}
	if previous, ok := b.subs[name]; ok {
		previous.detach()
	}
	b.subs[name] = sub
	return sub
}

// Publish hands the event to every consumer.
// Under OverflowBlock it waits for room and honours ctx; a consumer that unsubscribes
// while the producer waits on it is skipped.
func (b *EventBus) Publish(ctx context.Context, e event.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.ErrBusClosed
	}
	for _, sub := range b.subs {
		if err := b.deliver(ctx, sub, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *EventBus) deliver(ctx context.Context, sub *Subscription, e event.Event) error {
	if b.policy == OverflowDropOldest {
		for {
			select {
			case <-sub.done:
				return nil
			case sub.events <- e:
				return nil
			default:
			}
			select {
			case <-sub.events:
				sub.dropped.Add(1)
				b.log.Warn("Bus queue full, oldest event dropped", "consumer", sub.name)
			default:
			}
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-sub.done:
		return nil
	case sub.events <- e:
		return nil
	}
}

// Close ends every consumer stream. Call it once the producer has stopped.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for name, sub := range b.subs {
		close(sub.events)
		delete(b.subs, name)
	}
}

// Capacity is the per consumer queue bound.
func (b *EventBus) Capacity() int { return b.capacity }

// Events is the receive side of the consumer queue. It is closed by EventBus.Close.
func (s *Subscription) Events() <-chan event.Event { return s.events }

func (s *Subscription) Name() string { return s.name }

func (s *Subscription) Len() int { return len(s.events) }

func (s *Subscription) Cap() int { return cap(s.events) }

// Dropped counts events evicted by OverflowDropOldest.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Unsubscribe detaches the consumer. A producer blocked on it is released immediately.
func (s *Subscription) Unsubscribe() {
	s.detach()
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if current, ok := s.bus.subs[s.name]; ok && current == s {
		delete(s.bus.subs, s.name)
	}
}

func (s *Subscription) detach() {
	s.once.Do(func() { close(s.done) })
}
