package runtime

import (
	"chat-notify/domain"
	"chat-notify/domain/event"
	"chat-notify/errors"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func message(id int64) event.Event {
	return event.NewMessage{Message: domain.Message{ID: domain.MessageID(id), ChatID: 1, SenderID: 1}}
}

func TestEventBus_Publish_Preserves_Order(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	bus := NewEventBus(log, 10, OverflowBlock)
	sub := bus.Subscribe("dispatcher")

	// When three events are published
	for i := int64(1); i <= 3; i++ {
		req.NoError(bus.Publish(context.Background(), message(i)))
	}

	// Then they are received in the same order
	for i := int64(1); i <= 3; i++ {
		evt := <-sub.Events()
		req.Equal(message(i), evt)
	}
}

func TestEventBus_Every_Consumer_Receives(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	bus := NewEventBus(log, 4, OverflowBlock)
	first := bus.Subscribe("first")
	second := bus.Subscribe("second")

	// When one event is published
	req.NoError(bus.Publish(context.Background(), message(1)))

	// Then both cursors hold it
	req.Equal(1, first.Len())
	req.Equal(1, second.Len())
	req.Equal(4, first.Cap())
}

func TestEventBus_Block_Honours_Context(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	bus := NewEventBus(log, 1, OverflowBlock)
	_ = bus.Subscribe("slow")

	// Given a full consumer queue
	req.NoError(bus.Publish(context.Background(), message(1)))

	// When the producer publishes again with a short deadline
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bus.Publish(ctx, message(2))

	// Then it waits and gives up with the context error
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestEventBus_Unsubscribe_Releases_Blocked_Producer(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	bus := NewEventBus(log, 1, OverflowBlock)
	sub := bus.Subscribe("slow")
	req.NoError(bus.Publish(context.Background(), message(1)))

	// Given a producer blocked on a full queue
	published := make(chan error, 1)
	go func() {
		published <- bus.Publish(context.Background(), message(2))
	}()

	// When the consumer unsubscribes
	time.Sleep(10 * time.Millisecond)
	sub.Unsubscribe()

	// Then the producer returns
	select {
	case err := <-published:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("Producer should have been released")
	}
}

func TestEventBus_DropOldest_Evicts_Head(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	bus := NewEventBus(log, 2, OverflowDropOldest)
	sub := bus.Subscribe("dispatcher")

	// When more events are published than the queue holds
	for i := int64(1); i <= 4; i++ {
		req.NoError(bus.Publish(context.Background(), message(i)))
	}

	// Then the oldest ones were dropped and counted
	req.Equal(uint64(2), sub.Dropped())
	req.Equal(message(3), <-sub.Events())
	req.Equal(message(4), <-sub.Events())
}

func TestEventBus_Close_Ends_Streams(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	bus := NewEventBus(log, 2, OverflowBlock)
	sub := bus.Subscribe("dispatcher")
	req.NoError(bus.Publish(context.Background(), message(1)))

	// When the bus is closed
	bus.Close()

	// Then queued events drain and the stream ends
	evt, ok := <-sub.Events()
	req.True(ok)
	req.Equal(message(1), evt)
	_, ok = <-sub.Events()
	req.False(ok)

	// And later publications fail
	req.ErrorIs(bus.Publish(context.Background(), message(2)), errors.ErrBusClosed)
}

func TestParseOverflowPolicy(t *testing.T) {
	req := require.New(t)

	policy, err := ParseOverflowPolicy("drop_oldest")
	req.NoError(err)
	req.Equal(OverflowDropOldest, policy)

	_, err = ParseOverflowPolicy("drop_newest")
	req.ErrorIs(err, errors.ErrInvalidConfig)
}
