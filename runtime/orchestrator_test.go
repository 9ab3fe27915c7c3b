package runtime

import (
	"chat-notify/domain"
	"chat-notify/domain/event"
	"chat-notify/infrastructure/storage"
	"chat-notify/observability"
	"chat-notify/runtime/workers"
	"chat-notify/sink"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type staticAuthenticator domain.UserID

func (a staticAuthenticator) Authenticate(context.Context, string) (domain.UserID, error) {
	return domain.UserID(a), nil
}

type recordingWriter struct {
	mu     sync.Mutex
	events []event.Event
}

func (w *recordingWriter) WriteEvent(e event.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, e)
	return nil
}

func (w *recordingWriter) KeepAlive() error { return nil }

func (w *recordingWriter) Kinds() []event.Kind {
	w.mu.Lock()
	defer w.mu.Unlock()
	return lo.Map(w.events, func(e event.Event, _ int) event.Kind { return e.Kind() })
}

func TestOrchestrator_Delivers_Store_Changes_To_Members(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	req.NoError(err)
	defer db.Close()
	repository, err := storage.NewChatRepository(db, log, time.Minute, 0)
	req.NoError(err)
	defer repository.Close()

	registry := NewRegistry()
	monitoring := observability.NewMonitoringManager(log)
	orchestrator := NewOrchestrator(log, workers.NewSupervisor(log, 10*time.Millisecond),
		registry, NewEventBus(log, 16, OverflowBlock),
		storage.NewFeed(db, log, 16), repository, monitoring,
		PipelineConfig{
			Channels:                 []string{event.ChannelEnvelope},
			ReconnectInitialInterval: 10 * time.Millisecond,
			ResolveTimeout:           time.Second,
		})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopped := make(chan error, 1)
	go func() { stopped <- orchestrator.Start(ctx) }()
	req.Eventually(func() bool { return monitoring.GetLatest().FeedConnected }, time.Second, 5*time.Millisecond)
	// Badger registers the subscriber asynchronously.
	time.Sleep(50 * time.Millisecond)

	// Given three connected users
	writers := map[domain.UserID]*recordingWriter{}
	streams := sync.WaitGroup{}
	for _, userID := range []domain.UserID{1, 2, 3} {
		session := sink.NewSession(log, registry, monitoring, "test", 8, 0)
		req.NoError(session.Open(ctx, staticAuthenticator(userID), "token"))
		w := &recordingWriter{}
		writers[userID] = w
		streams.Add(1)
		go func() {
			defer streams.Done()
			_ = session.Stream(ctx, w)
		}()
	}
	req.Equal(3, registry.Count())

	// When users 1 and 2 open a chat, talk, then invite user 3
	chat, err := repository.CreateChat(ctx, domain.Chat{Type: domain.ChatTypeSingle, Members: []domain.UserID{1, 2}})
	req.NoError(err)
	_, err = repository.PostMessage(ctx, domain.Message{ChatID: chat.ID, SenderID: 1, Content: "hello"})
	req.NoError(err)
	_, err = repository.AddMembers(ctx, chat.ID, []domain.UserID{3})
	req.NoError(err)

	// Then members see every change in commit order, user 3 only from the invitation
	expected := []event.Kind{event.NewChatKind, event.NewMessageKind, event.MembersAddedKind}
	req.Eventually(func() bool { return len(writers[1].Kinds()) == 3 && len(writers[2].Kinds()) == 3 },
		2*time.Second, 10*time.Millisecond)
	req.Equal(expected, writers[1].Kinds())
	req.Equal(expected, writers[2].Kinds())
	req.Eventually(func() bool { return len(writers[3].Kinds()) == 1 }, time.Second, 10*time.Millisecond)
	req.Equal([]event.Kind{event.MembersAddedKind}, writers[3].Kinds())

	// And stopping closes every session and the pipeline
	orchestrator.Stop()
	streams.Wait()
	req.Zero(registry.Count())
	select {
	case err := <-stopped:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("Orchestrator did not stop")
	}
}

func TestOrchestrator_Requires_Channels(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	orchestrator := NewOrchestrator(log, workers.NewSupervisor(log, 0), registry,
		NewEventBus(log, 1, OverflowBlock), nil, nil, observability.NewMonitoringManager(log), PipelineConfig{})

	req.Error(orchestrator.Start(context.Background()))
}
