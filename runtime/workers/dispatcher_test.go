package workers

import (
	"chat-notify/contract"
	"chat-notify/domain"
	"chat-notify/domain/event"
	"chat-notify/errors"
	"chat-notify/mocks"
	"chat-notify/observability"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func sinkFor(ctrl *gomock.Controller, userID domain.UserID) *mocks.MockEventSink {
	sink := mocks.NewMockEventSink(ctrl)
	id := uuid.New()
	sink.EXPECT().ID().Return(id).AnyTimes()
	sink.EXPECT().UserID().Return(userID).AnyTimes()
	return sink
}

func newDispatcher(t *testing.T, registry contract.ISessionRegistry, resolver contract.MembershipResolver) (*Dispatcher, *observability.MonitoringManager) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitoring := observability.NewMonitoringManager(log)
	return NewDispatcher(log, nil, registry, resolver, monitoring, 100*time.Millisecond, 4), monitoring
}

func TestDispatcher_NewMessage_Reaches_Members_Sessions(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := mocks.NewMockISessionRegistry(ctrl)
	resolver := mocks.NewMockMembershipResolver(ctrl)
	dispatcher, _ := newDispatcher(t, registry, resolver)

	msg := event.NewMessage{Message: domain.Message{ID: 5, ChatID: 10, SenderID: 1}}
	alice1, alice2, bob := sinkFor(ctrl, 1), sinkFor(ctrl, 1), sinkFor(ctrl, 2)

	// Given chat 10 has members 1, 2 and 3 (3 offline)
	resolver.EXPECT().MembersOf(gomock.Any(), domain.ChatID(10)).Return([]domain.UserID{1, 2, 3}, nil)
	registry.EXPECT().SessionsFor(domain.UserID(1)).Return([]contract.EventSink{alice1, alice2})
	registry.EXPECT().SessionsFor(domain.UserID(2)).Return([]contract.EventSink{bob})
	registry.EXPECT().SessionsFor(domain.UserID(3)).Return(nil)

	// Then every live session receives the message once
	alice1.EXPECT().Consume(gomock.Any(), msg).Return(nil).Times(1)
	alice2.EXPECT().Consume(gomock.Any(), msg).Return(nil).Times(1)
	bob.EXPECT().Consume(gomock.Any(), msg).Return(nil).Times(1)

	// When the message is dispatched
	dispatcher.Dispatch(context.Background(), msg)
}

func TestDispatcher_NewChat_Uses_Embedded_Members(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := mocks.NewMockISessionRegistry(ctrl)
	resolver := mocks.NewMockMembershipResolver(ctrl)
	dispatcher, _ := newDispatcher(t, registry, resolver)

	chat := event.NewChat{Chat: domain.Chat{ID: 10, Type: domain.ChatTypeGroup, Members: []domain.UserID{1, 2, 2}}}
	alice := sinkFor(ctrl, 1)

	// Given no lookup is allowed
	resolver.EXPECT().MembersOf(gomock.Any(), gomock.Any()).Times(0)
	registry.EXPECT().SessionsFor(domain.UserID(1)).Return([]contract.EventSink{alice}).Times(1)
	registry.EXPECT().SessionsFor(domain.UserID(2)).Return(nil).Times(1)

	// Then the embedded member set is used, deduplicated
	alice.EXPECT().Consume(gomock.Any(), chat).Return(nil).Times(1)

	dispatcher.Dispatch(context.Background(), chat)
}

func TestDispatcher_NewMessage_Dropped_When_Chat_Gone(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := mocks.NewMockISessionRegistry(ctrl)
	resolver := mocks.NewMockMembershipResolver(ctrl)
	dispatcher, monitoring := newDispatcher(t, registry, resolver)

	msg := event.NewMessage{Message: domain.Message{ID: 5, ChatID: 10, SenderID: 1}}

	// Given the chat no longer exists
	resolver.EXPECT().MembersOf(gomock.Any(), domain.ChatID(10)).Return(nil, errors.ErrChatNotFound)

	// Then nobody is looked up
	registry.EXPECT().SessionsFor(gomock.Any()).Times(0)

	dispatcher.Dispatch(context.Background(), msg)
	req.Equal(uint64(1), monitoring.GetLatest().EventsDropped)
}

func TestDispatcher_MembersRemoved_Degrades_To_Affected_Users(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := mocks.NewMockISessionRegistry(ctrl)
	resolver := mocks.NewMockMembershipResolver(ctrl)
	dispatcher, _ := newDispatcher(t, registry, resolver)

	removed := event.MembersRemoved{Chat: 10, UserIDs: []domain.UserID{4}}
	removedUser := sinkFor(ctrl, 4)

	// Given the chat was deleted by the same change
	resolver.EXPECT().MembersOf(gomock.Any(), domain.ChatID(10)).Return(nil, fmt.Errorf("lookup: %w", errors.ErrChatNotFound))
	registry.EXPECT().SessionsFor(domain.UserID(4)).Return([]contract.EventSink{removedUser})

	// Then the removed user still hears about it
	removedUser.EXPECT().Consume(gomock.Any(), removed).Return(nil).Times(1)

	dispatcher.Dispatch(context.Background(), removed)
}

func TestDispatcher_MembersAdded_Reaches_Affected_And_Current(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := mocks.NewMockISessionRegistry(ctrl)
	resolver := mocks.NewMockMembershipResolver(ctrl)
	dispatcher, _ := newDispatcher(t, registry, resolver)

	added := event.MembersAdded{Chat: 10, UserIDs: []domain.UserID{3}}
	newcomer, member := sinkFor(ctrl, 3), sinkFor(ctrl, 1)

	resolver.EXPECT().MembersOf(gomock.Any(), domain.ChatID(10)).Return([]domain.UserID{1, 3}, nil)
	registry.EXPECT().SessionsFor(domain.UserID(3)).Return([]contract.EventSink{newcomer}).Times(1)
	registry.EXPECT().SessionsFor(domain.UserID(1)).Return([]contract.EventSink{member}).Times(1)

	// Then the newcomer is notified exactly once
	newcomer.EXPECT().Consume(gomock.Any(), added).Return(nil).Times(1)
	member.EXPECT().Consume(gomock.Any(), added).Return(nil).Times(1)

	dispatcher.Dispatch(context.Background(), added)
}

func TestDispatcher_Resolver_Error_Drops_Event(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := mocks.NewMockISessionRegistry(ctrl)
	resolver := mocks.NewMockMembershipResolver(ctrl)
	dispatcher, monitoring := newDispatcher(t, registry, resolver)

	added := event.MembersAdded{Chat: 10, UserIDs: []domain.UserID{3}}

	// Given the store times out
	resolver.EXPECT().MembersOf(gomock.Any(), domain.ChatID(10)).DoAndReturn(
		func(ctx context.Context, chatID domain.ChatID) ([]domain.UserID, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	registry.EXPECT().SessionsFor(gomock.Any()).Times(0)

	dispatcher.Dispatch(context.Background(), added)
	req.Equal(uint64(1), monitoring.GetLatest().EventsDropped)
}

func TestDispatcher_Failed_Push_Deregisters_Only_That_Session(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := mocks.NewMockISessionRegistry(ctrl)
	resolver := mocks.NewMockMembershipResolver(ctrl)
	dispatcher, monitoring := newDispatcher(t, registry, resolver)

	msg := event.NewMessage{Message: domain.Message{ID: 5, ChatID: 10, SenderID: 1}}
	slow, healthy := sinkFor(ctrl, 1), sinkFor(ctrl, 2)

	resolver.EXPECT().MembersOf(gomock.Any(), domain.ChatID(10)).Return([]domain.UserID{1, 2}, nil)
	registry.EXPECT().SessionsFor(domain.UserID(1)).Return([]contract.EventSink{slow})
	registry.EXPECT().SessionsFor(domain.UserID(2)).Return([]contract.EventSink{healthy})

	// Given one session cannot accept the event
	slow.EXPECT().Consume(gomock.Any(), msg).Return(errors.ErrSessionOverflow)
	healthy.EXPECT().Consume(gomock.Any(), msg).Return(nil)

	// Then only the failing session is deregistered
	registry.EXPECT().Deregister(domain.UserID(1), slow).Times(1)

	dispatcher.Dispatch(context.Background(), msg)
	stats := monitoring.GetLatest()
	req.Equal(uint64(1), stats.DeliveryFailures)
	req.Equal(uint64(1), stats.Deliveries)
}

func TestDispatcher_Run_Preserves_Order_Per_Session(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := mocks.NewMockISessionRegistry(ctrl)
	resolver := mocks.NewMockMembershipResolver(ctrl)
	monitoring := observability.NewMonitoringManager(log)

	events := make(chan event.Event, 10)
	dispatcher := NewDispatcher(log, events, registry, resolver, monitoring, time.Second, 4)

	sink := sinkFor(ctrl, 1)
	resolver.EXPECT().MembersOf(gomock.Any(), domain.ChatID(10)).Return([]domain.UserID{1}, nil).AnyTimes()
	registry.EXPECT().SessionsFor(domain.UserID(1)).Return([]contract.EventSink{sink}).AnyTimes()

	var mu sync.Mutex
	var received []domain.MessageID
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, e event.Event) error {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, e.(event.NewMessage).Message.ID)
			return nil
		}).Times(5)

	// Given five messages queued on the bus
	for i := 1; i <= 5; i++ {
		events <- event.NewMessage{Message: domain.Message{ID: domain.MessageID(i), ChatID: 10, SenderID: 1}}
	}
	close(events)

	// When the dispatcher drains them
	req.NoError(dispatcher.Run(context.Background()))

	// Then the session saw them in bus order
	req.Equal([]domain.MessageID{1, 2, 3, 4, 5}, received)
	req.Equal(uint64(5), monitoring.GetLatest().EventsDispatched)
}
