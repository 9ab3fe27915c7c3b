//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-notify/domain"
	"chat-notify/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one live outbound session.
// Consume must never block: a sink that cannot accept the event returns an error.
type EventSink interface {
	ID() domain.SessionID
	UserID() domain.UserID
	Consume(ctx context.Context, e event.Event) error
}

type ISessionRegistry interface {
	Register(userID domain.UserID, sink EventSink)
	Deregister(userID domain.UserID, sink EventSink)
	SessionsFor(userID domain.UserID) []EventSink
}

type MembershipResolver interface {
	// MembersOf returns the current members of a chat, or errors.ErrChatNotFound.
	MembersOf(ctx context.Context, chatID domain.ChatID) ([]domain.UserID, error)
}

type Authenticator interface {
	// Authenticate validates a bearer credential and returns the caller identity.
	Authenticate(ctx context.Context, credential string) (domain.UserID, error)
}

type Publisher interface {
	Publish(ctx context.Context, e event.Event) error
}

// Notification is one raw message received on a store channel.
type Notification struct {
	Channel string
	Payload []byte
}

// ChangeFeed opens subscriptions to the store's notification channels.
type ChangeFeed interface {
	Listen(ctx context.Context, channels []string) (FeedConn, error)
}

// FeedConn is a single live subscription.
type FeedConn interface {
	WaitForNotification(ctx context.Context) (Notification, error)
	Close(ctx context.Context) error
}

type StatusReporter interface {
	SetFeedConnected(connected bool)
}

// IChatRepository is the embedded chat store. Every write also emits the matching change notification.
type IChatRepository interface {
	CreateChat(ctx context.Context, chat domain.Chat) (domain.Chat, error)
	GetChat(ctx context.Context, chatID domain.ChatID) (domain.Chat, error)
	AddMembers(ctx context.Context, chatID domain.ChatID, userIDs []domain.UserID) ([]domain.UserID, error)
	RemoveMembers(ctx context.Context, chatID domain.ChatID, userIDs []domain.UserID) ([]domain.UserID, error)
	DeleteChat(ctx context.Context, chatID domain.ChatID) error
	PostMessage(ctx context.Context, message domain.Message) (domain.Message, error)
	GetMessages(ctx context.Context, chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error)
}
