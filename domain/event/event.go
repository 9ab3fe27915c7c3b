package event

import (
	"chat-notify/domain"
)

// Kind is the label a client sees for an event.
type Kind string

const (
	NewChatKind        Kind = "NewChat"
	NewMessageKind     Kind = "NewMessage"
	MembersAddedKind   Kind = "MembersAdded"
	MembersRemovedKind Kind = "MembersRemoved"
)

// Event is a closed set of committed state changes.
// Only the variants declared in this package implement it.
type Event interface {
	Kind() Kind
	ChatID() domain.ChatID
	sealed()
}

type NewChat struct {
	Chat domain.Chat
}

type NewMessage struct {
	Message domain.Message
}

type MembersAdded struct {
	Chat    domain.ChatID
	UserIDs []domain.UserID
}

type MembersRemoved struct {
	Chat    domain.ChatID
	UserIDs []domain.UserID
}

func (NewChat) Kind() Kind        { return NewChatKind }
func (NewMessage) Kind() Kind     { return NewMessageKind }
func (MembersAdded) Kind() Kind   { return MembersAddedKind }
func (MembersRemoved) Kind() Kind { return MembersRemovedKind }

func (e NewChat) ChatID() domain.ChatID        { return e.Chat.ID }
func (e NewMessage) ChatID() domain.ChatID     { return e.Message.ChatID }
func (e MembersAdded) ChatID() domain.ChatID   { return e.Chat }
func (e MembersRemoved) ChatID() domain.ChatID { return e.Chat }

func (NewChat) sealed()        {}
func (NewMessage) sealed()     {}
func (MembersAdded) sealed()   {}
func (MembersRemoved) sealed() {}
