package event

import (
	"chat-notify/domain"
)

// Audience describes who must receive an event before any lookup happens.
//
//   - Members are known from the event itself.
//   - When Resolve is set, the current members of Chat are added after a lookup.
//   - Required marks events that are dropped if the chat no longer exists.
type Audience struct {
	Chat     domain.ChatID
	Members  []domain.UserID
	Resolve  bool
	Required bool
}

// AudienceOf computes the recipient plan for an event. It never touches the store.
func AudienceOf(e Event) Audience {
	switch evt := e.(type) {
	case NewChat:
		return Audience{Chat: evt.Chat.ID, Members: evt.Chat.Members}
	case NewMessage:
		return Audience{Chat: evt.Message.ChatID, Resolve: true, Required: true}
	case MembersAdded:
		return Audience{Chat: evt.Chat, Members: evt.UserIDs, Resolve: true}
	case MembersRemoved:
		return Audience{Chat: evt.Chat, Members: evt.UserIDs, Resolve: true}
	default:
		return Audience{}
	}
}
