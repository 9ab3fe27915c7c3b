package event

import (
	"chat-notify/domain"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
)

type membershipPayload struct {
	ChatID  domain.ChatID   `json:"chat_id"`
	UserIDs []domain.UserID `json:"user_ids"`
}

// MarshalPayload renders the structured body delivered to clients next to the event label.
func MarshalPayload(e Event) ([]byte, error) {
	switch evt := e.(type) {
	case NewChat:
		return json.Marshal(evt.Chat)
	case NewMessage:
		return json.Marshal(evt.Message)
	case MembersAdded:
		return json.Marshal(membershipPayload{ChatID: evt.Chat, UserIDs: evt.UserIDs})
	case MembersRemoved:
		return json.Marshal(membershipPayload{ChatID: evt.Chat, UserIDs: evt.UserIDs})
	default:
		return nil, fmt.Errorf("unsupported event %T", e)
	}
}

// EncodeNotification builds the tagged envelope accepted by Decode on the envelope channel.
func EncodeNotification(e Event) ([]byte, error) {
	env := envelope{Type: string(e.Kind())}
	switch evt := e.(type) {
	case NewChat:
		env.Chat = &wireChat{
			ID:          int64(evt.Chat.ID),
			WorkspaceID: int64(evt.Chat.WorkspaceID),
			Name:        evt.Chat.Name,
			Type:        string(evt.Chat.Type),
			Members:     fromUserIDs(evt.Chat.Members),
			CreatedAt:   evt.Chat.CreatedAt,
		}
	case NewMessage:
		env.Message = &wireMessage{
			ID:        int64(evt.Message.ID),
			ChatID:    int64(evt.Message.ChatID),
			SenderID:  int64(evt.Message.SenderID),
			Content:   evt.Message.Content,
			Files:     evt.Message.Files,
			CreatedAt: evt.Message.CreatedAt,
		}
	case MembersAdded:
		env.ChatID, env.UserIDs = int64(evt.Chat), fromUserIDs(evt.UserIDs)
	case MembersRemoved:
		env.ChatID, env.UserIDs = int64(evt.Chat), fromUserIDs(evt.UserIDs)
	default:
		return nil, fmt.Errorf("unsupported event %T", e)
	}
	return json.Marshal(env)
}

func fromUserIDs(ids []domain.UserID) []int64 {
	return lo.Map(ids, func(id domain.UserID, _ int) int64 { return int64(id) })
}
