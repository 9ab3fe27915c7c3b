package event

import (
	"chat-notify/domain"
	"chat-notify/errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Channels published by the store. Any other channel carries the tagged envelope.
const (
	ChannelEnvelope       = "notify_event"
	ChannelChatUpdated    = "chat_updated"
	ChannelMessageCreated = "chat_message_created"
)

var validate = validator.New()

type wireChat struct {
	ID          int64     `json:"id" validate:"gt=0"`
	WorkspaceID int64     `json:"ws_id" validate:"gte=0"`
	Name        *string   `json:"name"`
	Type        string    `json:"type" validate:"required"`
	Members     []int64   `json:"members" validate:"dive,gt=0"`
	CreatedAt   time.Time `json:"created_at"`
}

type wireMessage struct {
	ID        int64     `json:"id" validate:"gt=0"`
	ChatID    int64     `json:"chat_id" validate:"gt=0"`
	SenderID  int64     `json:"sender_id" validate:"gt=0"`
	Content   string    `json:"content"`
	Files     []string  `json:"files"`
	CreatedAt time.Time `json:"created_at"`
}

type wireMembership struct {
	ChatID  int64   `json:"chat_id" validate:"gt=0"`
	UserIDs []int64 `json:"user_ids" validate:"min=1,dive,gt=0"`
}

type envelope struct {
	Type    string       `json:"type"`
	Chat    *wireChat    `json:"chat,omitempty"`
	Message *wireMessage `json:"message,omitempty"`
	ChatID  int64        `json:"chat_id,omitempty"`
	UserIDs []int64      `json:"user_ids,omitempty"`
}

// messageCreated is the trigger payload of a new message: the row plus the
// chat members at insert time. A bare message row is accepted as well.
type messageCreated struct {
	Message *wireMessage `json:"message"`
	Members []int64      `json:"members"`
}

type chatChange struct {
	Op  string    `json:"op"`
	Old *wireChat `json:"old"`
	New *wireChat `json:"new"`
}

// Decode turns one raw store notification into domain events.
// A single notification may yield zero events (a chat update that does not touch
// membership) or two (members added and removed in one update).
func Decode(channel string, payload []byte) ([]Event, error) {
	switch channel {
	case ChannelChatUpdated:
		return decodeChatChange(payload)
	case ChannelMessageCreated:
		return decodeMessageCreated(payload)
	default:
		return decodeEnvelope(payload)
	}
}

func decodeEnvelope(payload []byte) ([]Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, malformed(err)
	}
	switch Kind(env.Type) {
	case NewChatKind:
		if env.Chat == nil {
			return nil, malformed(fmt.Errorf("missing chat"))
		}
		chat, err := env.Chat.toDomain()
		if err != nil {
			return nil, err
		}
		return []Event{NewChat{Chat: chat}}, nil
	case NewMessageKind:
		if env.Message == nil {
			return nil, malformed(fmt.Errorf("missing message"))
		}
		msg, err := env.Message.toDomain()
		if err != nil {
			return nil, err
		}
		return []Event{NewMessage{Message: msg}}, nil
	case MembersAddedKind, MembersRemovedKind:
		m := wireMembership{ChatID: env.ChatID, UserIDs: env.UserIDs}
		if err := validate.Struct(m); err != nil {
			return nil, malformed(err)
		}
		chatID, users := domain.ChatID(m.ChatID), toUserIDs(m.UserIDs)
		if Kind(env.Type) == MembersAddedKind {
			return []Event{MembersAdded{Chat: chatID, UserIDs: users}}, nil
		}
		return []Event{MembersRemoved{Chat: chatID, UserIDs: users}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownEventType, env.Type)
	}
}

// decodeMessageCreated ignores the members snapshot: recipients are resolved at dispatch time.
func decodeMessageCreated(payload []byte) ([]Event, error) {
	var created messageCreated
	if err := json.Unmarshal(payload, &created); err != nil {
		return nil, malformed(err)
	}
	m := created.Message
	if m == nil {
		m = &wireMessage{}
		if err := json.Unmarshal(payload, m); err != nil {
			return nil, malformed(err)
		}
	}
	msg, err := m.toDomain()
	if err != nil {
		return nil, err
	}
	return []Event{NewMessage{Message: msg}}, nil
}

func decodeChatChange(payload []byte) ([]Event, error) {
	var change chatChange
	if err := json.Unmarshal(payload, &change); err != nil {
		return nil, malformed(err)
	}
	switch change.Op {
	case "INSERT":
		if change.New == nil {
			return nil, malformed(fmt.Errorf("INSERT without new row"))
		}
		chat, err := change.New.toDomain()
		if err != nil {
			return nil, err
		}
		return []Event{NewChat{Chat: chat}}, nil
	case "UPDATE":
		if change.Old == nil || change.New == nil {
			return nil, malformed(fmt.Errorf("UPDATE without old and new rows"))
		}
		before, err := change.Old.toDomain()
		if err != nil {
			return nil, err
		}
		after, err := change.New.toDomain()
		if err != nil {
			return nil, err
		}
		added, removed := lo.Difference(after.Members, before.Members)
		var events []Event
		if len(added) > 0 {
			events = append(events, MembersAdded{Chat: after.ID, UserIDs: added})
		}
		if len(removed) > 0 {
			events = append(events, MembersRemoved{Chat: after.ID, UserIDs: removed})
		}
		return events, nil
	case "DELETE":
		if change.Old == nil {
			return nil, malformed(fmt.Errorf("DELETE without old row"))
		}
		chat, err := change.Old.toDomain()
		if err != nil {
			return nil, err
		}
		if len(chat.Members) == 0 {
			return nil, nil
		}
		return []Event{MembersRemoved{Chat: chat.ID, UserIDs: chat.Members}}, nil
	default:
		return nil, fmt.Errorf("%w: chat operation %q", errors.ErrUnknownEventType, change.Op)
	}
}

func (w wireChat) toDomain() (domain.Chat, error) {
	if err := validate.Struct(w); err != nil {
		return domain.Chat{}, malformed(err)
	}
	chatType, ok := domain.ParseChatType(w.Type)
	if !ok {
		return domain.Chat{}, malformed(fmt.Errorf("unknown chat type %q", w.Type))
	}
	return domain.Chat{
		ID:          domain.ChatID(w.ID),
		WorkspaceID: domain.WorkspaceID(w.WorkspaceID),
		Name:        w.Name,
		Type:        chatType,
		Members:     lo.Uniq(toUserIDs(w.Members)),
		CreatedAt:   w.CreatedAt,
	}, nil
}

func (w wireMessage) toDomain() (domain.Message, error) {
	if err := validate.Struct(w); err != nil {
		return domain.Message{}, malformed(err)
	}
	return domain.Message{
		ID:        domain.MessageID(w.ID),
		ChatID:    domain.ChatID(w.ChatID),
		SenderID:  domain.UserID(w.SenderID),
		Content:   w.Content,
		Files:     w.Files,
		CreatedAt: w.CreatedAt,
	}, nil
}

func toUserIDs(ids []int64) []domain.UserID {
	return lo.Map(ids, func(id int64, _ int) domain.UserID { return domain.UserID(id) })
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", errors.ErrMalformedNotification, err)
}
