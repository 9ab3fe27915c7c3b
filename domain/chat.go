// Package domain contains core concepts of the chat system.
// This file defines Chat entities and their membership, which is the routing key
// for every notification.
package domain

import (
	"strconv"
	"time"
)

type UserID int64

type ChatID int64

type WorkspaceID int64

func (u UserID) String() string { return strconv.FormatInt(int64(u), 10) }

func (c ChatID) String() string { return strconv.FormatInt(int64(c), 10) }

type ChatType string

const (
	ChatTypeSingle         ChatType = "single"
	ChatTypeGroup          ChatType = "group"
	ChatTypePrivateChannel ChatType = "private_channel"
	ChatTypePublicChannel  ChatType = "public_channel"
)

// ParseChatType accepts the stored names plus "direct" for one-to-one chats.
func ParseChatType(s string) (ChatType, bool) {
	switch s {
	case "direct", string(ChatTypeSingle):
		return ChatTypeSingle, true
	case string(ChatTypeGroup):
		return ChatTypeGroup, true
	case string(ChatTypePrivateChannel), "private-channel":
		return ChatTypePrivateChannel, true
	case string(ChatTypePublicChannel), "public-channel":
		return ChatTypePublicChannel, true
	}
	return "", false
}

type Chat struct {
	ID          ChatID      `json:"id"`
	WorkspaceID WorkspaceID `json:"ws_id"`
	Name        *string     `json:"name,omitempty"`
	Type        ChatType    `json:"type"`
	Members     []UserID    `json:"members"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (c Chat) HasMember(userID UserID) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}
