// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable once persisted.
package domain

import (
	"strconv"
	"time"
)

type MessageID int64

func (m MessageID) String() string { return strconv.FormatInt(int64(m), 10) }

// Message represents an immutable chat message.
type Message struct {
	ID        MessageID `json:"id"`
	ChatID    ChatID    `json:"chat_id"`
	SenderID  UserID    `json:"sender_id"`
	Content   string    `json:"content"`
	Files     []string  `json:"files"`
	CreatedAt time.Time `json:"created_at"`
}
