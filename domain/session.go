package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionID = uuid.UUID

type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionAuthenticating
	SessionStreaming
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionAuthenticating:
		return "authenticating"
	case SessionStreaming:
		return "streaming"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionInfo is a read-only view of a live session, used by debug endpoints.
type SessionInfo struct {
	ID          SessionID `json:"id"`
	UserID      UserID    `json:"user_id"`
	State       string    `json:"state"`
	Transport   string    `json:"transport"`
	Queued      int       `json:"queued"`
	ConnectedAt time.Time `json:"connected_at"`
}
