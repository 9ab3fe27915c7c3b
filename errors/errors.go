package errors

import "fmt"

var (
	ErrWorkerPanic   = fmt.Errorf("worker panic")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Change feed
	ErrMalformedNotification = fmt.Errorf("malformed notification payload")
	ErrUnknownEventType      = fmt.Errorf("unknown event type")
	ErrFeedClosed            = fmt.Errorf("change feed connection closed")

	// Routing
	ErrChatNotFound = fmt.Errorf("chat not found")
	ErrBusClosed    = fmt.Errorf("event bus closed")

	// Sessions
	ErrUnauthorized    = fmt.Errorf("unauthorized")
	ErrSessionClosed   = fmt.Errorf("session closed")
	ErrSessionOverflow = fmt.Errorf("session buffer overflow")

	// Embedded chat API
	ErrNotChatMember  = fmt.Errorf("user is not a member of the chat")
	ErrInvalidRequest = fmt.Errorf("invalid request")
)
