package sink

import (
	"chat-notify/contract"
	"chat-notify/domain"
	"chat-notify/domain/event"
	"chat-notify/errors"
	"chat-notify/observability"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// StreamWriter is the transport side of a session.
type StreamWriter interface {
	WriteEvent(e event.Event) error
	KeepAlive() error
}

// Session is one accepted client connection.
//
// It moves Connecting -> Authenticating -> Streaming -> Closed and is registered
// in the registry exactly while Streaming. Consume is called by the dispatcher and
// never blocks: when the buffer is full the session closes itself with ErrSessionOverflow.
type Session struct {
	id          domain.SessionID
	userID      domain.UserID
	transport   string
	connectedAt time.Time
	keepAlive   time.Duration

	log        *slog.Logger
	registry   contract.ISessionRegistry
	monitoring *observability.MonitoringManager

	mu     sync.Mutex
	state  atomic.Int32
	fault  error
	events chan event.Event
	done   chan struct{}
}

func NewSession(
	log *slog.Logger,
	registry contract.ISessionRegistry,
	monitoring *observability.MonitoringManager,
	transport string,
	bufferSize int,
	keepAlive time.Duration,
) *Session {
	if bufferSize < 1 {
		bufferSize = 1
	}
	id := uuid.New()
	s := &Session{
		id:          id,
		transport:   transport,
		connectedAt: time.Now().UTC(),
		keepAlive:   keepAlive,
		log:         log.With("session_id", id.String(), "transport", transport),
		registry:    registry,
		monitoring:  monitoring,
		events:      make(chan event.Event, bufferSize),
		done:        make(chan struct{}),
	}
	s.state.Store(int32(domain.SessionConnecting))
	return s
}

func (s *Session) ID() domain.SessionID { return s.id }

// UserID is only meaningful once the session is streaming.
func (s *Session) UserID() domain.UserID { return s.userID }

func (s *Session) State() domain.SessionState { return domain.SessionState(s.state.Load()) }

// Done is closed when the session reaches Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err is the reason the session was closed, nil for a normal close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

// Open authenticates the connection and, on success, registers the session.
// A rejected credential closes the session without it ever being registered.
func (s *Session) Open(ctx context.Context, authenticator contract.Authenticator, credential string) error {
	if !s.transition(domain.SessionConnecting, domain.SessionAuthenticating) {
		return errors.ErrSessionClosed
	}

	userID, err := authenticator.Authenticate(ctx, credential)
	if err != nil {
		s.monitoring.IncrAuthFailures()
		s.log.Info("Authentication failed", "error", err)
		s.closeWith(errors.ErrUnauthorized)
		return fmt.Errorf("%w: %v", errors.ErrUnauthorized, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != domain.SessionAuthenticating {
		return errors.ErrSessionClosed
	}
	s.userID = userID
	s.log = s.log.With("user_id", userID.String())
	s.registry.Register(userID, s)
	s.state.Store(int32(domain.SessionStreaming))
	s.monitoring.IncrSessionsOpened()
	s.log.Info("Session streaming")
	return nil
}

// Consume queues an event for the client without blocking.
func (s *Session) Consume(_ context.Context, e event.Event) error {
	if s.State() != domain.SessionStreaming {
		return errors.ErrSessionClosed
	}
	select {
	case s.events <- e:
		return nil
	default:
		s.monitoring.IncrSessionOverflows()
		s.log.Warn("Session buffer full, closing slow consumer", "capacity", cap(s.events))
		s.closeWith(errors.ErrSessionOverflow)
		return errors.ErrSessionOverflow
	}
}

// Stream writes queued events and keep-alives to the transport until the
// transport goes away (ctx), the session faults, or a write fails.
// The session is always closed when Stream returns.
func (s *Session) Stream(ctx context.Context, w StreamWriter) error {
	defer s.Close()
	if s.State() != domain.SessionStreaming {
		return errors.ErrSessionClosed
	}

	var tick <-chan time.Time
	if s.keepAlive > 0 {
		ticker := time.NewTicker(s.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Transport closed")
			return nil
		case <-s.done:
			return s.Err()
		case e := <-s.events:
			if err := w.WriteEvent(e); err != nil {
				s.log.Debug("Write failed", "event", e.Kind(), "error", err)
				return err
			}
		case <-tick:
			if err := w.KeepAlive(); err != nil {
				s.log.Debug("Keep-alive failed", "error", err)
				return err
			}
		}
	}
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() {
	s.closeWith(nil)
}

func (s *Session) closeWith(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.State()
	if previous == domain.SessionClosed {
		return
	}
	s.state.Store(int32(domain.SessionClosed))
	s.fault = reason
	close(s.done)

	if previous == domain.SessionStreaming {
		s.registry.Deregister(s.userID, s)
		s.monitoring.IncrSessionsClosed()
		s.log.Info("Session closed", "reason", reason)
	}
}

func (s *Session) transition(from, to domain.SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// Info is a read-only view for the debug endpoints.
func (s *Session) Info() domain.SessionInfo {
	return domain.SessionInfo{
		ID:          s.id,
		UserID:      s.userID,
		State:       s.State().String(),
		Transport:   s.transport,
		Queued:      len(s.events),
		ConnectedAt: s.connectedAt,
	}
}
