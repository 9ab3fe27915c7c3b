package server

import (
	"chat-notify/auth"
	"chat-notify/contract"
	"chat-notify/observability"
	"chat-notify/services"
	"chat-notify/sink"
	"log/slog"
	"net/http"
	"time"
)

const (
	TransportSSE       = "sse"
	TransportWebSocket = "ws"
)

type Options struct {
	SessionBufferSize int
	KeepAliveInterval time.Duration
}

// Server exposes the live event streams and, in embedded mode, the chat API.
type Server struct {
	log           *slog.Logger
	registry      contract.ISessionRegistry
	authenticator contract.Authenticator
	monitoring    *observability.MonitoringManager
	chatService   services.IChatService
	options       Options
}

func NewServer(
	log *slog.Logger,
	registry contract.ISessionRegistry,
	authenticator contract.Authenticator,
	monitoring *observability.MonitoringManager,
	options Options,
) *Server {
	return &Server{
		log:           log,
		registry:      registry,
		authenticator: authenticator,
		monitoring:    monitoring,
		options:       options,
	}
}

// WithChatService enables the /api routes.
func (s *Server) WithChatService(chatService services.IChatService) *Server {
	s.chatService = chatService
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /events", s.handleSSE)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	if s.chatService != nil {
		api := http.NewServeMux()
		api.HandleFunc("POST /api/chats", s.createChat)
		api.HandleFunc("POST /api/chats/{id}/messages", s.postMessage)
		api.HandleFunc("GET /api/chats/{id}/messages", s.getMessages)
		api.HandleFunc("POST /api/chats/{id}/members", s.addMembers)
		api.HandleFunc("DELETE /api/chats/{id}/members", s.removeMembers)
		api.HandleFunc("DELETE /api/chats/{id}", s.deleteChat)
		mux.Handle("/api/", auth.Middleware(s.authenticator, api))
	}
	return mux
}

// openSession authenticates the request. On failure the client gets a 401
// and the session never reaches the registry.
func (s *Server) openSession(w http.ResponseWriter, r *http.Request, transport string) (*sink.Session, bool) {
	session := sink.NewSession(s.log, s.registry, s.monitoring, transport,
		s.options.SessionBufferSize, s.options.KeepAliveInterval)
	if err := session.Open(r.Context(), s.authenticator, auth.CredentialFromRequest(r)); err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return nil, false
	}
	return session, true
}
