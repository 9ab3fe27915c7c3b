package server

import (
	"chat-notify/domain/event"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer. Clients only send control frames.
	maxMessageSize = 512

	defaultPongWait = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Credentials are bearer tokens, never cookies.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsFrame struct {
	Event event.Kind      `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wsWriter struct {
	conn *websocket.Conn
}

func (ws *wsWriter) WriteEvent(e event.Event) error {
	payload, err := event.MarshalPayload(e)
	if err != nil {
		return err
	}
	_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.conn.WriteJSON(wsFrame{Event: e.Kind(), Data: payload})
}

func (ws *wsWriter) KeepAlive() error {
	return ws.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, ok := s.openSession(w, r, TransportWebSocket)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		session.Close()
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.readPump(conn, cancel)

	err = session.Stream(ctx, &wsWriter{conn: conn})
	if err != nil {
		s.log.Debug("WebSocket stream ended", "session_id", session.ID().String(), "error", err)
	}
	closeCode := websocket.CloseNormalClosure
	if err != nil {
		closeCode = websocket.CloseTryAgainLater
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(closeCode, ""), time.Now().Add(writeWait))
}

// readPump only watches the connection: a read error means the client is gone.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)

	// Without pings there are no pongs to extend the deadline.
	if keepAlive := s.options.KeepAliveInterval; keepAlive > 0 {
		pongWait := max(defaultPongWait, 2*keepAlive)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("WebSocket read failed", "error", err)
			}
			return
		}
	}
}
