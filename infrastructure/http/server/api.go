package server

import (
	"chat-notify/auth"
	"chat-notify/domain"
	"chat-notify/errors"
	"chat-notify/services"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

type messagesResponse struct {
	Messages []domain.Message `json:"messages"`
	Cursor   *string          `json:"cursor,omitempty"`
}

type membersResponse struct {
	UserIDs []domain.UserID `json:"user_ids"`
}

func (s *Server) createChat(w http.ResponseWriter, r *http.Request) {
	var cmd services.CreateChatRequest
	if !s.decode(w, r, &cmd) {
		return
	}
	chat, err := s.chatService.CreateChat(r.Context(), caller(r), cmd)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusCreated, chat)
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}
	var cmd services.PostMessageRequest
	if !s.decode(w, r, &cmd) {
		return
	}
	message, err := s.chatService.PostMessage(r.Context(), caller(r), chatID, cmd)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusCreated, message)
}

func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}
	messages, next, err := s.chatService.GetMessages(r.Context(), caller(r), chatID, cursor)
	if err != nil {
		s.fail(w, err)
		return
	}
	if next != nil && *next == "" {
		next = nil
	}
	s.reply(w, http.StatusOK, messagesResponse{Messages: messages, Cursor: next})
}

func (s *Server) addMembers(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}
	var cmd services.MembersRequest
	if !s.decode(w, r, &cmd) {
		return
	}
	added, err := s.chatService.AddMembers(r.Context(), caller(r), chatID, cmd)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusOK, membersResponse{UserIDs: added})
}

func (s *Server) removeMembers(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}
	var cmd services.MembersRequest
	if !s.decode(w, r, &cmd) {
		return
	}
	removed, err := s.chatService.RemoveMembers(r.Context(), caller(r), chatID, cmd)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusOK, membersResponse{UserIDs: removed})
}

func (s *Server) deleteChat(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.chatID(w, r)
	if !ok {
		return
	}
	if err := s.chatService.DeleteChat(r.Context(), caller(r), chatID); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// caller is set by auth.Middleware on every /api route.
func caller(r *http.Request) domain.UserID {
	userID, _ := auth.UserIDFromContext(r.Context())
	return userID
}

func (s *Server) chatID(w http.ResponseWriter, r *http.Request) (domain.ChatID, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.fail(w, fmt.Errorf("%w: chat id %q", errors.ErrInvalidRequest, r.PathValue("id")))
		return 0, false
	}
	return domain.ChatID(id), true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err))
		return false
	}
	return true
}

func (s *Server) reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("Failed to write response", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := errors.MapToHTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("Chat API failure", "error", err)
	}
	http.Error(w, err.Error(), status)
}
