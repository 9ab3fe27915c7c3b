// Package client talks to the notification server: it follows the SSE stream
// and, against an embedded store, drives the chat API.
package client

import (
	"bufio"
	"bytes"
	"chat-notify/domain"
	"chat-notify/services"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Event is one SSE frame.
type Event struct {
	Name string
	Data json.RawMessage
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

// Stream follows GET /events and calls fn for every frame until ctx ends,
// the server closes the stream or fn returns an error.
// onOpen, when set, is called once the server accepted the stream.
func (c *Client) Stream(ctx context.Context, onOpen func(), fn func(Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream: %s", resp.Status)
	}
	if onOpen != nil {
		onOpen()
	}

	err = ReadEvents(resp.Body, fn)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// ReadEvents parses an SSE body. Comment lines (keep-alives) are skipped.
func ReadEvents(r io.Reader, fn func(Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var current Event
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				current.Data = json.RawMessage(strings.Join(data, "\n"))
				if err := fn(current); err != nil {
					return err
				}
			}
			current, data = Event{}, nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			current.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (c *Client) CreateChat(ctx context.Context, cmd services.CreateChatRequest) (domain.Chat, error) {
	var chat domain.Chat
	err := c.call(ctx, http.MethodPost, "/api/chats", cmd, &chat)
	return chat, err
}

func (c *Client) PostMessage(ctx context.Context, chatID domain.ChatID, cmd services.PostMessageRequest) (domain.Message, error) {
	var message domain.Message
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/api/chats/%d/messages", chatID), cmd, &message)
	return message, err
}

func (c *Client) AddMembers(ctx context.Context, chatID domain.ChatID, userIDs ...domain.UserID) ([]domain.UserID, error) {
	var resp struct {
		UserIDs []domain.UserID `json:"user_ids"`
	}
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/api/chats/%d/members", chatID),
		services.MembersRequest{UserIDs: userIDs}, &resp)
	return resp.UserIDs, err
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
