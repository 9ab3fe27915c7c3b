package postgres

import (
	"chat-notify/contract"
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// Feed opens a dedicated LISTEN connection per subscription.
// Pooled connections cannot be used: notifications are bound to the session that issued LISTEN.
type Feed struct {
	url string
	log *slog.Logger
}

func NewFeed(url string, log *slog.Logger) *Feed {
	return &Feed{url: url, log: log}
}

func (f *Feed) Listen(ctx context.Context, channels []string) (contract.FeedConn, error) {
	conn, err := pgx.Connect(ctx, f.url)
	if err != nil {
		return nil, fmt.Errorf("connect change feed: %w", err)
	}
	for _, channel := range channels {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			_ = conn.Close(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("listen %s: %w", channel, err)
		}
	}
	f.log.Debug("Listening to store channels", "channels", channels)
	return &feedConn{conn: conn}, nil
}

type feedConn struct {
	conn *pgx.Conn
}

func (c *feedConn) WaitForNotification(ctx context.Context) (contract.Notification, error) {
	n, err := c.conn.WaitForNotification(ctx)
	if err != nil {
		return contract.Notification{}, err
	}
	return contract.Notification{Channel: n.Channel, Payload: []byte(n.Payload)}, nil
}

func (c *feedConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}
