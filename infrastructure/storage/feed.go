package storage

import (
	"chat-notify/contract"
	apperrors "chat-notify/errors"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/samber/lo"
)

const defaultFeedBuffer = 256

// Feed is the embedded change feed: a Badger subscription on the outbox prefixes.
type Feed struct {
	db         *badger.DB
	log        *slog.Logger
	bufferSize int
}

func NewFeed(db *badger.DB, log *slog.Logger, bufferSize int) *Feed {
	if bufferSize < 1 {
		bufferSize = defaultFeedBuffer
	}
	return &Feed{db: db, log: log, bufferSize: bufferSize}
}

// Listen subscribes to "notify:{channel}:" for every channel.
// Badger registers the subscriber asynchronously, so writes racing with Listen may be missed.
func (f *Feed) Listen(ctx context.Context, channels []string) (contract.FeedConn, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: no channel to listen to", apperrors.ErrInvalidConfig)
	}
	if f.db.IsClosed() {
		return nil, apperrors.ErrFeedClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	conn := &feedConn{
		log:           f.log,
		notifications: make(chan contract.Notification, f.bufferSize),
		done:          make(chan struct{}),
		cancel:        cancel,
	}
	matches := lo.Map(channels, func(channel string, _ int) pb.Match {
		return pb.Match{Prefix: []byte(NotifyPrefix + channel + ":")}
	})

	go func() {
		err := f.db.Subscribe(subCtx, func(kvs *badger.KVList) error {
			return conn.handle(subCtx, kvs)
		}, matches)
		conn.finish(err)
	}()
	return conn, nil
}

type feedConn struct {
	log           *slog.Logger
	notifications chan contract.Notification
	done          chan struct{}
	cancel        context.CancelFunc
	mu            sync.Mutex
	err           error
}

func (c *feedConn) handle(ctx context.Context, kvs *badger.KVList) error {
	for _, kv := range kvs.Kv {
		// Deletions and expirations are published with an empty value.
		if len(kv.Value) == 0 {
			continue
		}
		channel, ok := channelOf(kv.Key)
		if !ok {
			c.log.Debug("Ignoring outbox key", "key", string(kv.Key))
			continue
		}
		n := contract.Notification{Channel: channel, Payload: append([]byte(nil), kv.Value...)}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c.notifications <- n:
		}
	}
	return nil
}

func (c *feedConn) finish(err error) {
	c.mu.Lock()
	if err == nil || errors.Is(err, context.Canceled) {
		c.err = apperrors.ErrFeedClosed
	} else {
		c.err = fmt.Errorf("%w: %v", apperrors.ErrFeedClosed, err)
	}
	c.mu.Unlock()
	close(c.notifications)
	close(c.done)
}

func (c *feedConn) WaitForNotification(ctx context.Context) (contract.Notification, error) {
	select {
	case <-ctx.Done():
		return contract.Notification{}, ctx.Err()
	case n, ok := <-c.notifications:
		if !ok {
			c.mu.Lock()
			defer c.mu.Unlock()
			return contract.Notification{}, c.err
		}
		return n, nil
	}
}

func (c *feedConn) Close(ctx context.Context) error {
	c.cancel()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// channelOf extracts {channel} from "notify:{channel}:{timestamp}:{uuid}".
func channelOf(key []byte) (string, bool) {
	rest, ok := strings.CutPrefix(string(key), NotifyPrefix)
	if !ok {
		return "", false
	}
	channel, _, ok := strings.Cut(rest, ":")
	return channel, ok && channel != ""
}
