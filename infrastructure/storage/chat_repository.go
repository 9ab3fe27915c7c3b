package storage

import (
	"chat-notify/domain"
	"chat-notify/domain/event"
	apperrors "chat-notify/errors"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	chatPrefix   = "chat:"
	msgPrefix    = "msg:"
	NotifyPrefix = "notify:"

	chatSequenceKey   = "seq:chat"
	msgSequenceKey    = "seq:msg"
	sequenceBandwidth = 100

	DefaultNotificationTTL = 10 * time.Minute
)

// ChatRepository persists chats and messages in BadgerDB.
//
// Every change is written in the same transaction as an outbox entry under
// "notify:{channel}:{timestamp}:{uuid}". The entry expires after the TTL; Feed
// picks it up through a Badger subscription.
type ChatRepository struct {
	db              *badger.DB
	log             *slog.Logger
	notificationTTL time.Duration
	limitMessages   int
	chatSeq         *badger.Sequence
	msgSeq          *badger.Sequence
}

func NewChatRepository(db *badger.DB, log *slog.Logger, notificationTTL time.Duration, limitMessages int) (*ChatRepository, error) {
	if notificationTTL <= 0 {
		notificationTTL = DefaultNotificationTTL
	}
	chatSeq, err := db.GetSequence([]byte(chatSequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("chat sequence: %w", err)
	}
	msgSeq, err := db.GetSequence([]byte(msgSequenceKey), sequenceBandwidth)
	if err != nil {
		_ = chatSeq.Release()
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &ChatRepository{
		db:              db,
		log:             log,
		notificationTTL: notificationTTL,
		limitMessages:   limitMessages,
		chatSeq:         chatSeq,
		msgSeq:          msgSeq,
	}, nil
}

// Close releases the unused part of the id leases.
func (r *ChatRepository) Close() error {
	return errors.Join(r.chatSeq.Release(), r.msgSeq.Release())
}

func chatKey(id domain.ChatID) []byte {
	return []byte(fmt.Sprintf("%s%019d", chatPrefix, id))
}

// messageKey is "msg:{chat_id}:{timestamp_padded}:{message_id}" so a prefix scan is chronological.
func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%d:%019d:%019d", msgPrefix, m.ChatID, m.CreatedAt.UnixNano(), m.ID))
}

func notifyKey(channel string, at time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", NotifyPrefix, channel, at.UnixNano(), uuid.NewString()))
}

func nextID(seq *badger.Sequence) (int64, error) {
	// Sequences start at 0, identifiers at 1.
	n, err := seq.Next()
	if err != nil {
		return 0, err
	}
	return int64(n) + 1, nil
}

// CreateChat stores a new chat and announces it.
func (r *ChatRepository) CreateChat(_ context.Context, chat domain.Chat) (domain.Chat, error) {
	id, err := nextID(r.chatSeq)
	if err != nil {
		return domain.Chat{}, err
	}
	chat.ID = domain.ChatID(id)
	chat.Members = lo.Uniq(chat.Members)
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if err := putJSON(txn, chatKey(chat.ID), chat); err != nil {
			return err
		}
		return r.outbox(txn, event.NewChat{Chat: chat})
	})
	if err != nil {
		return domain.Chat{}, err
	}
	r.log.Debug("Chat created", "chat_id", chat.ID, "members", len(chat.Members))
	return chat, nil
}

// GetChat returns apperrors.ErrChatNotFound for unknown chats.
func (r *ChatRepository) GetChat(_ context.Context, chatID domain.ChatID) (domain.Chat, error) {
	var chat domain.Chat
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		chat, err = getChat(txn, chatID)
		return err
	})
	return chat, err
}

// MembersOf reads the current member set of a chat.
func (r *ChatRepository) MembersOf(ctx context.Context, chatID domain.ChatID) ([]domain.UserID, error) {
	chat, err := r.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return chat.Members, nil
}

// AddMembers adds users to a chat and returns the ones that were not members yet.
func (r *ChatRepository) AddMembers(_ context.Context, chatID domain.ChatID, userIDs []domain.UserID) ([]domain.UserID, error) {
	var added []domain.UserID
	err := r.db.Update(func(txn *badger.Txn) error {
		chat, err := getChat(txn, chatID)
		if err != nil {
			return err
		}
		added, _ = lo.Difference(lo.Uniq(userIDs), chat.Members)
		if len(added) == 0 {
			return nil
		}
		chat.Members = append(chat.Members, added...)
		if err := putJSON(txn, chatKey(chatID), chat); err != nil {
			return err
		}
		return r.outbox(txn, event.MembersAdded{Chat: chatID, UserIDs: added})
	})
	return added, err
}

// RemoveMembers removes users from a chat and returns the ones that were members.
func (r *ChatRepository) RemoveMembers(_ context.Context, chatID domain.ChatID, userIDs []domain.UserID) ([]domain.UserID, error) {
	var removed []domain.UserID
	err := r.db.Update(func(txn *badger.Txn) error {
		chat, err := getChat(txn, chatID)
		if err != nil {
			return err
		}
		removed = lo.Intersect(chat.Members, lo.Uniq(userIDs))
		if len(removed) == 0 {
			return nil
		}
		chat.Members, _ = lo.Difference(chat.Members, removed)
		if err := putJSON(txn, chatKey(chatID), chat); err != nil {
			return err
		}
		return r.outbox(txn, event.MembersRemoved{Chat: chatID, UserIDs: removed})
	})
	return removed, err
}

// DeleteChat drops a chat with its messages; former members are told they were removed.
func (r *ChatRepository) DeleteChat(_ context.Context, chatID domain.ChatID) error {
	var keys [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		if _, err := getChat(txn, chatID); err != nil {
			return err
		}
		prefix := []byte(fmt.Sprintf("%s%d:", msgPrefix, chatID))
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Messages go in batches so a large chat never exceeds the transaction limit.
	wb := r.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		chat, err := getChat(txn, chatID)
		if err != nil {
			return err
		}
		if err := txn.Delete(chatKey(chatID)); err != nil {
			return err
		}
		if len(chat.Members) == 0 {
			return nil
		}
		return r.outbox(txn, event.MembersRemoved{Chat: chatID, UserIDs: chat.Members})
	})
}

// PostMessage stores a message in an existing chat and announces it.
func (r *ChatRepository) PostMessage(_ context.Context, message domain.Message) (domain.Message, error) {
	id, err := nextID(r.msgSeq)
	if err != nil {
		return domain.Message{}, err
	}
	message.ID = domain.MessageID(id)
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		chat, err := getChat(txn, message.ChatID)
		if err != nil {
			return err
		}
		if !chat.HasMember(message.SenderID) {
			return apperrors.ErrNotChatMember
		}
		if err := putJSON(txn, messageKey(message), message); err != nil {
			return err
		}
		return r.outbox(txn, event.NewMessage{Message: message})
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// GetMessages pages through a chat, newest first. The cursor is the key suffix
// of the last message returned by the previous page.
func (r *ChatRepository) GetMessages(_ context.Context, chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error) {
	var messages []domain.Message
	var lastKey string
	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("%s%d:", msgPrefix, chatID)
		prefix := []byte(prefixStr)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if r.limitMessages > 0 && len(messages) == r.limitMessages {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			err := item.Value(func(v []byte) error {
				var m domain.Message
				if err := json.Unmarshal(v, &m); err != nil {
					return err
				}
				messages = append(messages, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return messages, &lastKey, nil
}

// outbox writes the change notification for e in the current transaction.
func (r *ChatRepository) outbox(txn *badger.Txn, e event.Event) error {
	payload, err := event.EncodeNotification(e)
	if err != nil {
		return err
	}
	entry := badger.NewEntry(notifyKey(event.ChannelEnvelope, time.Now().UTC()), payload).
		WithTTL(r.notificationTTL)
	return txn.SetEntry(entry)
}

func getChat(txn *badger.Txn, chatID domain.ChatID) (domain.Chat, error) {
	item, err := txn.Get(chatKey(chatID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Chat{}, fmt.Errorf("chat %d: %w", chatID, apperrors.ErrChatNotFound)
	}
	if err != nil {
		return domain.Chat{}, err
	}
	var chat domain.Chat
	err = item.Value(func(v []byte) error {
		return json.Unmarshal(v, &chat)
	})
	return chat, err
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}
