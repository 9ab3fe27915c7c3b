package storage

import (
	"chat-notify/domain"
	"chat-notify/domain/event"
	"chat-notify/errors"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *badger.DB {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestRepository(t *testing.T, db *badger.DB, limit int) *ChatRepository {
	repo, err := NewChatRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug), time.Minute, limit)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// outboxEvents decodes every pending outbox entry, oldest first.
func outboxEvents(t *testing.T, db *badger.DB) []event.Event {
	var events []event.Event
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(NotifyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			channel, ok := channelOf(it.Item().Key())
			require.True(t, ok)
			err := it.Item().Value(func(v []byte) error {
				decoded, err := event.Decode(channel, v)
				events = append(events, decoded...)
				return err
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return events
}

func TestChatRepository_CreateChat(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	repo := newTestRepository(t, db, 0)

	// When a chat is created with a duplicated member
	chat, err := repo.CreateChat(context.Background(), domain.Chat{
		WorkspaceID: 1, Type: domain.ChatTypeGroup, Members: []domain.UserID{1, 2, 2},
	})
	req.NoError(err)

	// Then it gets an id and a deduplicated member set
	req.Equal(domain.ChatID(1), chat.ID)
	req.Equal([]domain.UserID{1, 2}, chat.Members)
	req.False(chat.CreatedAt.IsZero())

	stored, err := repo.GetChat(context.Background(), chat.ID)
	req.NoError(err)
	req.Equal(chat.Members, stored.Members)

	// And a NewChat notification sits in the outbox
	events := outboxEvents(t, db)
	req.Len(events, 1)
	req.Equal(event.NewChatKind, events[0].Kind())
	req.Equal(chat.ID, events[0].ChatID())
}

func TestChatRepository_MembersOf_Unknown_Chat(t *testing.T) {
	req := require.New(t)
	repo := newTestRepository(t, newTestDB(t), 0)

	_, err := repo.MembersOf(context.Background(), domain.ChatID(42))

	req.ErrorIs(err, errors.ErrChatNotFound)
}

func TestChatRepository_Add_And_Remove_Members(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	repo := newTestRepository(t, db, 0)
	ctx := context.Background()
	chat, err := repo.CreateChat(ctx, domain.Chat{Type: domain.ChatTypeGroup, Members: []domain.UserID{1, 2}})
	req.NoError(err)

	// When existing and new users are added
	added, err := repo.AddMembers(ctx, chat.ID, []domain.UserID{2, 3, 3})
	req.NoError(err)
	req.Equal([]domain.UserID{3}, added)

	// And a member and a stranger are removed
	removed, err := repo.RemoveMembers(ctx, chat.ID, []domain.UserID{1, 9})
	req.NoError(err)
	req.Equal([]domain.UserID{1}, removed)

	// Then the member set reflects both changes
	members, err := repo.MembersOf(ctx, chat.ID)
	req.NoError(err)
	req.ElementsMatch([]domain.UserID{2, 3}, members)

	// And the outbox holds one notification per effective change
	events := outboxEvents(t, db)
	req.Len(events, 3)
	req.Equal(event.MembersAdded{Chat: chat.ID, UserIDs: []domain.UserID{3}}, events[1])
	req.Equal(event.MembersRemoved{Chat: chat.ID, UserIDs: []domain.UserID{1}}, events[2])

	// When nothing changes
	added, err = repo.AddMembers(ctx, chat.ID, []domain.UserID{2})
	req.NoError(err)
	req.Empty(added)

	// Then nothing is announced
	req.Len(outboxEvents(t, db), 3)
}

func TestChatRepository_PostMessage(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	repo := newTestRepository(t, db, 0)
	ctx := context.Background()
	chat, err := repo.CreateChat(ctx, domain.Chat{Type: domain.ChatTypeSingle, Members: []domain.UserID{1, 2}})
	req.NoError(err)

	// When a member posts
	msg, err := repo.PostMessage(ctx, domain.Message{ChatID: chat.ID, SenderID: 1, Content: "hello"})
	req.NoError(err)
	req.Equal(domain.MessageID(1), msg.ID)

	// Then the message is announced
	events := outboxEvents(t, db)
	req.Len(events, 2)
	req.Equal(event.NewMessage{Message: msg}.Kind(), events[1].Kind())

	// When a stranger posts
	_, err = repo.PostMessage(ctx, domain.Message{ChatID: chat.ID, SenderID: 3, Content: "hi"})
	req.ErrorIs(err, errors.ErrNotChatMember)

	// When someone posts in an unknown chat
	_, err = repo.PostMessage(ctx, domain.Message{ChatID: 99, SenderID: 1, Content: "hi"})
	req.ErrorIs(err, errors.ErrChatNotFound)
}

func TestChatRepository_DeleteChat(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	repo := newTestRepository(t, db, 0)
	ctx := context.Background()
	chat, err := repo.CreateChat(ctx, domain.Chat{Type: domain.ChatTypeGroup, Members: []domain.UserID{1, 2}})
	req.NoError(err)
	_, err = repo.PostMessage(ctx, domain.Message{ChatID: chat.ID, SenderID: 1, Content: "bye"})
	req.NoError(err)

	// When the chat is deleted
	req.NoError(repo.DeleteChat(ctx, chat.ID))

	// Then it is gone with its messages
	_, err = repo.GetChat(ctx, chat.ID)
	req.ErrorIs(err, errors.ErrChatNotFound)
	messages, _, err := repo.GetMessages(ctx, chat.ID, nil)
	req.NoError(err)
	req.Empty(messages)

	// And former members are told they were removed
	events := outboxEvents(t, db)
	req.Equal(event.MembersRemoved{Chat: chat.ID, UserIDs: []domain.UserID{1, 2}}, events[len(events)-1])
}

func TestChatRepository_GetMessages_Pagination(t *testing.T) {
	req := require.New(t)
	repo := newTestRepository(t, newTestDB(t), 4)
	ctx := context.Background()
	chat, err := repo.CreateChat(ctx, domain.Chat{Type: domain.ChatTypeGroup, Members: []domain.UserID{1}})
	req.NoError(err)
	now := time.Now().UTC()

	// Given 10 messages, oldest first
	for i := 1; i <= 10; i++ {
		_, err = repo.PostMessage(ctx, domain.Message{
			ChatID:    chat.ID,
			SenderID:  1,
			Content:   fmt.Sprintf("Message %d", i),
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		})
		req.NoError(err)
	}

	// Page 1 holds the newest ones
	page1, cursor1, err := repo.GetMessages(ctx, chat.ID, nil)
	req.NoError(err)
	req.Len(page1, 4)
	req.Equal("Message 10", page1[0].Content)
	req.Equal("Message 7", page1[3].Content)

	// Page 2 continues without duplicate
	page2, cursor2, err := repo.GetMessages(ctx, chat.ID, cursor1)
	req.NoError(err)
	req.Len(page2, 4)
	req.Equal("Message 6", page2[0].Content)
	req.Equal("Message 3", page2[3].Content)

	// Page 3 is the tail
	page3, cursor3, err := repo.GetMessages(ctx, chat.ID, cursor2)
	req.NoError(err)
	req.Len(page3, 2)
	req.Equal("Message 1", page3[1].Content)

	page4, _, err := repo.GetMessages(ctx, chat.ID, cursor3)
	req.NoError(err)
	req.Empty(page4)
}

func TestChannelOf(t *testing.T) {
	req := require.New(t)

	channel, ok := channelOf(notifyKey(event.ChannelEnvelope, time.Now()))
	req.True(ok)
	req.Equal(event.ChannelEnvelope, channel)

	_, ok = channelOf([]byte("chat:0000000000000000001"))
	req.False(ok)

	_, ok = channelOf([]byte(NotifyPrefix))
	req.False(ok)
	req.True(strings.HasPrefix(string(notifyKey("x", time.Now())), "notify:x:"))
}
