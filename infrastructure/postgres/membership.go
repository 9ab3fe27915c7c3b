package postgres

import (
	"chat-notify/domain"
	apperrors "chat-notify/errors"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
)

const membersQuery = `SELECT members FROM chats WHERE id = $1`

// MembershipResolver reads the current member set of a chat from the chat server's schema.
type MembershipResolver struct {
	pool *pgxpool.Pool
}

func NewMembershipResolver(pool *pgxpool.Pool) *MembershipResolver {
	return &MembershipResolver{pool: pool}
}

func (r *MembershipResolver) MembersOf(ctx context.Context, chatID domain.ChatID) ([]domain.UserID, error) {
	var members []int64
	err := r.pool.QueryRow(ctx, membersQuery, int64(chatID)).Scan(&members)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("chat %d: %w", chatID, apperrors.ErrChatNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("members of chat %d: %w", chatID, err)
	}
	return lo.Map(members, func(id int64, _ int) domain.UserID { return domain.UserID(id) }), nil
}
