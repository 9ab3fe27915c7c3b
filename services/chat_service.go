package services

import (
	"chat-notify/contract"
	"chat-notify/domain"
	"chat-notify/errors"
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const maxUnnamedGroup = 8

type IChatService interface {
	CreateChat(ctx context.Context, creator domain.UserID, cmd CreateChatRequest) (domain.Chat, error)
	PostMessage(ctx context.Context, sender domain.UserID, chatID domain.ChatID, cmd PostMessageRequest) (domain.Message, error)
	GetMessages(ctx context.Context, reader domain.UserID, chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error)
	AddMembers(ctx context.Context, caller domain.UserID, chatID domain.ChatID, cmd MembersRequest) ([]domain.UserID, error)
	RemoveMembers(ctx context.Context, caller domain.UserID, chatID domain.ChatID, cmd MembersRequest) ([]domain.UserID, error)
	DeleteChat(ctx context.Context, caller domain.UserID, chatID domain.ChatID) error
}

type CreateChatRequest struct {
	Name    *string         `json:"name" validate:"omitempty,min=1,max=64"`
	Members []domain.UserID `json:"members" validate:"min=2,dive,gt=0"`
	Public  bool            `json:"public"`
}

type PostMessageRequest struct {
	Content string   `json:"content" validate:"required"`
	Files   []string `json:"files" validate:"dive,required"`
}

type MembersRequest struct {
	UserIDs []domain.UserID `json:"user_ids" validate:"min=1,dive,gt=0"`
}

type ChatService struct {
	repository contract.IChatRepository
	validate   *validator.Validate
}

func NewChatService(repository contract.IChatRepository) *ChatService {
	return &ChatService{repository: repository, validate: validator.New()}
}

// CreateChat derives the chat type from the request:
// two unnamed members make a direct chat, more make a group,
// a name makes a channel (public or private).
func (s *ChatService) CreateChat(ctx context.Context, creator domain.UserID, cmd CreateChatRequest) (domain.Chat, error) {
	if cmd.Name != nil {
		trimmed := strings.TrimSpace(*cmd.Name)
		cmd.Name = &trimmed
	}
	cmd.Members = lo.Uniq(cmd.Members)
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Chat{}, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	if !lo.Contains(cmd.Members, creator) {
		return domain.Chat{}, fmt.Errorf("%w: creator must be a member", errors.ErrInvalidRequest)
	}

	var chatType domain.ChatType
	switch {
	case cmd.Name != nil && cmd.Public:
		chatType = domain.ChatTypePublicChannel
	case cmd.Name != nil:
		chatType = domain.ChatTypePrivateChannel
	case len(cmd.Members) == 2:
		chatType = domain.ChatTypeSingle
	case len(cmd.Members) > maxUnnamedGroup:
		return domain.Chat{}, fmt.Errorf("%w: a group of more than %d members needs a name", errors.ErrInvalidRequest, maxUnnamedGroup)
	default:
		chatType = domain.ChatTypeGroup
	}

	return s.repository.CreateChat(ctx, domain.Chat{
		Name:    cmd.Name,
		Type:    chatType,
		Members: cmd.Members,
	})
}

func (s *ChatService) PostMessage(ctx context.Context, sender domain.UserID, chatID domain.ChatID, cmd PostMessageRequest) (domain.Message, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	return s.repository.PostMessage(ctx, domain.Message{
		ChatID:   chatID,
		SenderID: sender,
		Content:  cmd.Content,
		Files:    cmd.Files,
	})
}

func (s *ChatService) GetMessages(ctx context.Context, reader domain.UserID, chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error) {
	if err := s.requireMember(ctx, reader, chatID); err != nil {
		return nil, nil, err
	}
	return s.repository.GetMessages(ctx, chatID, cursor)
}

func (s *ChatService) AddMembers(ctx context.Context, caller domain.UserID, chatID domain.ChatID, cmd MembersRequest) ([]domain.UserID, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	if err := s.requireMember(ctx, caller, chatID); err != nil {
		return nil, err
	}
	return s.repository.AddMembers(ctx, chatID, cmd.UserIDs)
}

// RemoveMembers lets a member remove others, or leave on their own.
func (s *ChatService) RemoveMembers(ctx context.Context, caller domain.UserID, chatID domain.ChatID, cmd MembersRequest) ([]domain.UserID, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	if err := s.requireMember(ctx, caller, chatID); err != nil {
		return nil, err
	}
	return s.repository.RemoveMembers(ctx, chatID, cmd.UserIDs)
}

func (s *ChatService) DeleteChat(ctx context.Context, caller domain.UserID, chatID domain.ChatID) error {
	if err := s.requireMember(ctx, caller, chatID); err != nil {
		return err
	}
	return s.repository.DeleteChat(ctx, chatID)
}

func (s *ChatService) requireMember(ctx context.Context, userID domain.UserID, chatID domain.ChatID) error {
	chat, err := s.repository.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasMember(userID) {
		return errors.ErrNotChatMember
	}
	return nil
}
