package service

import (
	"context"

	"github.com/stayconnect/stayconnect/internal/core/domain"
	"github.com/stayconnect/stayconnect/internal/core/port"
)

type ChatService struct {
	repo    port.MessageRepository
	gateway port.RealTimeGateway
}

func NewChatService(repo port.MessageRepository, gateway port.RealTimeGateway) *ChatService {
	return &ChatService{
		repo:    repo,
		gateway: gateway,
	}
}

func (s *ChatService) SendMessage(ctx context.Context, sender, recipient domain.UserID, content string) (*domain.Message, error) {
	msg, err := domain.NewMessage(sender, recipient, content)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, *msg); err != nil {
		return nil, err
	}
	if err := s.gateway.DeliverMessage(ctx, *msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *ChatService) Conversation(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	return s.repo.ListConversation(ctx, a, b)
}
