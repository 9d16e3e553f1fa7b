package port

import (
	"context"

	"github.com/stayconnect/stayconnect/internal/core/domain"
)

type MessageRepository interface {
	Save(ctx context.Context, msg domain.Message) error
	ListConversation(ctx context.Context, a, b domain.UserID) ([]domain.Message, error)
}

type UserStore interface {
	SaveUser(ctx context.Context, user *domain.AppUser) error
	GetUser(ctx context.Context, uid domain.UserID) (*domain.AppUser, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.AppUser, error)
	GetUserByPublicID(ctx context.Context, publicID string) (*domain.AppUser, error)
}

type FriendStore interface {
	SaveRequest(ctx context.Context, to domain.UserID, req domain.FriendRequest) error
	ListRequests(ctx context.Context, owner domain.UserID) ([]domain.FriendRequest, error)
	DeleteRequest(ctx context.Context, owner, from domain.UserID) error

	AddFriend(ctx context.Context, owner domain.UserID, friend domain.Friend) error
	ListFriends(ctx context.Context, owner domain.UserID) ([]domain.Friend, error)
	RemoveFriend(ctx context.Context, owner, friend domain.UserID) error
}
