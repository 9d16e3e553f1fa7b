package service

import (
	"context"
	"errors"

	"github.com/stayconnect/stayconnect/internal/core/domain"
	"github.com/stayconnect/stayconnect/internal/core/port"
)

var (
	ErrUnknownPublicID  = errors.New("no user with that id")
	ErrAlreadyFriends   = errors.New("already friends")
	ErrSelfFriending    = errors.New("cannot add yourself")
	ErrRequestNotFound  = errors.New("friend request not found")
	ErrDuplicateRequest = errors.New("request already sent")
)

// FriendService handles the requests/friends pages: plain CRUD against
// the store, with uniqueness checks up front.
type FriendService struct {
	users   port.UserStore
	friends port.FriendStore
}

func NewFriendService(users port.UserStore, friends port.FriendStore) *FriendService {
	return &FriendService{
		users:   users,
		friends: friends,
	}
}

// SendRequest looks the target up by their shareable public id and files
// a pending request under the target's path.
func (s *FriendService) SendRequest(ctx context.Context, from domain.Identity, publicID string) error {
	target, err := s.users.GetUserByPublicID(ctx, publicID)
	if errors.Is(err, port.ErrRecordNotFound) {
		return ErrUnknownPublicID
	}
	if err != nil {
		return err
	}
	if target.UID == from.UID {
		return ErrSelfFriending
	}

	existing, err := s.friends.ListFriends(ctx, from.UID)
	if err != nil {
		return err
	}
	for _, f := range existing {
		if f.UID == target.UID {
			return ErrAlreadyFriends
		}
	}

	pending, err := s.friends.ListRequests(ctx, target.UID)
	if err != nil {
		return err
	}
	for _, r := range pending {
		if r.UID == from.UID {
			return ErrDuplicateRequest
		}
	}

	return s.friends.SaveRequest(ctx, target.UID, domain.FriendRequest{
		UID:         from.UID,
		DisplayName: from.DisplayName,
		AvatarURL:   from.AvatarURL,
	})
}

func (s *FriendService) Requests(ctx context.Context, owner domain.UserID) ([]domain.FriendRequest, error) {
	return s.friends.ListRequests(ctx, owner)
}

// AcceptRequest adds both directions of the friendship and removes the
// pending request.
func (s *FriendService) AcceptRequest(ctx context.Context, owner domain.Identity, from domain.UserID) error {
	pending, err := s.friends.ListRequests(ctx, owner.UID)
	if err != nil {
		return err
	}
	var req *domain.FriendRequest
	for i := range pending {
		if pending[i].UID == from {
			req = &pending[i]
			break
		}
	}
	if req == nil {
		return ErrRequestNotFound
	}

	if err := s.friends.AddFriend(ctx, owner.UID, domain.Friend{
		UID:         req.UID,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	}); err != nil {
		return err
	}
	if err := s.friends.AddFriend(ctx, req.UID, domain.Friend{
		UID:         owner.UID,
		DisplayName: owner.DisplayName,
		AvatarURL:   owner.AvatarURL,
	}); err != nil {
		return err
	}
	return s.friends.DeleteRequest(ctx, owner.UID, from)
}

func (s *FriendService) DeclineRequest(ctx context.Context, owner, from domain.UserID) error {
	return s.friends.DeleteRequest(ctx, owner, from)
}

func (s *FriendService) Friends(ctx context.Context, owner domain.UserID) ([]domain.Friend, error) {
	return s.friends.ListFriends(ctx, owner)
}

func (s *FriendService) RemoveFriend(ctx context.Context, owner, friend domain.UserID) error {
	if err := s.friends.RemoveFriend(ctx, owner, friend); err != nil {
		return err
	}
	return s.friends.RemoveFriend(ctx, friend, owner)
}
