package domain

import (
	"github.com/google/uuid"
)

type UserID string

type CallID string

type MessageID string

func NewUserID() UserID {
	return UserID(uuid.New().String())
}

func NewCallID() CallID {
	return CallID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

// NewPublicID returns the short shareable id users exchange to add friends.
func NewPublicID() string {
	return uuid.New().String()[:8]
}

func (id UserID) String() string {
	return string(id)
}

func (id CallID) String() string {
	return string(id)
}

func (id MessageID) String() string {
	return string(id)
}
