package domain

import (
	"errors"
	"time"
)

type Message struct {
	ID          MessageID
	SenderID    UserID
	RecipientID UserID
	Content     string
	SentAt      time.Time
}

func NewMessage(senderID, recipientID UserID, content string) (*Message, error) {
	if content == "" {
		return nil, errors.New("message content cannot be empty")
	}
	return &Message{
		ID:          NewMessageID(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		SentAt:      time.Now(),
	}, nil
}
