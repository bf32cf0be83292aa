package domain

import (
	"context"
	"time"
)

// Message is one chat turn in a conversation
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

type CreateMessageParams struct {
	ConversationID string
	SenderID       string
	Content        string
	Timestamp      time.Time
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, params CreateMessageParams) (*Message, error)
	GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]*Message, error)
}
