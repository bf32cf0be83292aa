package domain

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

type ChatStore interface {
	MessageRepository
	GetConnectionByID(ctx context.Context, id string) (*ConnectionRequest, error)
}

type ChatService struct {
	store  ChatStore
	pusher Pusher
	logger *zap.Logger
	opts   Options
}

func NewChatService(store ChatStore, pusher Pusher, logger *zap.Logger, opts Options) *ChatService {
	opts.norm()
	return &ChatService{
		store:  store,
		pusher: pusher,
		logger: logger,
		opts:   opts,
	}
}

// SendMessageParams is one chat turn as submitted by a client
type SendMessageParams struct {
	ConversationID string    `json:"conversationId" validate:"required"`
	SenderID       string    `json:"senderId" validate:"required"`
	Content        string    `json:"content" validate:"required,max=4000"`
	Timestamp      time.Time `json:"timestamp"`
}

// Conversation returns the accepted connection backing conversationID if
// userID takes part in it
func (s *ChatService) Conversation(ctx context.Context, userID, conversationID string) (*ConnectionRequest, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	return s.conversation(ctx, userID, conversationID)
}

func (s *ChatService) conversation(ctx context.Context, userID, conversationID string) (*ConnectionRequest, error) {
	conn, err := s.store.GetConnectionByID(ctx, conversationID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrConversationNotFound
		}
		return nil, storeError(err)
	}
	if conn.Status != ConnectionStatusAccepted {
		return nil, ErrConversationNotFound
	}
	if !conn.Involves(userID) {
		return nil, ErrForbidden
	}
	return conn, nil
}

// Send persists a message and then broadcasts it to every session in the
// conversation room, the sender's included. Nothing is broadcast when the
// write fails.
func (s *ChatService) Send(ctx context.Context, p SendMessageParams) (*Message, error) {
	if strings.TrimSpace(p.Content) == "" {
		return nil, NewValidationError("content", "is required")
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = s.opts.Clock()
	}

	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	if _, err := s.conversation(ctx, p.SenderID, p.ConversationID); err != nil {
		return nil, err
	}

	msg, err := s.store.CreateMessage(ctx, CreateMessageParams{
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		Content:        p.Content,
		Timestamp:      p.Timestamp.UTC(),
	})
	if err != nil {
		return nil, storeError(err)
	}

	if err := s.pusher.PushToRoom(ctx, msg.ConversationID, EventReceiveMessage, msg); err != nil {
		s.logger.Warn("failed to broadcast message",
			zap.String("conversation_id", msg.ConversationID),
			zap.Error(err),
		)
	}
	return msg, nil
}

// History returns a conversation's messages in timestamp order
func (s *ChatService) History(ctx context.Context, userID, conversationID string, limit, offset int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	if _, err := s.conversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.store.GetMessages(ctx, conversationID, limit, offset)
	return msgs, storeError(err)
}
