package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/roomly/backend/internal/domain"
	"github.com/roomly/backend/internal/i18n"
	"github.com/roomly/backend/internal/middleware"
	"github.com/roomly/backend/pkg/response"
)

type ChatHandler struct {
	chatService *domain.ChatService
	errors      errorWriter
	logger      *zap.Logger
}

func NewChatHandler(chatService *domain.ChatService, catalog *i18n.Catalog, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		errors:      newErrorWriter(catalog, logger),
		logger:      logger,
	}
}

// GetMessages returns a conversation's history
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	limit, offset := pagination(r, 50)
	messages, err := h.chatService.History(r.Context(), userID, chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	if messages == nil {
		messages = []*domain.Message{}
	}

	response.OK(w, messages)
}

// SendMessage sends a message to a conversation (HTTP fallback for the socket
// event; the room broadcast still happens)
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		Content   string    `json:"content"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	msg, err := h.chatService.Send(r.Context(), domain.SendMessageParams{
		ConversationID: chi.URLParam(r, "id"),
		SenderID:       userID,
		Content:        req.Content,
		Timestamp:      req.Timestamp,
	})
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	response.Created(w, msg)
}
