package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/roomly/backend/internal/domain"
	"github.com/roomly/backend/internal/i18n"
	"github.com/roomly/backend/internal/middleware"
	"github.com/roomly/backend/pkg/response"
)

type NotificationHandler struct {
	service *domain.NotificationService
	errors  errorWriter
	logger  *zap.Logger
}

func NewNotificationHandler(service *domain.NotificationService, catalog *i18n.Catalog, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		errors:  newErrorWriter(catalog, logger),
		logger:  logger,
	}
}

// GetNotifications handles GET /notifications?unread=true
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	limit, offset := pagination(r, 20)

	notifs, err := h.service.GetNotifications(r.Context(), userID, unreadOnly, limit, offset)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	if notifs == nil {
		notifs = []*domain.Notification{}
	}

	response.OK(w, notifs)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	n, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	response.OK(w, map[string]int{"count": n})
}

// MarkRead handles POST /notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	n, err := h.service.MarkRead(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	response.OK(w, n)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	n, err := h.service.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	response.OK(w, map[string]int64{"updated": n})
}

// RegisterDeviceToken handles PUT /notifications/device-token
func (h *NotificationHandler) RegisterDeviceToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	if err := h.service.RegisterDeviceToken(r.Context(), userID, req.Token); err != nil {
		h.errors.write(w, r, err)
		return
	}

	response.NoContent(w)
}
