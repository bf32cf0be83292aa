package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/roomly/backend/internal/domain"
	"github.com/roomly/backend/internal/i18n"
	"github.com/roomly/backend/internal/middleware"
	"github.com/roomly/backend/pkg/response"
)

type ConnectionHandler struct {
	connService *domain.ConnectionService
	errors      errorWriter
	logger      *zap.Logger
}

func NewConnectionHandler(connService *domain.ConnectionService, catalog *i18n.Catalog, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		connService: connService,
		errors:      newErrorWriter(catalog, logger),
		logger:      logger,
	}
}

// SendRequest handles POST /connections
func (h *ConnectionHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req domain.SendRequestParams
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}
	if req.SenderID != "" && req.SenderID != userID {
		h.errors.write(w, r, domain.ErrForbidden)
		return
	}
	req.SenderID = userID

	conn, err := h.connService.CreateRequest(r.Context(), req)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	response.Created(w, conn)
}

// RespondRequest handles POST /connections/{id}/respond
func (h *ConnectionHandler) RespondRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		Status domain.ConnectionStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}
	if req.Status != domain.ConnectionStatusAccepted && req.Status != domain.ConnectionStatusRejected {
		h.errors.write(w, r, domain.NewValidationError("status", "must be accepted or rejected"))
		return
	}

	conn, err := h.connService.Respond(r.Context(), userID, chi.URLParam(r, "id"), req.Status == domain.ConnectionStatusAccepted)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	response.OK(w, conn)
}

// CancelRequest handles POST /connections/{id}/cancel
func (h *ConnectionHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	conn, err := h.connService.Cancel(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	response.OK(w, conn)
}

// GetConnection handles GET /connections/{id}
func (h *ConnectionHandler) GetConnection(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	conn, err := h.connService.GetConnection(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	response.OK(w, conn)
}

// GetConnections handles GET /connections?role=sent|received|all&status=
func (h *ConnectionHandler) GetConnections(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	limit, offset := pagination(r, 50)
	filter := domain.ConnectionFilter{
		Role:   domain.ConnectionRole(r.URL.Query().Get("role")),
		Status: domain.ConnectionStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	}

	conns, err := h.connService.ListConnections(r.Context(), userID, filter)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	if conns == nil {
		conns = []*domain.ConnectionRequest{}
	}

	response.OK(w, conns)
}

// MutualStatus handles GET /connections/status/{userId1}/{userId2}. The body
// is bare, without the response envelope.
func (h *ConnectionHandler) MutualStatus(w http.ResponseWriter, r *http.Request) {
	connected, err := h.connService.CheckMutualStatus(r.Context(), chi.URLParam(r, "userId1"), chi.URLParam(r, "userId2"))
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	response.Raw(w, http.StatusOK, map[string]bool{"isConnected": connected})
}
