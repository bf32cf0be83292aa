package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/roomly/backend/internal/auth"
	"github.com/roomly/backend/internal/relay"
	"github.com/roomly/backend/pkg/response"
)

// SocketHandler upgrades /ws requests into relay sessions
type SocketHandler struct {
	dispatcher *relay.Dispatcher
	verifier   auth.Verifier
	required   bool
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// NewSocketHandler builds the websocket endpoint. When required is false a
// connection without a token is accepted as anonymous and may register as
// any user.
func NewSocketHandler(dispatcher *relay.Dispatcher, verifier auth.Verifier, required bool, allowedOrigins []string, logger *zap.Logger) *SocketHandler {
	return &SocketHandler{
		dispatcher: dispatcher,
		verifier:   verifier,
		required:   required,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			token = strings.TrimSpace(parts[1])
		}
	}

	var identity string
	switch {
	case token != "" && h.verifier != nil:
		id, err := h.verifier.Verify(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				response.Unauthorized(w, "token has expired")
				return
			}
			response.Unauthorized(w, "invalid token")
			return
		}
		identity = id.UserID
	case h.required:
		response.Unauthorized(w, "missing token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.dispatcher.Serve(conn, identity)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(o)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[strings.ToLower(u.Scheme+"://"+u.Host)] || strings.EqualFold(u.Host, r.Host)
	}
}
