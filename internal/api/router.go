package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/roomly/backend/internal/auth"
	"github.com/roomly/backend/internal/metrics"
	"github.com/roomly/backend/internal/middleware"
)

// Router holds all handlers and creates the chi router
type Router struct {
	connectionHandler   *ConnectionHandler
	chatHandler         *ChatHandler
	notificationHandler *NotificationHandler
	socketHandler       http.Handler
	healthHandler       *HealthHandler
	verifier            auth.Verifier
	metrics             *metrics.Metrics
	allowedOrigins      []string
	logger              *zap.Logger
}

// NewRouter creates a new router
func NewRouter(
	connectionHandler *ConnectionHandler,
	chatHandler *ChatHandler,
	notificationHandler *NotificationHandler,
	socketHandler http.Handler,
	healthHandler *HealthHandler,
	verifier auth.Verifier,
	m *metrics.Metrics,
	allowedOrigins []string,
	logger *zap.Logger,
) *Router {
	return &Router{
		connectionHandler:   connectionHandler,
		chatHandler:         chatHandler,
		notificationHandler: notificationHandler,
		socketHandler:       socketHandler,
		healthHandler:       healthHandler,
		verifier:            verifier,
		metrics:             m,
		allowedOrigins:      allowedOrigins,
		logger:              logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	r.Use(middleware.LoggingMiddleware(rt.logger))
	r.Use(middleware.CORSMiddleware(rt.allowedOrigins))
	if rt.metrics != nil {
		r.Use(rt.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	// Health endpoints (no auth required)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", rt.healthHandler.Health)
		r.Get("/ready", rt.healthHandler.Ready)
		r.Get("/live", rt.healthHandler.Live)
	})

	// the socket authenticates from its own query token; compression would
	// break the hijack
	r.Method(http.MethodGet, "/ws", rt.socketHandler)

	// bare body, read by the SPA without the envelope
	r.With(chimiddleware.Compress(5)).
		Get("/connections/status/{userId1}/{userId2}", rt.connectionHandler.MutualStatus)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Compress(5))
		r.Use(middleware.AuthMiddleware(rt.verifier))

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", rt.connectionHandler.GetConnections)
			r.Post("/", rt.connectionHandler.SendRequest)
			r.Get("/status/{userId1}/{userId2}", rt.connectionHandler.MutualStatus)
			r.Get("/{id}", rt.connectionHandler.GetConnection)
			r.Post("/{id}/respond", rt.connectionHandler.RespondRequest)
			r.Post("/{id}/cancel", rt.connectionHandler.CancelRequest)
		})

		r.Route("/conversations/{id}/messages", func(r chi.Router) {
			r.Get("/", rt.chatHandler.GetMessages)
			r.Post("/", rt.chatHandler.SendMessage)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", rt.notificationHandler.GetNotifications)
			r.Get("/unread-count", rt.notificationHandler.UnreadCount)
			r.Post("/read-all", rt.notificationHandler.MarkAllRead)
			r.Post("/{id}/read", rt.notificationHandler.MarkRead)
			r.Put("/device-token", rt.notificationHandler.RegisterDeviceToken)
		})
	})

	return r
}
