package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roomly/backend/internal/metrics"
	"github.com/roomly/backend/internal/presence"
)

// Options tunes sessions and delivery
type Options struct {
	SendBuffer      int
	EventsPerSecond float64
	EventBurst      int
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageSize  int64
	NodeID          string
}

func (o *Options) norm() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.EventsPerSecond <= 0 {
		o.EventsPerSecond = 20
	}
	if o.EventBurst <= 0 {
		o.EventBurst = 40
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.NodeID == "" {
		o.NodeID = uuid.NewString()
	}
}

func (o *Options) pingPeriod() time.Duration {
	return o.PongWait * 9 / 10
}

// Frame is the wire format of every websocket message, in both directions
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub owns the live sessions of this node, their user bindings and room
// memberships. Outbound events go through the broker so that every node
// delivers to the sessions it holds.
type Hub struct {
	registry *Registry
	rooms    *Rooms
	broker   Broker
	presence presence.Tracker
	metrics  *metrics.Metrics
	logger   *zap.Logger
	opts     Options

	mu       sync.RWMutex
	sessions map[string]*Session

	register   chan *Session
	unregister chan *Session
	done       chan struct{}
}

func NewHub(broker Broker, tracker presence.Tracker, m *metrics.Metrics, logger *zap.Logger, opts Options) *Hub {
	opts.norm()
	return &Hub{
		registry:   NewRegistry(),
		rooms:      NewRooms(),
		broker:     broker,
		presence:   tracker,
		metrics:    m,
		logger:     logger,
		opts:       opts,
		sessions:   make(map[string]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		done:       make(chan struct{}),
	}
}

// Registry exposes the user/session bindings
func (h *Hub) Registry() *Registry { return h.registry }

// Rooms exposes room memberships
func (h *Hub) Rooms() *Rooms { return h.rooms }

// Run subscribes to the broker and serves session (un)registration until ctx
// is done, then closes every session.
func (h *Hub) Run(ctx context.Context) error {
	if err := h.broker.Start(ctx, h.deliver); err != nil {
		return err
	}

	for {
		select {
		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s.ID] = s
			h.mu.Unlock()
			h.metrics.Sessions.Inc()
			h.logger.Debug("session registered", zap.String("session_id", s.ID))

		case s := <-h.unregister:
			h.drop(s)

		case <-ctx.Done():
			close(h.done)
			h.mu.RLock()
			live := make([]*Session, 0, len(h.sessions))
			for _, s := range h.sessions {
				live = append(live, s)
			}
			h.mu.RUnlock()
			// closing the send queue ends the write pump, kicking ends the read pump
			for _, s := range live {
				h.drop(s)
				s.kick()
			}
			return h.broker.Close()
		}
	}
}

// attach hands a new session to Run. It fails once the hub has stopped.
func (h *Hub) attach(s *Session) bool {
	select {
	case h.register <- s:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

func (h *Hub) drop(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.ID)
	close(s.send)
	h.mu.Unlock()

	h.rooms.LeaveAll(s.ID)
	if userID, ok := h.registry.Unregister(s.ID); ok {
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.WriteWait)
		if err := h.presence.Offline(ctx, userID, s.ID); err != nil {
			h.logger.Warn("failed to clear presence", zap.String("user_id", userID), zap.Error(err))
		}
		cancel()
	}
	h.metrics.Sessions.Dec()
	h.logger.Debug("session unregistered", zap.String("session_id", s.ID))
}

// bind attaches a session to a user, moving it if it was bound elsewhere
func (h *Hub) bind(ctx context.Context, s *Session, userID string) error {
	if prev := h.registry.Register(userID, s.ID); prev != "" {
		h.rooms.LeaveAll(s.ID)
		if err := h.presence.Offline(ctx, prev, s.ID); err != nil {
			h.logger.Warn("failed to clear presence", zap.String("user_id", prev), zap.Error(err))
		}
	}
	return h.presence.Online(ctx, userID, s.ID)
}

// touch refreshes presence for a bound session
func (h *Hub) touch(s *Session) {
	userID, ok := h.registry.UserOf(s.ID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.WriteWait)
	defer cancel()
	if err := h.presence.Online(ctx, userID, s.ID); err != nil {
		h.logger.Warn("failed to refresh presence", zap.String("user_id", userID), zap.Error(err))
	}
}

// IsOnline implements domain.Presence
func (h *Hub) IsOnline(ctx context.Context, userID string) (bool, error) {
	return h.presence.IsOnline(ctx, userID)
}

// PushToUser implements domain.Pusher
func (h *Hub) PushToUser(ctx context.Context, userID, event string, payload interface{}) error {
	return h.publish(ctx, TargetUser, userID, event, payload)
}

// PushToRoom implements domain.Pusher
func (h *Hub) PushToRoom(ctx context.Context, roomID, event string, payload interface{}) error {
	return h.publish(ctx, TargetRoom, roomID, event, payload)
}

func (h *Hub) publish(ctx context.Context, target, key, event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h.broker.Publish(ctx, Envelope{
		Target:  target,
		Key:     key,
		Event:   event,
		Payload: raw,
		Origin:  h.opts.NodeID,
	})
}

// deliver hands an envelope to the matching local sessions
func (h *Hub) deliver(env Envelope) {
	var targets []string
	switch env.Target {
	case TargetUser:
		targets = h.registry.Lookup(env.Key)
	case TargetRoom:
		targets = h.rooms.Members(env.Key)
	default:
		h.logger.Warn("unknown envelope target", zap.String("target", env.Target))
		return
	}
	if len(targets) == 0 {
		h.metrics.Deliveries.WithLabelValues(env.Target, "no_session").Inc()
		return
	}

	data, err := json.Marshal(Frame{Type: env.Event, Payload: env.Payload})
	if err != nil {
		h.logger.Error("failed to marshal frame", zap.Error(err))
		return
	}
	for _, id := range targets {
		h.sendTo(env.Target, id, data)
	}
}

// emit sends an event to one local session only
func (h *Hub) emit(s *Session, event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal payload", zap.String("event", event), zap.Error(err))
		return
	}
	data, err := json.Marshal(Frame{Type: event, Payload: raw})
	if err != nil {
		h.logger.Error("failed to marshal frame", zap.Error(err))
		return
	}
	h.sendTo("session", s.ID, data)
}

func (h *Hub) sendTo(target, sessionID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	select {
	case s.send <- data:
		h.metrics.Deliveries.WithLabelValues(target, "delivered").Inc()
	default:
		// slow consumer; closing the conn ends its read pump which unregisters it
		h.metrics.Deliveries.WithLabelValues(target, "dropped").Inc()
		h.logger.Warn("send queue full, dropping session", zap.String("session_id", s.ID))
		s.kick()
	}
}
