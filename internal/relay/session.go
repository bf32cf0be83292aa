package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Session is one websocket connection
type Session struct {
	ID string
	// Identity is the user proven by the handshake token, empty for anonymous sessions
	Identity string

	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	closeOnce sync.Once
}

func newSession(h *Hub, conn *websocket.Conn, identity string) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Identity: identity,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, h.opts.SendBuffer),
		limiter:  rate.NewLimiter(rate.Limit(h.opts.EventsPerSecond), h.opts.EventBurst),
	}
}

// UserID returns the user the session registered as
func (s *Session) UserID() (string, bool) {
	return s.hub.registry.UserOf(s.ID)
}

// kick closes the underlying connection, which ends both pumps
func (s *Session) kick() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

// ReadPump reads inbound frames and dispatches them in arrival order
func (s *Session) ReadPump(d *Dispatcher) {
	defer func() {
		s.hub.detach(s)
		s.kick()
	}()

	s.conn.SetReadLimit(s.hub.opts.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.hub.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.hub.opts.PongWait))
		s.hub.touch(s)
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.hub.logger.Debug("websocket closed unexpectedly", zap.String("session_id", s.ID), zap.Error(err))
			}
			return
		}

		// every frame spends a token, well-formed or not
		if !s.limiter.Allow() {
			d.reject(s, "any", EventRateLimited, errRateLimited)
			continue
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
			d.reject(s, "invalid", EventInvalidFrame, errMalformedFrame)
			continue
		}
		d.Dispatch(s, frame)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings
func (s *Session) WritePump() {
	ticker := time.NewTicker(s.hub.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		s.kick()
	}()

	for {
		select {
		case message, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.opts.WriteWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
