package relay

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/roomly/backend/internal/domain"
	"github.com/roomly/backend/internal/i18n"
)

// Inbound events
const (
	EventRegisterUser           = "registerUser"
	EventJoinRoom               = "joinRoom"
	EventLeaveRoom              = "leaveRoom"
	EventSendMessage            = "sendMessage"
	EventSendConnectionRequest  = "sendConnectionRequest"
	EventUpdateConnectionStatus = "updateConnectionStatus"
)

// Session-level outbound events
const (
	EventRegistered         = "registered"
	EventRegisterUserFailed = "registerUserFailed"
	EventRoomJoined         = "roomJoined"
	EventJoinRoomFailed     = "joinRoomFailed"
	EventRateLimited        = "rateLimited"
	EventInvalidFrame       = "invalidFrame"
)

// ConnectionService is the part of the connection state machine the relay drives
type ConnectionService interface {
	CreateRequest(ctx context.Context, p domain.SendRequestParams) (*domain.ConnectionRequest, error)
	Respond(ctx context.Context, actorID, connectionID string, accept bool) (*domain.ConnectionRequest, error)
	Cancel(ctx context.Context, actorID, connectionID string) (*domain.ConnectionRequest, error)
}

// ChatService is the part of the message relay the relay drives
type ChatService interface {
	Send(ctx context.Context, p domain.SendMessageParams) (*domain.Message, error)
	Conversation(ctx context.Context, userID, conversationID string) (*domain.ConnectionRequest, error)
}

// Dispatcher routes inbound frames to the domain services and answers the
// originating session
type Dispatcher struct {
	hub     *Hub
	conns   ConnectionService
	chat    ChatService
	catalog *i18n.Catalog
	logger  *zap.Logger
}

func NewDispatcher(hub *Hub, conns ConnectionService, chat ChatService, catalog *i18n.Catalog, logger *zap.Logger) *Dispatcher {
	if catalog == nil {
		catalog = i18n.New("en")
	}
	return &Dispatcher{
		hub:     hub,
		conns:   conns,
		chat:    chat,
		catalog: catalog,
		logger:  logger,
	}
}

// Serve takes ownership of an upgraded connection. identity is the user
// proven by the handshake, or empty.
func (d *Dispatcher) Serve(conn *websocket.Conn, identity string) {
	s := newSession(d.hub, conn, identity)
	if !d.hub.attach(s) {
		_ = conn.Close()
		return
	}
	go s.WritePump()
	go s.ReadPump(d)
}

// Dispatch handles one inbound frame
func (d *Dispatcher) Dispatch(s *Session, f Frame) {
	switch f.Type {
	case EventRegisterUser:
		d.registerUser(s, f.Payload)
	case EventJoinRoom:
		d.joinRoom(s, f.Payload)
	case EventLeaveRoom:
		d.leaveRoom(s, f.Payload)
	case EventSendMessage:
		d.sendMessage(s, f.Payload)
	case EventSendConnectionRequest:
		d.sendConnectionRequest(s, f.Payload)
	case EventUpdateConnectionStatus:
		d.updateConnectionStatus(s, f.Payload)
	default:
		d.reject(s, "unknown", EventInvalidFrame, errUnknownEvent)
	}
}

func (d *Dispatcher) registerUser(s *Session, raw json.RawMessage) {
	userID, err := decodeID(raw, "userId")
	if err != nil {
		d.reject(s, EventRegisterUser, EventRegisterUserFailed, err)
		return
	}
	if s.Identity != "" && userID != s.Identity {
		d.reject(s, EventRegisterUser, EventRegisterUserFailed, domain.ErrForbidden)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.hub.opts.WriteWait)
	defer cancel()
	if err := d.hub.bind(ctx, s, userID); err != nil {
		// the binding holds even if presence could not be recorded
		d.logger.Warn("failed to record presence", zap.String("user_id", userID), zap.Error(err))
	}

	d.ok(EventRegisterUser)
	d.hub.emit(s, EventRegistered, map[string]string{"userId": userID})
}

func (d *Dispatcher) joinRoom(s *Session, raw json.RawMessage) {
	roomID, err := decodeID(raw, "roomId")
	if err != nil {
		d.rejectRef(s, EventJoinRoom, EventJoinRoomFailed, err, "")
		return
	}
	actor, ok := s.UserID()
	if !ok {
		d.rejectRef(s, EventJoinRoom, EventJoinRoomFailed, domain.ErrUnauthenticated, roomID)
		return
	}
	if _, err := d.chat.Conversation(context.Background(), actor, roomID); err != nil {
		d.rejectRef(s, EventJoinRoom, EventJoinRoomFailed, err, roomID)
		return
	}

	d.hub.rooms.Join(s.ID, roomID)
	d.ok(EventJoinRoom)
	d.hub.emit(s, EventRoomJoined, map[string]string{"roomId": roomID})
}

func (d *Dispatcher) leaveRoom(s *Session, raw json.RawMessage) {
	roomID, err := decodeID(raw, "roomId")
	if err != nil {
		d.reject(s, EventLeaveRoom, EventInvalidFrame, err)
		return
	}
	d.hub.rooms.Leave(s.ID, roomID)
	d.ok(EventLeaveRoom)
}

func (d *Dispatcher) sendMessage(s *Session, raw json.RawMessage) {
	var p domain.SendMessageParams
	if err := json.Unmarshal(raw, &p); err != nil {
		d.reject(s, EventSendMessage, domain.EventSendMessageFailed, errMalformedFrame)
		return
	}
	sender, err := d.actingAs(s, p.SenderID)
	if err != nil {
		d.rejectRef(s, EventSendMessage, domain.EventSendMessageFailed, err, p.ConversationID)
		return
	}
	p.SenderID = sender

	if _, err := d.chat.Send(context.Background(), p); err != nil {
		d.rejectRef(s, EventSendMessage, domain.EventSendMessageFailed, err, p.ConversationID)
		return
	}
	d.ok(EventSendMessage)
}

func (d *Dispatcher) sendConnectionRequest(s *Session, raw json.RawMessage) {
	var p domain.SendRequestParams
	if err := json.Unmarshal(raw, &p); err != nil {
		d.reject(s, EventSendConnectionRequest, domain.EventConnectionRequestFailed, errMalformedFrame)
		return
	}
	sender, err := d.actingAs(s, p.SenderID)
	if err != nil {
		d.rejectRef(s, EventSendConnectionRequest, domain.EventConnectionRequestFailed, err, p.PostID)
		return
	}
	p.SenderID = sender

	req, err := d.conns.CreateRequest(context.Background(), p)
	if err != nil {
		d.rejectRef(s, EventSendConnectionRequest, domain.EventConnectionRequestFailed, err, p.PostID)
		return
	}
	d.ok(EventSendConnectionRequest)
	d.hub.emit(s, domain.EventConnectionRequestSent, req)
}

type statusUpdate struct {
	ConnectionID string                  `json:"connectionId"`
	Status       domain.ConnectionStatus `json:"status"`
}

func (d *Dispatcher) updateConnectionStatus(s *Session, raw json.RawMessage) {
	var p statusUpdate
	if err := json.Unmarshal(raw, &p); err != nil {
		d.reject(s, EventUpdateConnectionStatus, domain.EventUpdateConnectionStatusFailed, errMalformedFrame)
		return
	}
	actor, ok := s.UserID()
	if !ok {
		d.rejectRef(s, EventUpdateConnectionStatus, domain.EventUpdateConnectionStatusFailed, domain.ErrUnauthenticated, p.ConnectionID)
		return
	}

	var err error
	switch p.Status {
	case domain.ConnectionStatusAccepted, domain.ConnectionStatusRejected:
		_, err = d.conns.Respond(context.Background(), actor, p.ConnectionID, p.Status == domain.ConnectionStatusAccepted)
	case domain.ConnectionStatusCancelled:
		_, err = d.conns.Cancel(context.Background(), actor, p.ConnectionID)
	default:
		err = domain.NewValidationError("status", "must be one of accepted rejected cancelled")
	}
	if err != nil {
		d.rejectRef(s, EventUpdateConnectionStatus, domain.EventUpdateConnectionStatusFailed, err, p.ConnectionID)
		return
	}
	d.ok(EventUpdateConnectionStatus)
}

// actingAs resolves the user a session acts for. A claimed id must match the
// registered user; an empty claim means the registered user.
func (d *Dispatcher) actingAs(s *Session, claimed string) (string, error) {
	actor, ok := s.UserID()
	if !ok {
		return "", domain.ErrUnauthenticated
	}
	claimed = strings.TrimSpace(claimed)
	if claimed != "" && claimed != actor {
		return "", domain.ErrForbidden
	}
	return actor, nil
}

func (d *Dispatcher) ok(event string) {
	d.hub.metrics.Events.WithLabelValues(event, "ok").Inc()
}

func (d *Dispatcher) reject(s *Session, event, failEvent string, err error) {
	d.rejectRef(s, event, failEvent, err, "")
}

func (d *Dispatcher) rejectRef(s *Session, event, failEvent string, err error, ref string) {
	f := failure(d.catalog, err, ref)
	d.hub.metrics.Events.WithLabelValues(event, f.Code).Inc()
	if f.Code == "internal" || f.Code == "timeout" {
		d.logger.Error("relay event failed",
			zap.String("event", event),
			zap.String("session_id", s.ID),
			zap.Error(err),
		)
	} else {
		d.logger.Debug("relay event rejected",
			zap.String("event", event),
			zap.String("code", f.Code),
			zap.Error(err),
		)
	}
	d.hub.emit(s, failEvent, f)
}

// decodeID accepts either a bare JSON string or an object carrying field
func decodeID(raw json.RawMessage, field string) (string, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", errMalformedFrame
		}
		if v, ok := obj[field]; !ok || json.Unmarshal(v, &id) != nil {
			return "", domain.NewValidationError(field, "is required")
		}
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.NewValidationError(field, "is required")
	}
	return id, nil
}
