// Package relayclient talks to the Roomly relay from Go: a websocket client
// for the event protocol, a REST client for snapshots, and a State that
// merges both into one consistent view.
package relayclient

import (
	"encoding/json"
	"time"
)

// Events sent to the relay
const (
	EventRegisterUser           = "registerUser"
	EventJoinRoom               = "joinRoom"
	EventLeaveRoom              = "leaveRoom"
	EventSendMessage            = "sendMessage"
	EventSendConnectionRequest  = "sendConnectionRequest"
	EventUpdateConnectionStatus = "updateConnectionStatus"
)

// Events received from the relay
const (
	EventRegistered                   = "registered"
	EventRegisterUserFailed           = "registerUserFailed"
	EventRoomJoined                   = "roomJoined"
	EventJoinRoomFailed               = "joinRoomFailed"
	EventReceiveMessage               = "receiveMessage"
	EventSendMessageFailed            = "sendMessageFailed"
	EventNewConnectionRequest         = "newConnectionRequest"
	EventConnectionRequestSent        = "connectionRequestSent"
	EventConnectionRequestFailed      = "connectionRequestFailed"
	EventNewNotification              = "newNotification"
	EventConnectionAccepted           = "connectionAccepted"
	EventConnectionRejected           = "connectionRejected"
	EventConnectionCancelled          = "connectionCancelled"
	EventUpdateConnectionStatusFailed = "updateConnectionStatusFailed"
	EventRateLimited                  = "rateLimited"
	EventInvalidFrame                 = "invalidFrame"
)

const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// Frame is one websocket message
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Connection struct {
	ID             string    `json:"id"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	PostID         string    `json:"postId"`
	Message        string    `json:"message"`
	Status         string    `json:"status"`
	RejectionCount *int      `json:"rejectionCount,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Terminal reports whether the request can no longer change
func (c Connection) Terminal() bool {
	return c.Status == StatusAccepted || c.Status == StatusRejected || c.Status == StatusCancelled
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type UserSnapshot struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar,omitempty"`
}

type Notification struct {
	ID            string        `json:"id"`
	UserID        string        `json:"userId"`
	Type          string        `json:"type"`
	Message       string        `json:"message"`
	IsRead        bool          `json:"isRead"`
	CreatedAt     time.Time     `json:"createdAt"`
	RelatedEntity EntityRef     `json:"relatedEntity"`
	FromUser      *UserSnapshot `json:"fromUser,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Failure is the payload of every *Failed event
type Failure struct {
	Code   string       `json:"code"`
	Reason string       `json:"reason"`
	Ref    string       `json:"ref,omitempty"`
	Fields []FieldError `json:"fields,omitempty"`
}

func (f Failure) Error() string {
	return f.Code + ": " + f.Reason
}
