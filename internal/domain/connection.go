package domain

import (
	"context"
	"time"
)

type ConnectionStatus string

const (
	ConnectionStatusPending   ConnectionStatus = "pending"
	ConnectionStatusAccepted  ConnectionStatus = "accepted"
	ConnectionStatusRejected  ConnectionStatus = "rejected"
	ConnectionStatusCancelled ConnectionStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed
func (s ConnectionStatus) Terminal() bool {
	return s == ConnectionStatusAccepted || s == ConnectionStatusRejected || s == ConnectionStatusCancelled
}

// Valid reports whether s is a known status
func (s ConnectionStatus) Valid() bool {
	return s == ConnectionStatusPending || s.Terminal()
}

// ConnectionRequest is a sender's request to connect with a listing's
// receiver. Once accepted its ID doubles as the conversation and room ID.
type ConnectionRequest struct {
	ID             string           `json:"id"`
	SenderID       string           `json:"senderId"`
	ReceiverID     string           `json:"receiverId"`
	PostID         string           `json:"postId"`
	Message        string           `json:"message"`
	Status         ConnectionStatus `json:"status"`
	RejectionCount *int             `json:"rejectionCount,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// Involves reports whether userID is the sender or the receiver
func (c *ConnectionRequest) Involves(userID string) bool {
	return c.SenderID == userID || c.ReceiverID == userID
}

type ConnectionRole string

const (
	ConnectionRoleAll      ConnectionRole = "all"
	ConnectionRoleSent     ConnectionRole = "sent"
	ConnectionRoleReceived ConnectionRole = "received"
)

// ConnectionFilter narrows ListConnections
type ConnectionFilter struct {
	Role   ConnectionRole
	Status ConnectionStatus // empty means any
	Limit  int
	Offset int
}

type CreateConnectionParams struct {
	SenderID   string
	ReceiverID string
	PostID     string
	Message    string
}

type ConnectionRepository interface {
	CreateConnection(ctx context.Context, params CreateConnectionParams) (*ConnectionRequest, error)
	GetConnectionByID(ctx context.Context, id string) (*ConnectionRequest, error)
	// GetConnectionForUpdate reads a request and locks it until the surrounding transaction ends
	GetConnectionForUpdate(ctx context.Context, id string) (*ConnectionRequest, error)
	// TransitionConnection moves a request from one status to another. It
	// returns ErrInvalidTransition when the stored status is not from.
	TransitionConnection(ctx context.Context, id string, from, to ConnectionStatus, rejectionCount *int) (*ConnectionRequest, error)
	// FindActiveConnections lists pending or accepted requests between two
	// users for a post, in either direction
	FindActiveConnections(ctx context.Context, userA, userB, postID string) ([]*ConnectionRequest, error)
	CountRejections(ctx context.Context, senderID, receiverID, postID string) (int, error)
	ExistsAccepted(ctx context.Context, userA, userB string) (bool, error)
	ListConnections(ctx context.Context, userID string, filter ConnectionFilter) ([]*ConnectionRequest, error)
	// LockPair serializes writers on the unordered user pair and post for the
	// rest of the surrounding transaction
	LockPair(ctx context.Context, userA, userB, postID string) error
}
