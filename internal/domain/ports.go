package domain

import (
	"context"
	"time"

	"github.com/roomly/backend/internal/i18n"
)

// Outbound relay events
const (
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
)

// Pusher delivers an event to live sessions. Having nobody to deliver to is
// not an error.
type Pusher interface {
	PushToUser(ctx context.Context, userID, event string, payload interface{}) error
	PushToRoom(ctx context.Context, roomID, event string, payload interface{}) error
}

// Presence reports whether a user has at least one live session anywhere
type Presence interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// PushSender sends an offline push notification to one device token
type PushSender interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// Transactor runs fn in a single store transaction. Repository calls made
// with the ctx passed to fn join the transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Options tunes the domain services
type Options struct {
	Timeout        time.Duration // per-operation store deadline
	RejectionLimit int
	Catalog        *i18n.Catalog
	Clock          func() time.Time
}

func (o *Options) norm() {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.RejectionLimit <= 0 {
		o.RejectionLimit = 3
	}
	if o.Catalog == nil {
		o.Catalog = i18n.New("en")
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

func (o *Options) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.Timeout)
}
