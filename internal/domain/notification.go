package domain

import (
	"context"
	"time"
)

type NotificationType string

const (
	NotificationConnectionRequest   NotificationType = "connection_request"
	NotificationConnectionAccepted  NotificationType = "connection_accepted"
	NotificationConnectionRejected  NotificationType = "connection_rejected"
	NotificationConnectionCancelled NotificationType = "connection_cancelled"
)

// EntityRef points at the record a notification is about
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type Notification struct {
	ID            string           `json:"id"`
	UserID        string           `json:"userId"`
	Type          NotificationType `json:"type"`
	Message       string           `json:"message"`
	IsRead        bool             `json:"isRead"`
	CreatedAt     time.Time        `json:"createdAt"`
	RelatedEntity EntityRef        `json:"relatedEntity"`
	FromUser      *UserSnapshot    `json:"fromUser,omitempty"`
}

type CreateNotificationParams struct {
	UserID        string
	Type          NotificationType
	Message       string
	RelatedEntity EntityRef
	FromUser      *UserSnapshot
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, params CreateNotificationParams) (*Notification, error)
	GetNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	// MarkNotificationRead returns ErrNotificationNotFound unless the notification belongs to userID
	MarkNotificationRead(ctx context.Context, userID, notificationID string) (*Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
}

// DeviceTokenRepository stores FCM registration tokens for offline push
type DeviceTokenRepository interface {
	SaveDeviceToken(ctx context.Context, userID, token string) error
	GetDeviceTokens(ctx context.Context, userID string) ([]string, error)
	DeleteDeviceToken(ctx context.Context, token string) error
	DeleteStaleDeviceTokens(ctx context.Context, olderThan time.Time) (int64, error)
}
