package domain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roomly/backend/internal/i18n"
)

type NotificationStore interface {
	NotificationRepository
	DeviceTokenRepository
}

type NotificationService struct {
	repo     NotificationStore
	pusher   Pusher
	presence Presence
	push     PushSender // nil disables offline push
	logger   *zap.Logger
	opts     Options

	inflight sync.WaitGroup
}

func NewNotificationService(repo NotificationStore, pusher Pusher, presence Presence, push PushSender, logger *zap.Logger, opts Options) *NotificationService {
	opts.norm()
	return &NotificationService{
		repo:     repo,
		pusher:   pusher,
		presence: presence,
		push:     push,
		logger:   logger,
		opts:     opts,
	}
}

// NotifyParams describes a notification before it is worded and stored
type NotifyParams struct {
	UserID  string
	Type    NotificationType
	Related EntityRef
	From    *UserProfile
}

var notificationText = map[NotificationType]string{
	NotificationConnectionRequest:   i18n.NotifyConnectionRequest,
	NotificationConnectionAccepted:  i18n.NotifyConnectionAccepted,
	NotificationConnectionRejected:  i18n.NotifyConnectionRejected,
	NotificationConnectionCancelled: i18n.NotifyConnectionCancelled,
}

// Create words and persists a notification without delivering it. Called
// with a transaction context it becomes part of that transaction.
func (s *NotificationService) Create(ctx context.Context, p NotifyParams) (*Notification, error) {
	key, ok := notificationText[p.Type]
	if !ok {
		return nil, NewValidationError("type", "unknown notification type")
	}
	if p.UserID == "" {
		return nil, NewValidationError("userId", "is required")
	}

	params := CreateNotificationParams{
		UserID:        p.UserID,
		Type:          p.Type,
		RelatedEntity: p.Related,
	}
	name := ""
	if p.From != nil {
		params.FromUser = p.From.Snapshot()
		name = p.From.FullName
	}
	params.Message = s.opts.Catalog.Text(key, name)

	n, err := s.repo.CreateNotification(ctx, params)
	if err != nil {
		return nil, storeError(err)
	}
	return n, nil
}

// Deliver pushes n to the recipient's live sessions. When the recipient is
// offline and offline push is configured, it is also sent to their devices.
// It reports whether the recipient was believed live.
func (s *NotificationService) Deliver(ctx context.Context, n *Notification) bool {
	if err := s.pusher.PushToUser(ctx, n.UserID, EventNewNotification, n); err != nil {
		s.logger.Warn("failed to push notification",
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Error(err),
		)
	}

	online, err := s.presence.IsOnline(ctx, n.UserID)
	if err != nil {
		s.logger.Warn("presence lookup failed", zap.String("user_id", n.UserID), zap.Error(err))
	}
	if online {
		return true
	}

	s.logger.Debug("recipient offline", zap.String("user_id", n.UserID), zap.String("type", string(n.Type)))
	if s.push == nil {
		return false
	}

	tokens, err := s.repo.GetDeviceTokens(ctx, n.UserID)
	if err != nil {
		s.logger.Warn("failed to get device tokens", zap.String("user_id", n.UserID), zap.Error(err))
		return false
	}

	data := map[string]string{
		"type":            string(n.Type),
		"notification_id": n.ID,
		"related_type":    n.RelatedEntity.Type,
		"related_id":      n.RelatedEntity.ID,
	}
	title := "Roomly"
	if n.FromUser != nil && n.FromUser.FullName != "" {
		title = n.FromUser.FullName
	}

	for _, token := range tokens {
		if strings.TrimSpace(token) == "" {
			continue
		}
		s.inflight.Add(1)
		go func(t string) {
			defer s.inflight.Done()
			pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := s.push.Send(pushCtx, t, title, n.Message, data)
			if errors.Is(err, ErrInvalidPushToken) {
				if err := s.repo.DeleteDeviceToken(pushCtx, t); err != nil {
					s.logger.Warn("failed to delete invalid device token", zap.Error(err))
				}
			}
		}(token)
	}
	return false
}

// Notify persists a notification and attempts delivery
func (s *NotificationService) Notify(ctx context.Context, p NotifyParams) (*Notification, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	n, err := s.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	s.Deliver(ctx, n)
	return n, nil
}

// Wait blocks until background pushes finish
func (s *NotificationService) Wait() {
	s.inflight.Wait()
}

func (s *NotificationService) GetNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	notifs, err := s.repo.GetNotifications(ctx, userID, unreadOnly, limit, offset)
	return notifs, storeError(err)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	n, err := s.repo.CountUnreadNotifications(ctx, userID)
	return n, storeError(err)
}

// MarkRead is the read receipt: isRead becomes true, repeat calls are harmless
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*Notification, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	n, err := s.repo.MarkNotificationRead(ctx, userID, notificationID)
	if err != nil {
		return nil, storeError(err)
	}
	return n, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	n, err := s.repo.MarkAllNotificationsRead(ctx, userID)
	return n, storeError(err)
}

func (s *NotificationService) RegisterDeviceToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return NewValidationError("token", "is required")
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	return storeError(s.repo.SaveDeviceToken(ctx, userID, token))
}

// StartTokenSweeper periodically drops device tokens not refreshed within maxAge
func (s *NotificationService) StartTokenSweeper(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.repo.DeleteStaleDeviceTokens(ctx, s.opts.Clock().Add(-maxAge))
				if err != nil {
					s.logger.Warn("device token sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					s.logger.Info("swept stale device tokens", zap.Int64("count", n))
				}
			}
		}
	}()
}
