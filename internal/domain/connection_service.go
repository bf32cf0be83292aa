package domain

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type ConnectionStore interface {
	Transactor
	ConnectionRepository
	MessageRepository
	DirectoryRepository
}

type ConnectionService struct {
	store    ConnectionStore
	notifier *NotificationService
	pusher   Pusher
	logger   *zap.Logger
	opts     Options
}

func NewConnectionService(store ConnectionStore, notifier *NotificationService, pusher Pusher, logger *zap.Logger, opts Options) *ConnectionService {
	opts.norm()
	return &ConnectionService{
		store:    store,
		notifier: notifier,
		pusher:   pusher,
		logger:   logger,
		opts:     opts,
	}
}

// SendRequestParams is the sender's input to CreateRequest
type SendRequestParams struct {
	SenderID   string `json:"senderId" validate:"required"`
	ReceiverID string `json:"receiverId" validate:"required,nefield=SenderID"`
	PostID     string `json:"postId" validate:"required"`
	Message    string `json:"message" validate:"max=1000"`
}

// CreateRequest opens a pending request from sender to receiver about a post.
// The duplicate check, rejection gate, request and notification writes run in
// one transaction serialized on the user pair and post; pushes happen after
// commit.
func (s *ConnectionService) CreateRequest(ctx context.Context, p SendRequestParams) (*ConnectionRequest, error) {
	p.SenderID = strings.TrimSpace(p.SenderID)
	p.ReceiverID = strings.TrimSpace(p.ReceiverID)
	p.PostID = strings.TrimSpace(p.PostID)
	if strings.TrimSpace(p.Message) == "" {
		p.Message = ""
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	var (
		req   *ConnectionRequest
		notif *Notification
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockPair(ctx, p.SenderID, p.ReceiverID, p.PostID); err != nil {
			return err
		}

		active, err := s.store.FindActiveConnections(ctx, p.SenderID, p.ReceiverID, p.PostID)
		if err != nil {
			return err
		}
		for _, c := range active {
			sameDirection := c.SenderID == p.SenderID
			if sameDirection || c.Status == ConnectionStatusAccepted {
				return ErrDuplicateRequest
			}
		}

		rejections, err := s.store.CountRejections(ctx, p.SenderID, p.ReceiverID, p.PostID)
		if err != nil {
			return err
		}
		if rejections >= s.opts.RejectionLimit {
			return ErrRejectionLimit
		}

		sender, err := s.store.GetUserProfile(ctx, p.SenderID)
		if err != nil {
			return err
		}
		if _, err := s.store.GetUserProfile(ctx, p.ReceiverID); err != nil {
			return err
		}
		if _, err := s.store.GetPost(ctx, p.PostID); err != nil {
			return err
		}

		req, err = s.store.CreateConnection(ctx, CreateConnectionParams{
			SenderID:   p.SenderID,
			ReceiverID: p.ReceiverID,
			PostID:     p.PostID,
			Message:    p.Message,
		})
		if err != nil {
			return err
		}

		notif, err = s.notifier.Create(ctx, NotifyParams{
			UserID:  p.ReceiverID,
			Type:    NotificationConnectionRequest,
			Related: EntityRef{Type: "connection", ID: req.ID},
			From:    sender,
		})
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.push(ctx, req.ReceiverID, EventNewConnectionRequest, req)
	s.notifier.Deliver(ctx, notif)

	s.logger.Info("connection request created",
		zap.String("connection_id", req.ID),
		zap.String("sender_id", req.SenderID),
		zap.String("receiver_id", req.ReceiverID),
		zap.String("post_id", req.PostID),
	)
	return req, nil
}

// Respond lets the receiver accept or reject a pending request. Only the
// first answer wins: answering a request that is no longer pending returns
// ErrInvalidTransition and produces no side effects.
func (s *ConnectionService) Respond(ctx context.Context, actorID, connectionID string, accept bool) (*ConnectionRequest, error) {
	if strings.TrimSpace(connectionID) == "" {
		return nil, NewValidationError("connectionId", "is required")
	}

	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	var (
		updated *ConnectionRequest
		notif   *Notification
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.store.GetConnectionForUpdate(ctx, connectionID)
		if err != nil {
			return err
		}
		if req.ReceiverID != actorID {
			return ErrForbidden
		}
		if req.Status != ConnectionStatusPending {
			return ErrInvalidTransition
		}

		receiver, err := s.store.GetUserProfile(ctx, req.ReceiverID)
		if err != nil {
			return err
		}

		notifType := NotificationConnectionRejected
		if accept {
			notifType = NotificationConnectionAccepted
			updated, err = s.store.TransitionConnection(ctx, req.ID, ConnectionStatusPending, ConnectionStatusAccepted, nil)
			if err != nil {
				return err
			}
			if req.Message != "" {
				_, err = s.store.CreateMessage(ctx, CreateMessageParams{
					ConversationID: req.ID,
					SenderID:       req.SenderID,
					Content:        req.Message,
					Timestamp:      s.opts.Clock(),
				})
				if err != nil {
					return err
				}
			}
		} else {
			prior, err := s.store.CountRejections(ctx, req.SenderID, req.ReceiverID, req.PostID)
			if err != nil {
				return err
			}
			count := prior + 1
			updated, err = s.store.TransitionConnection(ctx, req.ID, ConnectionStatusPending, ConnectionStatusRejected, &count)
			if err != nil {
				return err
			}
		}

		notif, err = s.notifier.Create(ctx, NotifyParams{
			UserID:  req.SenderID,
			Type:    notifType,
			Related: EntityRef{Type: "connection", ID: req.ID},
			From:    receiver,
		})
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}

	event := EventConnectionRejected
	if accept {
		event = EventConnectionAccepted
	}
	s.push(ctx, updated.SenderID, event, updated)
	s.push(ctx, updated.ReceiverID, event, updated)
	s.notifier.Deliver(ctx, notif)

	s.logger.Info("connection request answered",
		zap.String("connection_id", updated.ID),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

// Cancel lets the sender withdraw a pending request
func (s *ConnectionService) Cancel(ctx context.Context, actorID, connectionID string) (*ConnectionRequest, error) {
	if strings.TrimSpace(connectionID) == "" {
		return nil, NewValidationError("connectionId", "is required")
	}

	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	var (
		updated *ConnectionRequest
		notif   *Notification
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.store.GetConnectionForUpdate(ctx, connectionID)
		if err != nil {
			return err
		}
		if req.SenderID != actorID {
			return ErrForbidden
		}
		if req.Status != ConnectionStatusPending {
			return ErrInvalidTransition
		}

		sender, err := s.store.GetUserProfile(ctx, req.SenderID)
		if err != nil {
			return err
		}

		updated, err = s.store.TransitionConnection(ctx, req.ID, ConnectionStatusPending, ConnectionStatusCancelled, nil)
		if err != nil {
			return err
		}

		notif, err = s.notifier.Create(ctx, NotifyParams{
			UserID:  req.ReceiverID,
			Type:    NotificationConnectionCancelled,
			Related: EntityRef{Type: "connection", ID: req.ID},
			From:    sender,
		})
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.push(ctx, updated.ReceiverID, EventConnectionCancelled, updated)
	s.push(ctx, updated.SenderID, EventConnectionCancelled, updated)
	s.notifier.Deliver(ctx, notif)

	s.logger.Info("connection request cancelled", zap.String("connection_id", updated.ID))
	return updated, nil
}

// CheckMutualStatus reports whether the two users have an accepted
// connection in either direction, on any post
func (s *ConnectionService) CheckMutualStatus(ctx context.Context, userID1, userID2 string) (bool, error) {
	if userID1 == "" || userID2 == "" {
		return false, NewValidationError("userId", "is required")
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	ok, err := s.store.ExistsAccepted(ctx, userID1, userID2)
	return ok, storeError(err)
}

// GetConnection returns a request visible to actorID
func (s *ConnectionService) GetConnection(ctx context.Context, actorID, connectionID string) (*ConnectionRequest, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	req, err := s.store.GetConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, storeError(err)
	}
	if !req.Involves(actorID) {
		return nil, ErrConnectionNotFound
	}
	return req, nil
}

func (s *ConnectionService) ListConnections(ctx context.Context, userID string, filter ConnectionFilter) ([]*ConnectionRequest, error) {
	if filter.Role == "" {
		filter.Role = ConnectionRoleAll
	}
	switch filter.Role {
	case ConnectionRoleAll, ConnectionRoleSent, ConnectionRoleReceived:
	default:
		return nil, NewValidationError("role", "must be one of all sent received")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, NewValidationError("status", "unknown status")
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	conns, err := s.store.ListConnections(ctx, userID, filter)
	return conns, storeError(err)
}

func (s *ConnectionService) push(ctx context.Context, userID, event string, payload interface{}) {
	if err := s.pusher.PushToUser(ctx, userID, event, payload); err != nil {
		s.logger.Warn("failed to push event",
			zap.String("event", event),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
