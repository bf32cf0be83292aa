package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roomly/backend/internal/domain"
)

// PostgresRepository implements the relay stores using PostgreSQL
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const connectionColumns = `id, sender_id, receiver_id, post_id, message, status, rejection_count, created_at, updated_at`

// UpsertUser mirrors a profile from the profile store
func (r *PostgresRepository) UpsertUser(ctx context.Context, u domain.UserProfile) error {
	query := `
		INSERT INTO users (id, full_name, avatar_url) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, avatar_url = EXCLUDED.avatar_url
	`
	_, err := r.q(ctx).Exec(ctx, query, u.ID, u.FullName, u.Avatar)
	return err
}

// UpsertPost mirrors a listing from the record store
func (r *PostgresRepository) UpsertPost(ctx context.Context, p domain.Post) error {
	query := `
		INSERT INTO posts (id, owner_id, title) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET owner_id = EXCLUDED.owner_id, title = EXCLUDED.title
	`
	_, err := r.q(ctx).Exec(ctx, query, p.ID, p.OwnerID, p.Title)
	return err
}

// GetUserProfile retrieves a user's public profile
func (r *PostgresRepository) GetUserProfile(ctx context.Context, id string) (*domain.UserProfile, error) {
	var u domain.UserProfile
	err := r.q(ctx).QueryRow(ctx, `SELECT id, full_name, avatar_url FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.FullName, &u.Avatar)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetPost retrieves a listing
func (r *PostgresRepository) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	var p domain.Post
	err := r.q(ctx).QueryRow(ctx, `SELECT id, owner_id, title FROM posts WHERE id = $1`, id).
		Scan(&p.ID, &p.OwnerID, &p.Title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPostNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreateConnection inserts a pending request
func (r *PostgresRepository) CreateConnection(ctx context.Context, params domain.CreateConnectionParams) (*domain.ConnectionRequest, error) {
	query := `
		INSERT INTO connections (id, sender_id, receiver_id, post_id, message, status, rejection_count)
		VALUES ($1, $2, $3, $4, $5, 'pending', 0)
		RETURNING ` + connectionColumns
	row := r.q(ctx).QueryRow(ctx, query,
		uuid.NewString(),
		params.SenderID,
		params.ReceiverID,
		params.PostID,
		params.Message,
	)
	return scanConnection(row)
}

// GetConnectionByID retrieves a request by ID
func (r *PostgresRepository) GetConnectionByID(ctx context.Context, id string) (*domain.ConnectionRequest, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	return scanConnection(r.q(ctx).QueryRow(ctx, query, id))
}

// GetConnectionForUpdate retrieves a request and row-locks it for the
// surrounding transaction
func (r *PostgresRepository) GetConnectionForUpdate(ctx context.Context, id string) (*domain.ConnectionRequest, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1 FOR UPDATE`
	return scanConnection(r.q(ctx).QueryRow(ctx, query, id))
}

// TransitionConnection updates the status only while it still equals from
func (r *PostgresRepository) TransitionConnection(ctx context.Context, id string, from, to domain.ConnectionStatus, rejectionCount *int) (*domain.ConnectionRequest, error) {
	query := `
		UPDATE connections SET status = $3, rejection_count = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + connectionColumns
	c, err := scanConnection(r.q(ctx).QueryRow(ctx, query, id, string(from), string(to), rejectionCount))
	if errors.Is(err, domain.ErrConnectionNotFound) {
		if _, getErr := r.GetConnectionByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrInvalidTransition
	}
	return c, err
}

// FindActiveConnections lists pending or accepted requests for a pair and post
func (r *PostgresRepository) FindActiveConnections(ctx context.Context, userA, userB, postID string) ([]*domain.ConnectionRequest, error) {
	query := `
		SELECT ` + connectionColumns + ` FROM connections
		WHERE post_id = $3
		  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		  AND status IN ('pending', 'accepted')
		ORDER BY created_at DESC
	`
	return r.queryConnections(ctx, query, userA, userB, postID)
}

// CountRejections counts rejected requests in one direction for a post
func (r *PostgresRepository) CountRejections(ctx context.Context, senderID, receiverID, postID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM connections
		WHERE sender_id = $1 AND receiver_id = $2 AND post_id = $3 AND status = 'rejected'
	`
	var count int
	err := r.q(ctx).QueryRow(ctx, query, senderID, receiverID, postID).Scan(&count)
	return count, err
}

// ExistsAccepted checks for an accepted request between two users on any post
func (r *PostgresRepository) ExistsAccepted(ctx context.Context, userA, userB string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM connections
			WHERE status = 'accepted'
			  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		)
	`
	var exists bool
	err := r.q(ctx).QueryRow(ctx, query, userA, userB).Scan(&exists)
	return exists, err
}

// ListConnections lists a user's requests, newest first
func (r *PostgresRepository) ListConnections(ctx context.Context, userID string, filter domain.ConnectionFilter) ([]*domain.ConnectionRequest, error) {
	var (
		where []string
		args  = []any{userID}
	)
	switch filter.Role {
	case domain.ConnectionRoleSent:
		where = append(where, "sender_id = $1")
	case domain.ConnectionRoleReceived:
		where = append(where, "receiver_id = $1")
	default:
		where = append(where, "(sender_id = $1 OR receiver_id = $1)")
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, filter.Limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT %s FROM connections
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, connectionColumns, strings.Join(where, " AND "), len(args)-1, len(args))
	return r.queryConnections(ctx, query, args...)
}

// LockPair takes a transaction-scoped advisory lock on the unordered pair and post
func (r *PostgresRepository) LockPair(ctx context.Context, userA, userB, postID string) error {
	ids := []string{userA, userB}
	sort.Strings(ids)
	key := ids[0] + ":" + ids[1] + ":" + postID
	_, err := r.q(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

// CreateMessage inserts a chat message
func (r *PostgresRepository) CreateMessage(ctx context.Context, params domain.CreateMessageParams) (*domain.Message, error) {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, content, sent_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, conversation_id, sender_id, content, sent_at
	`
	row := r.q(ctx).QueryRow(ctx, query,
		uuid.NewString(),
		params.ConversationID,
		params.SenderID,
		params.Content,
		params.Timestamp,
	)
	return scanMessage(row)
}

// GetMessages returns a conversation's messages, oldest first
func (r *PostgresRepository) GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]*domain.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, sent_at
		FROM messages WHERE conversation_id = $1
		ORDER BY sent_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.q(ctx).Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

const notificationColumns = `id, user_id, type, message, is_read, related_type, related_id, from_user, created_at`

// CreateNotification inserts an unread notification
func (r *PostgresRepository) CreateNotification(ctx context.Context, params domain.CreateNotificationParams) (*domain.Notification, error) {
	var fromUser []byte
	if params.FromUser != nil {
		b, err := json.Marshal(params.FromUser)
		if err != nil {
			return nil, err
		}
		fromUser = b
	}

	query := `
		INSERT INTO notifications (id, user_id, type, message, related_type, related_id, from_user)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + notificationColumns
	row := r.q(ctx).QueryRow(ctx, query,
		uuid.NewString(),
		params.UserID,
		string(params.Type),
		params.Message,
		params.RelatedEntity.Type,
		params.RelatedEntity.ID,
		fromUser,
	)
	return scanNotification(row)
}

// GetNotifications lists a user's notifications, newest first
func (r *PostgresRepository) GetNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + ` FROM notifications
		WHERE user_id = $1 AND ($2 = FALSE OR is_read = FALSE)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.q(ctx).Query(ctx, query, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// CountUnreadNotifications counts a user's unread notifications
func (r *PostgresRepository) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.q(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID,
	).Scan(&count)
	return count, err
}

// MarkNotificationRead marks one of the user's notifications read
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, userID, notificationID string) (*domain.Notification, error) {
	query := `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND user_id = $2
		RETURNING ` + notificationColumns
	return scanNotification(r.q(ctx).QueryRow(ctx, query, notificationID, userID))
}

// MarkAllNotificationsRead marks every unread notification of the user read
func (r *PostgresRepository) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SaveDeviceToken registers or refreshes a device token
func (r *PostgresRepository) SaveDeviceToken(ctx context.Context, userID, token string) error {
	query := `
		INSERT INTO device_tokens (token, user_id) VALUES ($1, $2)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, updated_at = NOW()
	`
	_, err := r.q(ctx).Exec(ctx, query, token, userID)
	return err
}

// GetDeviceTokens lists a user's device tokens
func (r *PostgresRepository) GetDeviceTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT token FROM device_tokens WHERE user_id = $1 ORDER BY token`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// DeleteDeviceToken removes a device token
func (r *PostgresRepository) DeleteDeviceToken(ctx context.Context, token string) error {
	_, err := r.q(ctx).Exec(ctx, `DELETE FROM device_tokens WHERE token = $1`, token)
	return err
}

// DeleteStaleDeviceTokens removes tokens not refreshed since olderThan
func (r *PostgresRepository) DeleteStaleDeviceTokens(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.q(ctx).Exec(ctx, `DELETE FROM device_tokens WHERE updated_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) queryConnections(ctx context.Context, query string, args ...any) ([]*domain.ConnectionRequest, error) {
	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []*domain.ConnectionRequest
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// Helper functions for scanning rows

func scanConnection(row pgx.Row) (*domain.ConnectionRequest, error) {
	var (
		c      domain.ConnectionRequest
		status string
	)
	err := row.Scan(
		&c.ID,
		&c.SenderID,
		&c.ReceiverID,
		&c.PostID,
		&c.Message,
		&status,
		&c.RejectionCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConnectionNotFound
		}
		return nil, err
	}
	c.Status = domain.ConnectionStatus(status)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Timestamp)
	if err != nil {
		return nil, err
	}
	m.Timestamp = m.Timestamp.UTC()
	return &m, nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var (
		n        domain.Notification
		typ      string
		fromUser []byte
	)
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&typ,
		&n.Message,
		&n.IsRead,
		&n.RelatedEntity.Type,
		&n.RelatedEntity.ID,
		&fromUser,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotificationNotFound
		}
		return nil, err
	}
	n.Type = domain.NotificationType(typ)
	n.CreatedAt = n.CreatedAt.UTC()
	if len(fromUser) > 0 {
		var snap domain.UserSnapshot
		if err := json.Unmarshal(fromUser, &snap); err != nil {
			return nil, err
		}
		n.FromUser = &snap
	}
	return &n, nil
}
