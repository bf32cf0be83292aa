package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roomly/backend/internal/domain"
)

// MemoryRepository is an in-process record store used for development and
// tests. Transactions are serialized and rolled back by restoring a snapshot.
type MemoryRepository struct {
	mu    sync.Mutex
	data  memoryData
	clock func() time.Time
}

type memoryData struct {
	users         map[string]domain.UserProfile
	posts         map[string]domain.Post
	connections   map[string]domain.ConnectionRequest
	messages      []domain.Message
	notifications map[string]domain.Notification
	deviceTokens  map[string]deviceToken
}

type deviceToken struct {
	userID    string
	updatedAt time.Time
}

func (d memoryData) clone() memoryData {
	c := memoryData{
		users:         make(map[string]domain.UserProfile, len(d.users)),
		posts:         make(map[string]domain.Post, len(d.posts)),
		connections:   make(map[string]domain.ConnectionRequest, len(d.connections)),
		messages:      append([]domain.Message(nil), d.messages...),
		notifications: make(map[string]domain.Notification, len(d.notifications)),
		deviceTokens:  make(map[string]deviceToken, len(d.deviceTokens)),
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.posts {
		c.posts[k] = v
	}
	for k, v := range d.connections {
		c.connections[k] = v
	}
	for k, v := range d.notifications {
		c.notifications[k] = v
	}
	for k, v := range d.deviceTokens {
		c.deviceTokens[k] = v
	}
	return c
}

// NewMemoryRepository creates an empty in-memory store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		data:  memoryData{}.clone(),
		clock: time.Now,
	}
}

// SetClock replaces the time source, for tests
func (r *MemoryRepository) SetClock(clock func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

type memoryTxKey struct{}

func (r *MemoryRepository) inTx(ctx context.Context) bool {
	tx, _ := ctx.Value(memoryTxKey{}).(*MemoryRepository)
	return tx == r
}

// lock takes the store lock unless ctx already runs inside one of our transactions
func (r *MemoryRepository) lock(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.inTx(ctx) {
		return func() {}, nil
	}
	r.mu.Lock()
	return r.mu.Unlock, nil
}

// WithinTx implements domain.Transactor
func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.data.clone()
	if err := fn(context.WithValue(ctx, memoryTxKey{}, r)); err != nil {
		r.data = snapshot
		return err
	}
	return nil
}

// Seed is the shape of a STORE_SEED_FILE
type Seed struct {
	Users []domain.UserProfile `json:"users"`
	Posts []domain.Post        `json:"posts"`
}

// LoadSeedFile loads users and posts from a JSON file
func (r *MemoryRepository) LoadSeedFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}
	for _, u := range seed.Users {
		r.UpsertUser(u)
	}
	for _, p := range seed.Posts {
		r.UpsertPost(p)
	}
	return nil
}

// UpsertUser mirrors a profile from the profile store
func (r *MemoryRepository) UpsertUser(u domain.UserProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.users[u.ID] = u
}

// UpsertPost mirrors a listing from the record store
func (r *MemoryRepository) UpsertPost(p domain.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.posts[p.ID] = p
}

// Directory

func (r *MemoryRepository) GetUserProfile(ctx context.Context, id string) (*domain.UserProfile, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	u, ok := r.data.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, ok := r.data.posts[id]
	if !ok {
		return nil, domain.ErrPostNotFound
	}
	return &p, nil
}

// Connections

func (r *MemoryRepository) CreateConnection(ctx context.Context, params domain.CreateConnectionParams) (*domain.ConnectionRequest, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := r.clock().UTC()
	zero := 0
	c := domain.ConnectionRequest{
		ID:             uuid.NewString(),
		SenderID:       params.SenderID,
		ReceiverID:     params.ReceiverID,
		PostID:         params.PostID,
		Message:        params.Message,
		Status:         domain.ConnectionStatusPending,
		RejectionCount: &zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.data.connections[c.ID] = c
	return &c, nil
}

func (r *MemoryRepository) GetConnectionByID(ctx context.Context, id string) (*domain.ConnectionRequest, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, ok := r.data.connections[id]
	if !ok {
		return nil, domain.ErrConnectionNotFound
	}
	return &c, nil
}

// GetConnectionForUpdate needs no row lock here, transactions are already serialized
func (r *MemoryRepository) GetConnectionForUpdate(ctx context.Context, id string) (*domain.ConnectionRequest, error) {
	return r.GetConnectionByID(ctx, id)
}

func (r *MemoryRepository) TransitionConnection(ctx context.Context, id string, from, to domain.ConnectionStatus, rejectionCount *int) (*domain.ConnectionRequest, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, ok := r.data.connections[id]
	if !ok {
		return nil, domain.ErrConnectionNotFound
	}
	if c.Status != from {
		return nil, domain.ErrInvalidTransition
	}
	c.Status = to
	c.RejectionCount = nil
	if rejectionCount != nil {
		n := *rejectionCount
		c.RejectionCount = &n
	}
	c.UpdatedAt = r.clock().UTC()
	r.data.connections[id] = c
	return &c, nil
}

func (r *MemoryRepository) FindActiveConnections(ctx context.Context, userA, userB, postID string) ([]*domain.ConnectionRequest, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*domain.ConnectionRequest
	for _, c := range r.data.connections {
		if c.PostID != postID || !samePair(c, userA, userB) {
			continue
		}
		if c.Status == domain.ConnectionStatusPending || c.Status == domain.ConnectionStatusAccepted {
			c := c
			out = append(out, &c)
		}
	}
	sortConnections(out)
	return out, nil
}

func (r *MemoryRepository) CountRejections(ctx context.Context, senderID, receiverID, postID string) (int, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := 0
	for _, c := range r.data.connections {
		if c.SenderID == senderID && c.ReceiverID == receiverID && c.PostID == postID &&
			c.Status == domain.ConnectionStatusRejected {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) ExistsAccepted(ctx context.Context, userA, userB string) (bool, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	for _, c := range r.data.connections {
		if c.Status == domain.ConnectionStatusAccepted && samePair(c, userA, userB) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) ListConnections(ctx context.Context, userID string, filter domain.ConnectionFilter) ([]*domain.ConnectionRequest, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*domain.ConnectionRequest
	for _, c := range r.data.connections {
		switch filter.Role {
		case domain.ConnectionRoleSent:
			if c.SenderID != userID {
				continue
			}
		case domain.ConnectionRoleReceived:
			if c.ReceiverID != userID {
				continue
			}
		default:
			if !c.Involves(userID) {
				continue
			}
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		c := c
		out = append(out, &c)
	}
	sortConnections(out)
	return page(out, filter.Limit, filter.Offset), nil
}

// LockPair is a no-op, transactions are already serialized
func (r *MemoryRepository) LockPair(ctx context.Context, userA, userB, postID string) error {
	return ctx.Err()
}

// Messages

func (r *MemoryRepository) CreateMessage(ctx context.Context, params domain.CreateMessageParams) (*domain.Message, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		Content:        params.Content,
		Timestamp:      params.Timestamp,
	}
	r.data.messages = append(r.data.messages, m)
	return &m, nil
}

func (r *MemoryRepository) GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]*domain.Message, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*domain.Message
	for _, m := range r.data.messages {
		if m.ConversationID == conversationID {
			m := m
			out = append(out, &m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return page(out, limit, offset), nil
}

// Notifications

func (r *MemoryRepository) CreateNotification(ctx context.Context, params domain.CreateNotificationParams) (*domain.Notification, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	n := domain.Notification{
		ID:            uuid.NewString(),
		UserID:        params.UserID,
		Type:          params.Type,
		Message:       params.Message,
		CreatedAt:     r.clock().UTC(),
		RelatedEntity: params.RelatedEntity,
		FromUser:      params.FromUser,
	}
	r.data.notifications[n.ID] = n
	return &n, nil
}

func (r *MemoryRepository) GetNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*domain.Notification, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*domain.Notification
	for _, n := range r.data.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		n := n
		out = append(out, &n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, limit, offset), nil
}

func (r *MemoryRepository) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	count := 0
	for _, n := range r.data.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) MarkNotificationRead(ctx context.Context, userID, notificationID string) (*domain.Notification, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	n, ok := r.data.notifications[notificationID]
	if !ok || n.UserID != userID {
		return nil, domain.ErrNotificationNotFound
	}
	n.IsRead = true
	r.data.notifications[notificationID] = n
	return &n, nil
}

func (r *MemoryRepository) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var count int64
	for id, n := range r.data.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			r.data.notifications[id] = n
			count++
		}
	}
	return count, nil
}

// Device tokens

func (r *MemoryRepository) SaveDeviceToken(ctx context.Context, userID, token string) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	r.data.deviceTokens[token] = deviceToken{userID: userID, updatedAt: r.clock().UTC()}
	return nil
}

func (r *MemoryRepository) GetDeviceTokens(ctx context.Context, userID string) ([]string, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var tokens []string
	for token, dt := range r.data.deviceTokens {
		if dt.userID == userID {
			tokens = append(tokens, token)
		}
	}
	sort.Strings(tokens)
	return tokens, nil
}

func (r *MemoryRepository) DeleteDeviceToken(ctx context.Context, token string) error {
	unlock, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	delete(r.data.deviceTokens, token)
	return nil
}

func (r *MemoryRepository) DeleteStaleDeviceTokens(ctx context.Context, olderThan time.Time) (int64, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var count int64
	for token, dt := range r.data.deviceTokens {
		if dt.updatedAt.Before(olderThan) {
			delete(r.data.deviceTokens, token)
			count++
		}
	}
	return count, nil
}

func samePair(c domain.ConnectionRequest, userA, userB string) bool {
	return (c.SenderID == userA && c.ReceiverID == userB) || (c.SenderID == userB && c.ReceiverID == userA)
}

func sortConnections(cs []*domain.ConnectionRequest) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].ID > cs[j].ID
		}
		return cs[i].CreatedAt.After(cs[j].CreatedAt)
	})
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
