package domain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roomly/backend/internal/domain"
	"github.com/roomly/backend/internal/i18n"
)

func TestNotify_OnlineRecipientGetsNoOfflinePush(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.notifier.RegisterDeviceToken(ctx, "u2", "token-a"))
	h.presence.set("u2", true)

	h.request(t, "u1", "u2", "p1", "Hi")
	h.notifier.Wait()

	assert.Empty(t, h.sender.sent)
}

func TestNotify_OfflineRecipientGetsPushPerDevice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.notifier.RegisterDeviceToken(ctx, "u2", "token-a"))
	require.NoError(t, h.notifier.RegisterDeviceToken(ctx, "u2", "token-b"))

	req := h.request(t, "u1", "u2", "p1", "Hi")
	h.notifier.Wait()

	require.Len(t, h.sender.sent, 2)
	for _, s := range h.sender.sent {
		assert.Equal(t, "An Nguyen", s.Title)
		assert.Equal(t, "An Nguyen sent you a roommate connection request", s.Body)
		assert.Equal(t, "connection_request", s.Data["type"])
		assert.Equal(t, req.ID, s.Data["related_id"])
	}
}

func TestNotify_InvalidTokenIsDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.notifier.RegisterDeviceToken(ctx, "u2", "stale"))
	require.NoError(t, h.notifier.RegisterDeviceToken(ctx, "u2", "fresh"))
	h.sender.invalid["stale"] = true

	h.request(t, "u1", "u2", "p1", "")
	h.notifier.Wait()

	tokens, err := h.repo.GetDeviceTokens(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, tokens)
}

func TestNotify_WithoutPushSender(t *testing.T) {
	h := newHarness(t)
	notifier := domain.NewNotificationService(h.repo, h.pusher, h.presence, nil, zap.NewNop(), domain.Options{})

	n, err := notifier.Notify(context.Background(), domain.NotifyParams{
		UserID:  "u1",
		Type:    domain.NotificationConnectionRejected,
		Related: domain.EntityRef{Type: "connection", ID: "c1"},
		From:    &domain.UserProfile{ID: "u2", FullName: "Binh Tran"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Binh Tran declined your connection request", n.Message)
	assert.Equal(t, []string{domain.EventNewNotification}, h.pusher.events("u1"))
}

func TestNotify_LocalizedText(t *testing.T) {
	h := newHarness(t)
	notifier := domain.NewNotificationService(h.repo, h.pusher, h.presence, nil, zap.NewNop(),
		domain.Options{Catalog: i18n.New("vi")})

	n, err := notifier.Notify(context.Background(), domain.NotifyParams{
		UserID: "u1",
		Type:   domain.NotificationConnectionAccepted,
		From:   &domain.UserProfile{ID: "u2", FullName: "Binh Tran"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Binh Tran đã chấp nhận lời mời kết nối của bạn", n.Message)
}

func TestNotify_UnknownType(t *testing.T) {
	h := newHarness(t)

	_, err := h.notifier.Notify(context.Background(), domain.NotifyParams{UserID: "u1", Type: "party_invite"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReadReceipts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.request(t, "u1", "u2", "p1", "")
	h.request(t, "u3", "u2", "p1", "")

	count, err := h.notifier.UnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	notifs := h.notifications(t, "u2")
	n, err := h.notifier.MarkRead(ctx, "u2", notifs[0].ID)
	require.NoError(t, err)
	assert.True(t, n.IsRead)

	// repeating the receipt is harmless
	_, err = h.notifier.MarkRead(ctx, "u2", notifs[0].ID)
	require.NoError(t, err)

	_, err = h.notifier.MarkRead(ctx, "u1", notifs[1].ID)
	assert.ErrorIs(t, err, domain.ErrNotificationNotFound)

	unread, err := h.notifier.GetNotifications(ctx, "u2", true, 0, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, notifs[1].ID, unread[0].ID)

	marked, err := h.notifier.MarkAllRead(ctx, "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, marked)

	count, err = h.notifier.UnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRegisterDeviceToken_Validation(t *testing.T) {
	h := newHarness(t)

	err := h.notifier.RegisterDeviceToken(context.Background(), "u1", "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTokenSweeper(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.notifier.RegisterDeviceToken(ctx, "u1", "old"))

	// the harness clock moves one second per reading, so a zero max age
	// makes every stored token stale on the first sweep
	h.notifier.StartTokenSweeper(ctx, 10*time.Millisecond, 0)

	require.Eventually(t, func() bool {
		tokens, err := h.repo.GetDeviceTokens(ctx, "u1")
		return err == nil && len(tokens) == 0
	}, time.Second, 10*time.Millisecond)
}
