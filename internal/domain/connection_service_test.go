package domain_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomly/backend/internal/domain"
)

func TestCreateRequest_PersistsAndNotifiesReceiver(t *testing.T) {
	h := newHarness(t)
	h.presence.set("u2", true)

	req := h.request(t, "u1", "u2", "p1", "Hi")

	assert.Equal(t, domain.ConnectionStatusPending, req.Status)
	require.NotNil(t, req.RejectionCount)
	assert.Equal(t, 0, *req.RejectionCount)
	assert.Equal(t, "Hi", req.Message)

	notifs := h.notifications(t, "u2")
	require.Len(t, notifs, 1)
	assert.Equal(t, domain.NotificationConnectionRequest, notifs[0].Type)
	assert.Equal(t, "u2", notifs[0].UserID)
	assert.False(t, notifs[0].IsRead)
	assert.Equal(t, domain.EntityRef{Type: "connection", ID: req.ID}, notifs[0].RelatedEntity)
	require.NotNil(t, notifs[0].FromUser)
	assert.Equal(t, "An Nguyen", notifs[0].FromUser.FullName)
	assert.Equal(t, "An Nguyen sent you a roommate connection request", notifs[0].Message)

	assert.Equal(t, []string{domain.EventNewConnectionRequest, domain.EventNewNotification}, h.pusher.events("u2"))
	assert.Empty(t, h.pusher.events("u1"))
}

func TestCreateRequest_OfflineReceiverStillStored(t *testing.T) {
	h := newHarness(t)

	h.request(t, "u1", "u2", "p1", "Hi")

	assert.Len(t, h.notifications(t, "u2"), 1)
}

func TestCreateRequest_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := map[string]domain.SendRequestParams{
		"missing sender":   {ReceiverID: "u2", PostID: "p1"},
		"missing receiver": {SenderID: "u1", PostID: "p1"},
		"missing post":     {SenderID: "u1", ReceiverID: "u2"},
		"self request":     {SenderID: "u1", ReceiverID: "u1", PostID: "p1"},
		"blank ids":        {SenderID: "  ", ReceiverID: "u2", PostID: "p1"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.conns.CreateRequest(ctx, p)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, h.notifications(t, "u2"))
}

func TestCreateRequest_UnknownReferences(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.conns.CreateRequest(ctx, domain.SendRequestParams{SenderID: "u1", ReceiverID: "ghost", PostID: "p1"})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = h.conns.CreateRequest(ctx, domain.SendRequestParams{SenderID: "u1", ReceiverID: "u2", PostID: "nope"})
	assert.ErrorIs(t, err, domain.ErrPostNotFound)

	conns, err := h.conns.ListConnections(ctx, "u1", domain.ConnectionFilter{})
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestCreateRequest_Duplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.request(t, "u1", "u2", "p1", "Hi")

	_, err := h.conns.CreateRequest(ctx, domain.SendRequestParams{SenderID: "u1", ReceiverID: "u2", PostID: "p1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)

	// a different post is a different request
	h.request(t, "u1", "u2", "p2", "")

	// reverse direction pending requests coexist
	reverse := h.request(t, "u2", "u1", "p1", "Hey")
	assert.NotEqual(t, first.ID, reverse.ID)

	_, err = h.conns.Respond(ctx, "u2", first.ID, true)
	require.NoError(t, err)

	// an accepted request blocks both directions
	_, err = h.conns.CreateRequest(ctx, domain.SendRequestParams{SenderID: "u1", ReceiverID: "u2", PostID: "p1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
}

func TestCreateRequest_AfterCancelOrRejectIsAllowed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r1 := h.request(t, "u1", "u2", "p1", "")
	_, err := h.conns.Cancel(ctx, "u1", r1.ID)
	require.NoError(t, err)

	r2 := h.request(t, "u1", "u2", "p1", "")
	_, err = h.conns.Respond(ctx, "u2", r2.ID, false)
	require.NoError(t, err)

	h.request(t, "u1", "u2", "p1", "")
}

func TestRespond_Accept(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r1 := h.request(t, "u1", "u2", "p1", "Hi")
	h.pusher.reset()

	updated, err := h.conns.Respond(ctx, "u2", r1.ID, true)
	require.NoError(t, err)

	assert.Equal(t, domain.ConnectionStatusAccepted, updated.Status)
	assert.Nil(t, updated.RejectionCount)
	assert.True(t, updated.UpdatedAt.After(r1.UpdatedAt))

	msgs, err := h.chat.History(ctx, "u1", r1.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, r1.ID, msgs[0].ConversationID)
	assert.Equal(t, "u1", msgs[0].SenderID)
	assert.Equal(t, "Hi", msgs[0].Content)

	notifs := h.notifications(t, "u1")
	require.Len(t, notifs, 1)
	assert.Equal(t, domain.NotificationConnectionAccepted, notifs[0].Type)
	assert.Equal(t, "Binh Tran accepted your connection request", notifs[0].Message)
	assert.Equal(t, "u2", notifs[0].FromUser.ID)

	assert.Equal(t, []string{domain.EventConnectionAccepted, domain.EventNewNotification}, h.pusher.events("u1"))
	assert.Equal(t, []string{domain.EventConnectionAccepted}, h.pusher.events("u2"))
}

func TestRespond_AcceptSeedsRequestTextVerbatim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	text := "Hi!\n  - non-smoker\n  - moving in May\n"
	r1 := h.request(t, "u1", "u2", "p1", text)
	assert.Equal(t, text, r1.Message)

	_, err := h.conns.Respond(ctx, "u2", r1.ID, true)
	require.NoError(t, err)

	msgs, err := h.chat.History(ctx, "u1", r1.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, text, msgs[0].Content)
}

func TestRespond_AcceptWithoutMessageSeedsNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r1 := h.request(t, "u1", "u2", "p1", "   ")
	_, err := h.conns.Respond(ctx, "u2", r1.ID, true)
	require.NoError(t, err)

	msgs, err := h.chat.History(ctx, "u2", r1.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRespond_Reject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r1 := h.request(t, "u1", "u2", "p1", "Hi")
	updated, err := h.conns.Respond(ctx, "u2", r1.ID, false)
	require.NoError(t, err)

	assert.Equal(t, domain.ConnectionStatusRejected, updated.Status)
	require.NotNil(t, updated.RejectionCount)
	assert.Equal(t, 1, *updated.RejectionCount)

	notifs := h.notifications(t, "u1")
	require.Len(t, notifs, 1)
	assert.Equal(t, domain.NotificationConnectionRejected, notifs[0].Type)

	_, err = h.chat.History(ctx, "u1", r1.ID, 0, 0)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestRespond_RejectionLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		r := h.request(t, "u1", "u2", "p1", "please")
		updated, err := h.conns.Respond(ctx, "u2", r.ID, false)
		require.NoError(t, err)
		assert.Equal(t, i, *updated.RejectionCount)
	}

	_, err := h.conns.CreateRequest(ctx, domain.SendRequestParams{SenderID: "u1", ReceiverID: "u2", PostID: "p1"})
	assert.ErrorIs(t, err, domain.ErrRejectionLimit)

	// other posts and the reverse direction are unaffected
	h.request(t, "u1", "u2", "p2", "")
	h.request(t, "u2", "u1", "p1", "")
}

func TestRespond_TerminalRequestIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r1 := h.request(t, "u1", "u2", "p1", "Hi")
	_, err := h.conns.Respond(ctx, "u2", r1.ID, true)
	require.NoError(t, err)
	h.pusher.reset()

	_, err = h.conns.Respond(ctx, "u2", r1.ID, true)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.conns.Respond(ctx, "u2", r1.ID, false)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.Len(t, h.notifications(t, "u1"), 1)
	assert.Empty(t, h.pusher.events("u1"))

	msgs, err := h.chat.History(ctx, "u1", r1.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestRespond_Permissions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r1 := h.request(t, "u1", "u2", "p1", "")

	_, err := h.conns.Respond(ctx, "u1", r1.ID, true)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.conns.Respond(ctx, "u3", r1.ID, true)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.conns.Respond(ctx, "u2", "missing", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.conns.Respond(ctx, "u2", "", true)
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := h.conns.GetConnection(ctx, "u2", r1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionStatusPending, got.Status)
}

func TestRespond_ConcurrentAnswersHaveOneWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r1 := h.request(t, "u1", "u2", "p1", "Hi")

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(accept bool) {
			defer wg.Done()
			_, err := h.conns.Respond(ctx, "u2", r1.ID, accept)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		}(i%2 == 0)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Len(t, h.notifications(t, "u1"), 1)
}

func TestCreateRequest_ConcurrentDuplicatesHaveOneWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.conns.CreateRequest(ctx, domain.SendRequestParams{SenderID: "u1", ReceiverID: "u2", PostID: "p1"})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, h.notifications(t, "u2"), 1)
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r1 := h.request(t, "u1", "u2", "p1", "Hi")

	_, err := h.conns.Cancel(ctx, "u2", r1.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	h.pusher.reset()
	updated, err := h.conns.Cancel(ctx, "u1", r1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionStatusCancelled, updated.Status)

	notifs := h.notifications(t, "u2")
	require.Len(t, notifs, 2)
	assert.Equal(t, domain.NotificationConnectionCancelled, notifs[0].Type)
	assert.Equal(t, []string{domain.EventConnectionCancelled, domain.EventNewNotification}, h.pusher.events("u2"))
	assert.Equal(t, []string{domain.EventConnectionCancelled}, h.pusher.events("u1"))

	_, err = h.conns.Cancel(ctx, "u1", r1.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.conns.Respond(ctx, "u2", r1.ID, true)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCheckMutualStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	mutual := func(a, b string) bool {
		ok, err := h.conns.CheckMutualStatus(ctx, a, b)
		require.NoError(t, err)
		return ok
	}

	r1 := h.request(t, "u1", "u2", "p1", "")
	r2 := h.request(t, "u1", "u2", "p2", "")
	assert.False(t, mutual("u1", "u2"))

	_, err := h.conns.Respond(ctx, "u2", r1.ID, false)
	require.NoError(t, err)
	_, err = h.conns.Cancel(ctx, "u1", r2.ID)
	require.NoError(t, err)
	assert.False(t, mutual("u1", "u2"))

	r3 := h.request(t, "u2", "u1", "p2", "")
	_, err = h.conns.Respond(ctx, "u1", r3.ID, true)
	require.NoError(t, err)

	assert.True(t, mutual("u1", "u2"))
	assert.True(t, mutual("u2", "u1"))
	assert.False(t, mutual("u1", "u3"))

	_, err = h.conns.CheckMutualStatus(ctx, "", "u1")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestListConnections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sent := h.request(t, "u1", "u2", "p1", "")
	received := h.request(t, "u3", "u1", "p2", "")
	h.request(t, "u3", "u2", "p1", "")

	all, err := h.conns.ListConnections(ctx, "u1", domain.ConnectionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, received.ID, all[0].ID, "newest first")

	out, err := h.conns.ListConnections(ctx, "u1", domain.ConnectionFilter{Role: domain.ConnectionRoleSent})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, sent.ID, out[0].ID)

	in, err := h.conns.ListConnections(ctx, "u1", domain.ConnectionFilter{Role: domain.ConnectionRoleReceived, Status: domain.ConnectionStatusPending})
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, received.ID, in[0].ID)

	_, err = h.conns.ListConnections(ctx, "u1", domain.ConnectionFilter{Role: "both"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.conns.ListConnections(ctx, "u1", domain.ConnectionFilter{Status: "archived"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.conns.GetConnection(ctx, "u1", h.request(t, "u2", "u3", "p2", "").ID)
	assert.ErrorIs(t, err, domain.ErrConnectionNotFound)
}

func TestCreateRequest_StoreTimeout(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := h.conns.CreateRequest(ctx, domain.SendRequestParams{SenderID: "u1", ReceiverID: "u2", PostID: "p1"})
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Empty(t, h.pusher.events("u2"))
}
