package domain_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/roomly/backend/internal/domain"
	"github.com/roomly/backend/internal/repository"
)

type pushed struct {
	Target string // "user" or "room"
	ID     string
	Event  string
	Body   interface{}
}

type fakePusher struct {
	mu     sync.Mutex
	pushes []pushed
}

func (p *fakePusher) PushToUser(_ context.Context, userID, event string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, pushed{Target: "user", ID: userID, Event: event, Body: payload})
	return nil
}

func (p *fakePusher) PushToRoom(_ context.Context, roomID, event string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, pushed{Target: "room", ID: roomID, Event: event, Body: payload})
	return nil
}

// events returns the events pushed to a user, in order
func (p *fakePusher) events(userID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.pushes {
		if e.Target == "user" && e.ID == userID {
			out = append(out, e.Event)
		}
	}
	return out
}

func (p *fakePusher) roomEvents(roomID string) []pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pushed
	for _, e := range p.pushes {
		if e.Target == "room" && e.ID == roomID {
			out = append(out, e)
		}
	}
	return out
}

func (p *fakePusher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = nil
}

type fakePresence struct {
	mu     sync.Mutex
	online map[string]bool
}

func (p *fakePresence) IsOnline(_ context.Context, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID], nil
}

func (p *fakePresence) set(userID string, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.online == nil {
		p.online = map[string]bool{}
	}
	p.online[userID] = online
}

type sentPush struct {
	Token, Title, Body string
	Data               map[string]string
}

type fakePushSender struct {
	mu      sync.Mutex
	sent    []sentPush
	invalid map[string]bool
}

func (f *fakePushSender) Send(_ context.Context, token, title, body string, data map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentPush{Token: token, Title: title, Body: body, Data: data})
	if f.invalid[token] {
		return domain.ErrInvalidPushToken
	}
	return nil
}

type harness struct {
	repo     *repository.MemoryRepository
	pusher   *fakePusher
	presence *fakePresence
	sender   *fakePushSender
	notifier *domain.NotificationService
	conns    *domain.ConnectionService
	chat     *domain.ChatService
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		repo:     repository.NewMemoryRepository(),
		pusher:   &fakePusher{},
		presence: &fakePresence{},
		sender:   &fakePushSender{invalid: map[string]bool{}},
		now:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		h.now = h.now.Add(time.Second)
		return h.now
	}
	h.repo.SetClock(clock)

	opts := domain.Options{Timeout: time.Second, Clock: clock}
	logger := zap.NewNop()
	h.notifier = domain.NewNotificationService(h.repo, h.pusher, h.presence, h.sender, logger, opts)
	h.conns = domain.NewConnectionService(h.repo, h.notifier, h.pusher, logger, opts)
	h.chat = domain.NewChatService(h.repo, h.pusher, logger, opts)

	for _, u := range []domain.UserProfile{
		{ID: "u1", FullName: "An Nguyen", Avatar: "https://cdn.example/u1.png"},
		{ID: "u2", FullName: "Binh Tran"},
		{ID: "u3", FullName: "Chi Le"},
	} {
		h.repo.UpsertUser(u)
	}
	h.repo.UpsertPost(domain.Post{ID: "p1", OwnerID: "u2", Title: "Room near campus"})
	h.repo.UpsertPost(domain.Post{ID: "p2", OwnerID: "u2", Title: "Shared flat"})
	return h
}

func (h *harness) request(t *testing.T, sender, receiver, post, message string) *domain.ConnectionRequest {
	t.Helper()
	req, err := h.conns.CreateRequest(context.Background(), domain.SendRequestParams{
		SenderID:   sender,
		ReceiverID: receiver,
		PostID:     post,
		Message:    message,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func (h *harness) notifications(t *testing.T, userID string) []*domain.Notification {
	t.Helper()
	notifs, err := h.notifier.GetNotifications(context.Background(), userID, false, 100, 0)
	if err != nil {
		t.Fatalf("get notifications: %v", err)
	}
	return notifs
}
