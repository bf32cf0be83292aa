package relayclient

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// State merges socket pushes and REST snapshots. Every Apply call is safe to
// repeat and to receive out of order.
type State struct {
	mu            sync.RWMutex
	connections   map[string]Connection
	messages      map[string][]Message
	seenMessages  map[string]struct{}
	notifications map[string]Notification
	failures      []Failure
}

func NewState() *State {
	return &State{
		connections:   make(map[string]Connection),
		messages:      make(map[string][]Message),
		seenMessages:  make(map[string]struct{}),
		notifications: make(map[string]Notification),
	}
}

// ApplyConnection merges one request and reports whether the state changed.
// A terminal status always beats pending; otherwise the newer updatedAt wins.
func (s *State) ApplyConnection(c Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyConnection(c)
}

func (s *State) applyConnection(c Connection) bool {
	cur, ok := s.connections[c.ID]
	if ok {
		switch {
		case cur.Terminal() && !c.Terminal():
			return false
		case !cur.Terminal() && c.Terminal():
		case !c.UpdatedAt.After(cur.UpdatedAt):
			return false
		}
	}
	s.connections[c.ID] = c
	return true
}

// ApplyMessage adds a message once, keeping the conversation ordered by
// (timestamp, id)
func (s *State) ApplyMessage(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyMessage(m)
}

func (s *State) applyMessage(m Message) bool {
	if _, ok := s.seenMessages[m.ID]; ok {
		return false
	}
	s.seenMessages[m.ID] = struct{}{}

	msgs := s.messages[m.ConversationID]
	i := sort.Search(len(msgs), func(i int) bool {
		if msgs[i].Timestamp.Equal(m.Timestamp) {
			return msgs[i].ID > m.ID
		}
		return msgs[i].Timestamp.After(m.Timestamp)
	})
	msgs = append(msgs, Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = m
	s.messages[m.ConversationID] = msgs
	return true
}

// ApplyNotification merges one notification. A notification read locally
// stays read even if a stale unread copy arrives later.
func (s *State) ApplyNotification(n Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyNotification(n)
}

func (s *State) applyNotification(n Notification) bool {
	cur, ok := s.notifications[n.ID]
	if ok {
		// only isRead ever changes after creation
		if cur.IsRead || !n.IsRead {
			return false
		}
	}
	s.notifications[n.ID] = n
	return true
}

// MarkRead records a local read receipt
func (s *State) MarkRead(notificationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[notificationID]
	if !ok || n.IsRead {
		return false
	}
	n.IsRead = true
	s.notifications[notificationID] = n
	return true
}

// Snapshot is a REST-fetched view of the user's data
type Snapshot struct {
	Connections   []Connection
	Messages      []Message
	Notifications []Notification
}

// ApplySnapshot merges a snapshot under the same rules as single pushes
func (s *State) ApplySnapshot(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range snap.Connections {
		s.applyConnection(c)
	}
	for _, m := range snap.Messages {
		s.applyMessage(m)
	}
	for _, n := range snap.Notifications {
		s.applyNotification(n)
	}
}

// Apply decodes a frame from the relay and merges it. Frames that carry no
// state are ignored; failures are kept for Failures.
func (s *State) Apply(f Frame) (bool, error) {
	switch f.Type {
	case EventNewConnectionRequest, EventConnectionRequestSent,
		EventConnectionAccepted, EventConnectionRejected, EventConnectionCancelled:
		var c Connection
		if err := json.Unmarshal(f.Payload, &c); err != nil {
			return false, fmt.Errorf("decode %s: %w", f.Type, err)
		}
		return s.ApplyConnection(c), nil

	case EventReceiveMessage:
		var m Message
		if err := json.Unmarshal(f.Payload, &m); err != nil {
			return false, fmt.Errorf("decode %s: %w", f.Type, err)
		}
		return s.ApplyMessage(m), nil

	case EventNewNotification:
		var n Notification
		if err := json.Unmarshal(f.Payload, &n); err != nil {
			return false, fmt.Errorf("decode %s: %w", f.Type, err)
		}
		return s.ApplyNotification(n), nil

	case EventSendMessageFailed, EventConnectionRequestFailed, EventUpdateConnectionStatusFailed,
		EventRegisterUserFailed, EventJoinRoomFailed, EventRateLimited, EventInvalidFrame:
		var fl Failure
		if err := json.Unmarshal(f.Payload, &fl); err != nil {
			return false, fmt.Errorf("decode %s: %w", f.Type, err)
		}
		s.mu.Lock()
		s.failures = append(s.failures, fl)
		s.mu.Unlock()
		return true, nil
	}
	return false, nil
}

func (s *State) Connection(id string) (Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[id]
	return c, ok
}

// Connections returns every known request, newest first
func (s *State) Connections() []Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Connection, 0, len(s.connections))
	for _, c := range s.connections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Conversations returns the ids of accepted requests
func (s *State) Conversations() []string {
	var ids []string
	for _, c := range s.Connections() {
		if c.Status == StatusAccepted {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func (s *State) Messages(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages[conversationID]...)
}

// Notifications returns every notification, newest first
func (s *State) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *State) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, notif := range s.notifications {
		if !notif.IsRead {
			n++
		}
	}
	return n
}

// Failures returns the failure events received so far
func (s *State) Failures() []Failure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Failure(nil), s.failures...)
}
