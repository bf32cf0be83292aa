// Package presence tracks which users have a live websocket session, either
// within this process or across relay nodes through Redis.
package presence

import (
	"context"
	"sync"
)

// Tracker records session liveness per user
type Tracker interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
	// Online marks a session live, or refreshes it
	Online(ctx context.Context, userID, sessionID string) error
	Offline(ctx context.Context, userID, sessionID string) error
}

// Local tracks presence for a single relay process
type Local struct {
	mu     sync.RWMutex
	byUser map[string]map[string]struct{}
}

func NewLocal() *Local {
	return &Local{byUser: make(map[string]map[string]struct{})}
}

func (l *Local) IsOnline(_ context.Context, userID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byUser[userID]) > 0, nil
}

func (l *Local) Online(_ context.Context, userID, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	sessions, ok := l.byUser[userID]
	if !ok {
		sessions = make(map[string]struct{})
		l.byUser[userID] = sessions
	}
	sessions[sessionID] = struct{}{}
	return nil
}

func (l *Local) Offline(_ context.Context, userID, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sessions, ok := l.byUser[userID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(l.byUser, userID)
		}
	}
	return nil
}
