package relay

import (
	"sort"
	"sync"
)

// Registry binds user ids to their live session ids. A user may hold any
// number of sessions (tabs, devices); a session belongs to at most one user.
type Registry struct {
	mu        sync.RWMutex
	byUser    map[string]map[string]struct{}
	bySession map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:    make(map[string]map[string]struct{}),
		bySession: make(map[string]string),
	}
}

// Register binds sessionID to userID. A session already bound to another
// user is moved; the previous user id is returned in that case.
func (r *Registry) Register(userID, sessionID string) (previous string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.bySession[sessionID]; ok {
		if prev == userID {
			return ""
		}
		r.removeLocked(prev, sessionID)
		previous = prev
	}

	sessions, ok := r.byUser[userID]
	if !ok {
		sessions = make(map[string]struct{})
		r.byUser[userID] = sessions
	}
	sessions[sessionID] = struct{}{}
	r.bySession[sessionID] = userID
	return previous
}

// Lookup returns the user's sessions in a stable order. An empty result means
// the user cannot be reached right now.
func (r *Registry) Lookup(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.byUser[userID]
	if len(sessions) == 0 {
		return nil
	}
	out := make([]string, 0, len(sessions))
	for id := range sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// UserOf returns the user a session is bound to
func (r *Registry) UserOf(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.bySession[sessionID]
	return userID, ok
}

// Unregister drops a session using its recorded user id. It reports the user
// the session belonged to, if any.
func (r *Registry) Unregister(sessionID string) (userID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.bySession[sessionID]
	if !ok {
		return "", false
	}
	r.removeLocked(userID, sessionID)
	return userID, true
}

// Users returns the number of users with at least one session
func (r *Registry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

func (r *Registry) removeLocked(userID, sessionID string) {
	delete(r.bySession, sessionID)
	if sessions, ok := r.byUser[userID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(r.byUser, userID)
		}
	}
}
