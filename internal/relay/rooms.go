package relay

import (
	"sort"
	"sync"
)

// Rooms tracks which sessions listen to which conversation. A room id is the
// id of the accepted connection request backing the conversation.
type Rooms struct {
	mu        sync.RWMutex
	members   map[string]map[string]struct{} // room -> sessions
	bySession map[string]map[string]struct{} // session -> rooms
}

func NewRooms() *Rooms {
	return &Rooms{
		members:   make(map[string]map[string]struct{}),
		bySession: make(map[string]map[string]struct{}),
	}
}

func (r *Rooms) Join(sessionID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	add(r.members, roomID, sessionID)
	add(r.bySession, sessionID, roomID)
}

func (r *Rooms) Leave(sessionID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	remove(r.members, roomID, sessionID)
	remove(r.bySession, sessionID, roomID)
}

// LeaveAll removes a session from every room it joined and returns those rooms
func (r *Rooms) LeaveAll(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := keys(r.bySession[sessionID])
	for _, roomID := range rooms {
		remove(r.members, roomID, sessionID)
	}
	delete(r.bySession, sessionID)
	return rooms
}

// Members returns the sessions joined to a room
func (r *Rooms) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.members[roomID])
}

// RoomsOf returns the rooms a session joined
func (r *Rooms) RoomsOf(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.bySession[sessionID])
}

func add(m map[string]map[string]struct{}, k, v string) {
	set, ok := m[k]
	if !ok {
		set = make(map[string]struct{})
		m[k] = set
	}
	set[v] = struct{}{}
}

func remove(m map[string]map[string]struct{}, k, v string) {
	if set, ok := m[k]; ok {
		delete(set, v)
		if len(set) == 0 {
			delete(m, k)
		}
	}
}

func keys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
