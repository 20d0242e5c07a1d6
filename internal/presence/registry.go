// Package presence holds the connection registry: the only record of which
// connections are online and under what username.
package presence

import (
	"sync"
	"time"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// placeholderLen is how many characters of the connection id go into a
// generated username.
const placeholderLen = 5

type UserRecord struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

// Registry maps live connection ids to user records. Records are kept in the
// order their connection first registered.
type Registry struct {
	mu    sync.RWMutex
	users map[string]UserRecord
	order []string
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]UserRecord),
		now:   time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// PlaceholderName is the username assigned when a client registers without one.
func PlaceholderName(connID string) string {
	if len(connID) > placeholderLen {
		connID = connID[:placeholderLen]
	}
	return "User_" + connID
}

// Register stores an online record for connID, replacing any earlier record
// for the same connection in place.
func (r *Registry) Register(connID, username string) UserRecord {
	if username == "" {
		username = PlaceholderName(connID)
	}
	rec := UserRecord{
		ID:       connID,
		Username: username,
		Status:   StatusOnline,
		LastSeen: r.now(),
	}

	r.mu.Lock()
	if _, ok := r.users[connID]; !ok {
		r.order = append(r.order, connID)
	}
	r.users[connID] = rec
	r.mu.Unlock()
	return rec
}

func (r *Registry) Lookup(connID string) (UserRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.users[connID]
	return rec, ok
}

// Remove deletes the record for connID. The returned copy is marked offline
// with lastSeen set to the removal time; nothing of it stays in the registry.
func (r *Registry) Remove(connID string) (UserRecord, bool) {
	r.mu.Lock()
	rec, ok := r.users[connID]
	if ok {
		delete(r.users, connID)
		for i, id := range r.order {
			if id == connID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return UserRecord{}, false
	}
	rec.Status = StatusOffline
	rec.LastSeen = r.now()
	return rec, true
}

// Snapshot returns every record in registration order.
func (r *Registry) Snapshot() []UserRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]UserRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.users[id])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
