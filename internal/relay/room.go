package relay

import (
	"sort"
	"sync"
)

type RoomInfo struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Rooms tracks named groups of connections. A room exists while it has at
// least one member.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]map[string]struct{})}
}

// Join adds connID to the room, creating it if needed. Joining twice is a
// no-op. The returned member list includes connID.
func (r *Rooms) Join(name, connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[name]
	if !ok {
		set = make(map[string]struct{})
		r.rooms[name] = set
	}
	set[connID] = struct{}{}
	return members(set)
}

func (r *Rooms) Members(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return members(r.rooms[name])
}

// LeaveAll drops connID from every room it belongs to and deletes rooms left
// empty. It returns the names of the rooms it left.
func (r *Rooms) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for name, set := range r.rooms {
		if _, ok := set[connID]; !ok {
			continue
		}
		delete(set, connID)
		left = append(left, name)
		if len(set) == 0 {
			delete(r.rooms, name)
		}
	}
	sort.Strings(left)
	return left
}

// List reports every room and its size, sorted by name.
func (r *Rooms) List() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RoomInfo, 0, len(r.rooms))
	for name, set := range r.rooms {
		out = append(out, RoomInfo{Name: name, Members: len(set)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Rooms) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func members(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
