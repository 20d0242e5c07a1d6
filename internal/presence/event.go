package presence

import "time"

type EventKind string

const (
	EventJoin  EventKind = "join"
	EventLeave EventKind = "leave"
)

// Event is a connection lifecycle transition, emitted after the registry has
// been updated.
type Event struct {
	Kind     EventKind
	ConnID   string
	Username string
	At       time.Time
}
