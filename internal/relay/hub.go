package relay

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Mailbox is the bounded outbound queue of one connection. The transport
// drains C() until it is closed, and takes TakeLatest() whenever Latest()
// fires. Every event goes through Admit before it is written.
type Mailbox struct {
	connID  string
	ch      chan Outbound
	dropped atomic.Uint64

	mu      sync.Mutex
	latest  *Outbound // newest user list that did not fit in ch
	ready   chan struct{}
	sentSeq uint64
}

func newMailbox(connID string, size int) *Mailbox {
	return &Mailbox{
		connID: connID,
		ch:     make(chan Outbound, size),
		ready:  make(chan struct{}, 1),
	}
}

func (m *Mailbox) C() <-chan Outbound { return m.ch }

// Latest fires when a user list overflowed the queue and waits in TakeLatest.
func (m *Mailbox) Latest() <-chan struct{} { return m.ready }

// TakeLatest returns the overflowed user list, if one is still waiting.
func (m *Mailbox) TakeLatest() (Outbound, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.latest == nil {
		return Outbound{}, false
	}
	ev := *m.latest
	m.latest = nil
	return ev, true
}

// Admit reports whether ev should be written. A user list older than one
// already admitted is stale and skipped.
func (m *Mailbox) Admit(ev Outbound) bool {
	if ev.seq == 0 {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.seq <= m.sentSeq {
		return false
	}
	m.sentSeq = ev.seq
	return true
}

// Dropped counts events discarded because the queue was full.
func (m *Mailbox) Dropped() uint64 { return m.dropped.Load() }

// push never blocks; a full queue loses the event.
func (m *Mailbox) push(ev Outbound) bool {
	select {
	case m.ch <- ev:
		return true
	default:
		m.dropped.Add(1)
		zap.L().Warn("relay.drop",
			zap.String("conn", m.connID),
			zap.String("event", ev.Event),
		)
		return false
	}
}

// pushLatest queues a user list. When the queue is full the list replaces any
// older overflowed one, so the newest list always reaches the connection.
func (m *Mailbox) pushLatest(ev Outbound) {
	select {
	case m.ch <- ev:
		m.mu.Lock()
		m.latest = nil
		m.mu.Unlock()
		return
	default:
	}

	m.mu.Lock()
	m.latest = &ev
	m.mu.Unlock()
	select {
	case m.ready <- struct{}{}:
	default:
	}
	zap.L().Debug("relay.latest_pending",
		zap.String("conn", m.connID),
		zap.String("event", ev.Event),
	)
}

// Hub keeps one mailbox per live connection.
type Hub struct {
	mu    sync.RWMutex
	boxes map[string]*Mailbox
	size  int
}

func NewHub(size int) *Hub {
	if size < 1 {
		size = 1
	}
	return &Hub{boxes: make(map[string]*Mailbox), size: size}
}

// Attach creates the mailbox for connID, or returns the existing one.
func (h *Hub) Attach(connID string) *Mailbox {
	h.mu.Lock()
	defer h.mu.Unlock()

	if mb, ok := h.boxes[connID]; ok {
		return mb
	}
	mb := newMailbox(connID, h.size)
	h.boxes[connID] = mb
	return mb
}

// Detach removes and closes the mailbox. Closing under the write lock keeps
// it from racing a concurrent push.
func (h *Hub) Detach(connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	mb, ok := h.boxes[connID]
	if !ok {
		return false
	}
	delete(h.boxes, connID)
	close(mb.ch)
	return true
}

func (h *Hub) Has(connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.boxes[connID]
	return ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.boxes)
}

// Deliver queues ev for connID. Unknown connections are ignored.
func (h *Hub) Deliver(connID string, ev Outbound) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	mb, ok := h.boxes[connID]
	if !ok {
		return false
	}
	return mb.push(ev)
}

// DeliverMany queues ev for each listed connection and returns how many
// accepted it.
func (h *Hub) DeliverMany(connIDs []string, ev Outbound) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, id := range connIDs {
		if mb, ok := h.boxes[id]; ok && mb.push(ev) {
			n++
		}
	}
	return n
}

// DeliverAll queues ev for every connection except `except` (pass "" to
// include everyone).
func (h *Hub) DeliverAll(ev Outbound, except string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for id, mb := range h.boxes {
		if id == except {
			continue
		}
		if mb.push(ev) {
			n++
		}
	}
	return n
}

// DeliverLatest queues a user list for every connection. A connection whose
// queue is full keeps only the newest list until its writer catches up.
func (h *Hub) DeliverLatest(ev Outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, mb := range h.boxes {
		mb.pushLatest(ev)
	}
}
