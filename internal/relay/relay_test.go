package relay

import (
	"fmt"
	"sync"
	"testing"

	"chatrelay/internal/presence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain empties a mailbox without blocking, the way the socket writer does:
// queued events first, then any overflowed user list.
func drain(mb *Mailbox) []Outbound {
	var out []Outbound
	for {
		select {
		case ev, ok := <-mb.C():
			if !ok {
				return out
			}
			if mb.Admit(ev) {
				out = append(out, ev)
			}
		default:
			if ev, ok := mb.TakeLatest(); ok && mb.Admit(ev) {
				out = append(out, ev)
			}
			return out
		}
	}
}

func eventsNamed(evs []Outbound, name string) []Outbound {
	var out []Outbound
	for _, ev := range evs {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func lastUserList(t *testing.T, evs []Outbound) []presence.UserRecord {
	t.Helper()
	lists := eventsNamed(evs, EventUpdateUserList)
	require.NotEmpty(t, lists, "no update_user_list received")
	return lists[len(lists)-1].Body.([]presence.UserRecord)
}

func ids(users []presence.UserRecord) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []presence.Event
}

func (s *recordingSink) Publish(ev presence.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func TestRegisterScenario(t *testing.T) {
	r := New(16, nil)
	a := r.Connect("A")
	b := r.Connect("B")

	r.Register("A", "alice")
	evA := drain(a)
	require.Len(t, evA, 2)
	assert.Equal(t, EventUserRegistered, evA[0].Event)
	rec := evA[0].Body.(presence.UserRecord)
	assert.Equal(t, "A", rec.ID)
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, presence.StatusOnline, rec.Status)
	assert.Equal(t, []string{"A"}, ids(lastUserList(t, evA)))

	// B is connected but unregistered: it still sees presence updates.
	evB := drain(b)
	assert.Equal(t, []string{"A"}, ids(lastUserList(t, evB)))
	assert.Len(t, eventsNamed(evB, EventUserConnected), 1)

	r.Register("B", "bob")
	evA = drain(a)
	connected := eventsNamed(evA, EventUserConnected)
	require.Len(t, connected, 1)
	assert.Equal(t, "bob", connected[0].Body.(presence.UserRecord).Username)
	assert.Equal(t, []string{"A", "B"}, ids(lastUserList(t, evA)))

	evB = drain(b)
	assert.Empty(t, eventsNamed(evB, EventUserConnected), "registrant is not told about itself")
	assert.Len(t, eventsNamed(evB, EventUserRegistered), 1)
}

func TestDirectMessage(t *testing.T) {
	r := New(16, nil)
	a, b, c := r.Connect("A"), r.Connect("B"), r.Connect("C")
	r.Register("A", "alice")
	r.Register("B", "bob")
	drain(a)
	drain(b)
	drain(c)

	msg := r.SendDirect("A", "B", "hi", "")

	evB := drain(b)
	require.Len(t, evB, 1)
	assert.Equal(t, EventReceiveMessageByID, evB[0].Event)
	got := evB[0].Body.(Message)
	assert.Equal(t, "alice", got.Sender)
	assert.Equal(t, "B", got.Receiver)
	assert.Equal(t, "hi", got.Message)
	assert.Empty(t, got.RoomName)

	evA := drain(a)
	require.Len(t, evA, 1)
	assert.Equal(t, EventMessageSent, evA[0].Event)
	assert.Equal(t, msg, evA[0].Body.(Message))
	assert.Equal(t, got, msg)

	assert.Empty(t, drain(c))
}

func TestDirectMessageSenderResolution(t *testing.T) {
	r := New(16, nil)
	a := r.Connect("A")
	r.Connect("B")
	r.Register("A", "alice")
	drain(a)

	assert.Equal(t, "override", r.SendDirect("A", "B", "x", "override").Sender)
	assert.Equal(t, "alice", r.SendDirect("A", "B", "x", "").Sender)
	assert.Equal(t, UnknownSender, r.SendDirect("B", "A", "x", "").Sender)
}

func TestDirectMessageToGoneRecipientStillAcks(t *testing.T) {
	r := New(16, nil)
	a := r.Connect("A")
	r.Connect("B")
	r.Register("A", "alice")
	r.Register("B", "bob")
	r.Disconnect("B")
	drain(a)

	msg := r.SendDirect("A", "B", "are you there?", "")

	evA := drain(a)
	require.Len(t, evA, 1)
	assert.Equal(t, EventMessageSent, evA[0].Event)
	assert.Equal(t, msg, evA[0].Body.(Message))

	// never-known receiver is equally silent
	r.SendDirect("A", "nobody", "hello", "")
	assert.Len(t, drain(a), 1)
}

func TestDirectMessageToSelfOnlyAcks(t *testing.T) {
	r := New(16, nil)
	a := r.Connect("A")

	r.SendDirect("A", "A", "me", "")

	evA := drain(a)
	require.Len(t, evA, 1)
	assert.Equal(t, EventMessageSent, evA[0].Event)
}

func TestBroadcastExcludesSender(t *testing.T) {
	r := New(16, nil)
	boxes := map[string]*Mailbox{}
	for _, id := range []string{"A", "B", "C"} {
		boxes[id] = r.Connect(id)
	}
	r.Register("A", "alice")
	for _, mb := range boxes {
		drain(mb)
	}

	msg := r.SendBroadcast("A", "hello all", "")
	assert.Equal(t, "alice", msg.Sender)
	assert.Empty(t, msg.Receiver)

	for _, id := range []string{"B", "C"} {
		ev := drain(boxes[id])
		require.Len(t, ev, 1, id)
		assert.Equal(t, EventReceiveBroadcastMessage, ev[0].Event)
		assert.Equal(t, msg, ev[0].Body.(Message))
	}
	evA := drain(boxes["A"])
	require.Len(t, evA, 1)
	assert.Equal(t, EventMessageSent, evA[0].Event)
}

func TestRoomFanOut(t *testing.T) {
	r := New(16, nil)
	a, b, c := r.Connect("A"), r.Connect("B"), r.Connect("C")

	r.ChatInRoom("B", "X", "joining", "bob")
	drain(b)

	msg := r.ChatInRoom("A", "X", "hello room", "alice")
	assert.Equal(t, "X", msg.RoomName)

	evA := drain(a)
	require.Len(t, evA, 2)
	assert.Equal(t, EventReceiveRoomMessage, evA[0].Event)
	assert.Equal(t, EventMessageSent, evA[1].Event)
	assert.Equal(t, msg, evA[0].Body.(Message))

	evB := drain(b)
	require.Len(t, evB, 1)
	assert.Equal(t, EventReceiveRoomMessage, evB[0].Event)
	assert.Equal(t, "X", evB[0].Body.(Message).RoomName)

	assert.Empty(t, drain(c), "non-member gets nothing")
}

func TestRoomJoinIsIdempotent(t *testing.T) {
	r := New(16, nil)
	a := r.Connect("A")

	r.ChatInRoom("A", "X", "one", "")
	r.ChatInRoom("A", "X", "two", "")

	assert.Equal(t, []string{"A"}, r.Rooms().Members("X"))
	assert.Len(t, eventsNamed(drain(a), EventReceiveRoomMessage), 2, "one copy per send")
}

func TestRoomEmptiedOnLastLeave(t *testing.T) {
	r := New(16, nil)
	r.Connect("A")
	r.Connect("B")
	r.ChatInRoom("A", "X", "hi", "")
	r.ChatInRoom("B", "X", "hi", "")
	r.ChatInRoom("A", "Y", "hi", "")

	r.Disconnect("A")
	assert.Equal(t, []RoomInfo{{Name: "X", Members: 1}}, r.Rooms().List())

	r.Disconnect("B")
	assert.Empty(t, r.Rooms().List())
}

func TestTypingOrderedAndTargeted(t *testing.T) {
	r := New(16, nil)
	a, b, c := r.Connect("A"), r.Connect("B"), r.Connect("C")

	r.Typing("A", "B", true)
	r.Typing("A", "B", false)

	evB := drain(b)
	require.Len(t, evB, 2)
	assert.Equal(t, Outbound{Event: EventUserTyping, Body: TypingSignal{UserID: "A", IsTyping: true}}, evB[0])
	assert.Equal(t, Outbound{Event: EventUserTyping, Body: TypingSignal{UserID: "A", IsTyping: false}}, evB[1])

	assert.Empty(t, drain(a), "no ack for typing")
	assert.Empty(t, drain(c))
	assert.Zero(t, r.Users().Len(), "typing does not touch the registry")

	r.Typing("A", "gone", true)
	r.Typing("A", "A", true)
	assert.Empty(t, drain(a))
}

func TestDisconnectRemovesFromSnapshots(t *testing.T) {
	sink := &recordingSink{}
	r := New(16, sink)
	a, b := r.Connect("A"), r.Connect("B")
	r.Register("A", "alice")
	r.Register("B", "bob")
	drain(a)

	r.Disconnect("B")

	users := lastUserList(t, drain(a))
	assert.Equal(t, []string{"A"}, ids(users))
	for _, u := range users {
		assert.Equal(t, presence.StatusOnline, u.Status, "offline state is never broadcast")
	}

	// B's mailbox is closed and B gets nothing after leaving.
	_, open := <-b.C()
	for open {
		_, open = <-b.C()
	}
	assert.False(t, r.Hub().Has("B"))

	require.Len(t, sink.events, 3)
	assert.Equal(t, presence.EventJoin, sink.events[0].Kind)
	assert.Equal(t, presence.Event{Kind: presence.EventLeave, ConnID: "B", Username: "bob", At: sink.events[2].At}, sink.events[2])
}

func TestDisconnectUnregisteredIsQuiet(t *testing.T) {
	sink := &recordingSink{}
	r := New(16, sink)
	a := r.Connect("A")
	r.Connect("B")

	r.Disconnect("B")

	assert.Empty(t, drain(a), "no snapshot when nothing was removed")
	assert.Empty(t, sink.events)
}

func TestSlowRecipientDoesNotBlockSender(t *testing.T) {
	r := New(2, nil)
	a := r.Connect("A")
	slow := r.Connect("slow")

	for i := 0; i < 10; i++ {
		r.SendDirect("A", "slow", fmt.Sprintf("m%d", i), "")
	}

	assert.Len(t, drain(slow), 2)
	assert.Equal(t, uint64(8), slow.Dropped())
	// acks beyond the sender's own buffer are dropped as well
	assert.Len(t, drain(a), 2)
}

func TestFullQueueStillGetsLatestUserList(t *testing.T) {
	r := New(256, nil)
	a, b := r.Connect("A"), r.Connect("B")
	r.Register("A", "alice")
	r.Register("B", "bob")
	drain(a)
	drain(b)

	// A stops reading while B fills A's queue.
	for i := 0; i < 256; i++ {
		r.SendBroadcast("B", fmt.Sprintf("m%d", i), "")
	}
	r.Connect("C")
	r.Register("C", "carol")
	r.Register("C", "carol2")

	evA := drain(a)
	assert.Len(t, eventsNamed(evA, EventReceiveBroadcastMessage), 256)
	lists := eventsNamed(evA, EventUpdateUserList)
	require.Len(t, lists, 1, "only the newest overflowed list is kept")
	users := lists[0].Body.([]presence.UserRecord)
	assert.Equal(t, []string{"A", "B", "C"}, ids(users))
	assert.Equal(t, "carol2", users[2].Username)
	assert.Equal(t, uint64(2), a.Dropped(), "user_connected events are still dropped")
}

func TestConcurrentRegistrationsConverge(t *testing.T) {
	r := New(1024, nil)
	watcher := r.Connect("watcher")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%02d", i)
			r.Connect(id)
			r.Register(id, "")
			if i%4 == 0 {
				r.Disconnect(id)
			}
		}(i)
	}
	wg.Wait()

	final := lastUserList(t, drain(watcher))
	assert.ElementsMatch(t, ids(r.Users().Snapshot()), ids(final))
	assert.Len(t, final, 15)
}
