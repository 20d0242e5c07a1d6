// Package relay routes chat events between live connections. It owns the
// presence registry and room membership; the transport only attaches
// connections and forwards their inbound events.
package relay

import (
	"sync"
	"time"

	"chatrelay/internal/presence"

	"go.uber.org/zap"
)

// PresenceSink receives lifecycle events after the registry changes. Publish
// must not block.
type PresenceSink interface {
	Publish(ev presence.Event)
}

type noopSink struct{}

func (noopSink) Publish(presence.Event) {}

type Relay struct {
	// presenceMu orders registry mutations with their user list broadcasts,
	// so the last snapshot a connection receives is the current one.
	presenceMu sync.Mutex
	listSeq    uint64

	users *presence.Registry
	rooms *Rooms
	hub   *Hub
	ids   *IDSequence
	sink  PresenceSink
	now   func() time.Time
}

// New builds a relay whose per-connection mailboxes hold sendBuffer events.
// A nil sink discards lifecycle events.
func New(sendBuffer int, sink PresenceSink) *Relay {
	if sink == nil {
		sink = noopSink{}
	}
	return &Relay{
		users: presence.NewRegistry(),
		rooms: NewRooms(),
		hub:   NewHub(sendBuffer),
		ids:   NewIDSequence(time.Now),
		sink:  sink,
		now:   time.Now,
	}
}

func (r *Relay) Users() *presence.Registry { return r.users }
func (r *Relay) Rooms() *Rooms             { return r.rooms }
func (r *Relay) Hub() *Hub                 { return r.hub }

// Connect attaches a mailbox for a freshly accepted connection. The
// connection stays unregistered until it sends register_user.
func (r *Relay) Connect(connID string) *Mailbox {
	mb := r.hub.Attach(connID)
	zap.L().Debug("relay.connect", zap.String("conn", connID))
	return mb
}

// Register records the connection under username, confirms it to the
// registrant, pushes the new user list to everyone and announces the user to
// everyone else.
func (r *Relay) Register(connID, username string) presence.UserRecord {
	r.presenceMu.Lock()
	rec := r.users.Register(connID, username)
	r.hub.Deliver(connID, Outbound{Event: EventUserRegistered, Body: rec})
	r.broadcastUserList()
	r.hub.DeliverAll(Outbound{Event: EventUserConnected, Body: rec}, connID)
	r.presenceMu.Unlock()

	r.sink.Publish(presence.Event{
		Kind:     presence.EventJoin,
		ConnID:   rec.ID,
		Username: rec.Username,
		At:       rec.LastSeen,
	})
	zap.L().Info("relay.register",
		zap.String("conn", connID),
		zap.String("username", rec.Username),
	)
	return rec
}

// SendDirect delivers text to one receiver. The sender always gets a
// message_sent ack, whether or not the receiver still exists.
func (r *Relay) SendDirect(from, receiver, text, sender string) Message {
	msg := r.newMessage(channelDirect, from, sender, text)
	msg.Receiver = receiver

	if receiver != from {
		r.hub.Deliver(receiver, Outbound{Event: EventReceiveMessageByID, Body: msg})
	}
	r.ack(from, msg)
	return msg
}

// SendBroadcast delivers text to every connection but the sender.
func (r *Relay) SendBroadcast(from, text, sender string) Message {
	msg := r.newMessage(channelBroadcast, from, sender, text)

	r.hub.DeliverAll(Outbound{Event: EventReceiveBroadcastMessage, Body: msg}, from)
	r.ack(from, msg)
	return msg
}

// ChatInRoom joins the sender to roomName and delivers text to every member,
// the sender included.
func (r *Relay) ChatInRoom(from, roomName, text, sender string) Message {
	members := r.rooms.Join(roomName, from)

	msg := r.newMessage(channelRoom, from, sender, text)
	msg.RoomName = roomName

	r.hub.DeliverMany(members, Outbound{Event: EventReceiveRoomMessage, Body: msg})
	r.ack(from, msg)
	return msg
}

// Typing forwards a typing indicator to receiver only.
func (r *Relay) Typing(from, receiver string, isTyping bool) {
	if receiver == from {
		return
	}
	r.hub.Deliver(receiver, Outbound{
		Event: EventUserTyping,
		Body:  TypingSignal{UserID: from, IsTyping: isTyping},
	})
}

// Disconnect forgets the connection: it leaves its rooms, its record is
// deleted and the remaining connections get the new user list.
func (r *Relay) Disconnect(connID string) {
	left := r.rooms.LeaveAll(connID)
	r.hub.Detach(connID)

	r.presenceMu.Lock()
	rec, ok := r.users.Remove(connID)
	if ok {
		r.broadcastUserList()
	}
	r.presenceMu.Unlock()

	if !ok {
		zap.L().Debug("relay.disconnect", zap.String("conn", connID), zap.Strings("rooms", left))
		return
	}
	r.sink.Publish(presence.Event{
		Kind:     presence.EventLeave,
		ConnID:   rec.ID,
		Username: rec.Username,
		At:       rec.LastSeen,
	})
	zap.L().Info("relay.disconnect",
		zap.String("conn", connID),
		zap.String("username", rec.Username),
		zap.Strings("rooms", left),
	)
}

// broadcastUserList must be called with presenceMu held.
func (r *Relay) broadcastUserList() {
	r.listSeq++
	r.hub.DeliverLatest(Outbound{Event: EventUpdateUserList, Body: r.users.Snapshot(), seq: r.listSeq})
}

func (r *Relay) ack(connID string, msg Message) {
	r.hub.Deliver(connID, Outbound{Event: EventMessageSent, Body: msg})
}

func (r *Relay) newMessage(ch channel, from, sender, text string) Message {
	return Message{
		channel:   ch,
		ID:        r.ids.Next(),
		Sender:    r.resolveSender(from, sender),
		Message:   text,
		Timestamp: r.now(),
	}
}

func (r *Relay) resolveSender(from, sender string) string {
	if sender != "" {
		return sender
	}
	if rec, ok := r.users.Lookup(from); ok && rec.Username != "" {
		return rec.Username
	}
	return UnknownSender
}
