package relay

import (
	"encoding/json"
	"time"
)

// Outbound event names.
const (
	EventUserRegistered          = "user_registered"
	EventUpdateUserList          = "update_user_list"
	EventUserConnected           = "user_connected"
	EventReceiveMessageByID      = "receive_message_by_id"
	EventReceiveBroadcastMessage = "receive_broadcast_message"
	EventReceiveRoomMessage      = "receive_room_message"
	EventUserTyping              = "user_typing"
	EventMessageSent             = "message_sent"
)

// UnknownSender is used when a message names no sender and its connection
// never registered.
const UnknownSender = "Unknown"

// Outbound is one event queued for a single connection. It is also the
// frame written to the socket.
type Outbound struct {
	Event string `json:"event"`
	Body  any    `json:"body,omitempty"`

	seq uint64 // user list version; zero for every other event
}

type channel uint8

const (
	channelBroadcast channel = iota
	channelDirect
	channelRoom
)

// Message is the envelope of a chat message. Direct messages always carry
// receiver and room messages always carry roomName; broadcasts carry neither.
type Message struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	RoomName  string    `json:"roomName"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`

	channel channel
}

type messageFields struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	base := messageFields{ID: m.ID, Sender: m.Sender, Message: m.Message, Timestamp: m.Timestamp}
	switch m.channel {
	case channelDirect:
		return json.Marshal(struct {
			messageFields
			Receiver string `json:"receiver"`
		}{base, m.Receiver})
	case channelRoom:
		return json.Marshal(struct {
			messageFields
			RoomName string `json:"roomName"`
		}{base, m.RoomName})
	default:
		return json.Marshal(base)
	}
}

type TypingSignal struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}
