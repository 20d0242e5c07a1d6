package ws

import "encoding/json"

// Envelope wraps every inbound WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "send_message_by_id"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// Inbound event names.
const (
	EventRegisterUser         = "register_user"
	EventSendMessageByID      = "send_message_by_id"
	EventSendBroadcastMessage = "send_broadcast_message"
	EventCreateAndChatInRoom  = "create_and_chat_in_room"
	EventTyping               = "typing"

	// EventError is sent back for frames that could not be dispatched.
	EventError = "error"
)

// ──────────────────────────── Request DTOs ─────────────────────────

// RegisterUserRequest is the body for "register_user".
type RegisterUserRequest struct {
	Username string `json:"username"`
}

// DirectMessageRequest is the body for "send_message_by_id".
type DirectMessageRequest struct {
	Receiver string `json:"receiver"`
	Message  string `json:"message"`
	Sender   string `json:"sender"`
}

// BroadcastMessageRequest is the body for "send_broadcast_message".
type BroadcastMessageRequest struct {
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

// RoomMessageRequest is the body for "create_and_chat_in_room".
type RoomMessageRequest struct {
	RoomName string `json:"roomName"`
	Message  string `json:"message"`
	Sender   string `json:"sender"`
}

// TypingRequest is the body for "typing".
type TypingRequest struct {
	Receiver string `json:"receiver"`
	IsTyping bool   `json:"isTyping"`
}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error string `json:"error"`
}
