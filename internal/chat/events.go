package chat

import "encoding/json"

// ---------------------------------------------
// 🔌 Wire Protocol
// ---------------------------------------------
// Every websocket frame is an Envelope. Inbound data stays raw until the
// dispatcher knows the event; outbound data is marshaled in one shot.

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names.
const (
	EventChatMessage   = "chat_message"
	EventJoinPrivate   = "join_private_chat"
	EventMarkRead      = "conversation:read"
	EventMarkDelivered = "message:delivered"
	EventDeleteMessage = "message:delete"
	EventTyping        = "typing"
	EventStopTyping    = "stop_typing"
)

// Outbound event names. EventChatMessage is reused: the server echoes the
// same name back with the full message payload.
const (
	EventLoginSuccess     = "login_success"
	EventPrivateChatReady = "private_chat_ready"
	EventSendFailed       = "message:send_failed"
	EventReadAck          = "conversation:read_ack"
	EventStatusUpdate     = "message:status_update"
	EventMessageDeleted   = "message:deleted"
	EventDisplayTyping    = "display_typing"
	EventHideTyping       = "hide_typing"
	EventUserStatus       = "user_status_change"
	EventError            = "error"
)

// ---- inbound payloads ----

type ChatMessageRequest struct {
	RoomID   string      `json:"roomId"`
	Content  string      `json:"content"`
	Type     MessageType `json:"type"`
	Duration int         `json:"duration,omitempty"`
}

type JoinPrivateChatRequest struct {
	OtherUserID int `json:"otherUserId"`
}

type ReadRequest struct {
	RoomID int `json:"roomId"`
}

type DeliveredRequest struct {
	MessageID int `json:"messageId"`
	RoomID    int `json:"roomId"`
}

type DeleteRequest struct {
	MessageID int `json:"messageId"`
	RoomID    int `json:"roomId"`
}

type TypingRequest struct {
	RoomID int `json:"roomId"`
}

// ---- outbound payloads ----

type LoginSuccessPayload struct {
	UserID   int    `json:"userId"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type PrivateChatReadyPayload struct {
	RoomID  int        `json:"roomId"`
	History []*Message `json:"history"`
}

type SendFailedPayload struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

type ReadAckPayload struct {
	RoomID   int `json:"roomId"`
	ReaderID int `json:"readerId"`
}

type StatusUpdatePayload struct {
	MessageID int           `json:"messageId"`
	RoomID    int           `json:"roomId"`
	Status    MessageStatus `json:"status"`
}

type MessageDeletedPayload struct {
	MessageID int `json:"messageId"`
}

type TypingPayload struct {
	RoomID   int    `json:"roomId"`
	UserID   int    `json:"userId"`
	Username string `json:"username"`
}

type UserStatusPayload struct {
	UserID int  `json:"userId"`
	Online bool `json:"online"`
}

type ErrorPayload struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// NewEnvelope marshals payload into a ready-to-send frame. A payload that
// cannot marshal is a programming error; the caller gets an empty-data
// envelope rather than a panic mid-broadcast.
func NewEnvelope(event string, payload any) Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{Event: event}
	}
	return Envelope{Event: event, Data: data}
}
