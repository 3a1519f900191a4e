package chat

import "time"

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeAudio MessageType = "audio"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeAudio:
		return true
	}
	return false
}

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

const (
	// DeletedPlaceholder replaces the content of soft-deleted messages in
	// every reader-facing path, whatever the decrypt outcome.
	DeletedPlaceholder = "This message was deleted"

	// conversationStartPreview is the sentinel list-view preview a fresh
	// conversation gets. Real text previews are stored as ciphertext and
	// media previews use the glyph labels below, so the sentinel can never
	// collide with actual message content.
	conversationStartPreview = "Start of a new conversation"

	imagePreview = "📷 Photo"
	audioPreview = "🎤 Voice message"
)

// Conversation is the durable two-party chat context. The participant pair is
// unordered; storage enforces at most one row per pair.
type Conversation struct {
	ID          int       `json:"id"`
	UserA       int       `json:"userA"`
	UserB       int       `json:"userB"`
	LastMessage string    `json:"lastMessage"`
	LastUpdated time.Time `json:"lastUpdated"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (c *Conversation) Includes(userID int) bool {
	return c.UserA == userID || c.UserB == userID
}

// OtherParticipant returns the counterpart of userID in this conversation.
func (c *Conversation) OtherParticipant(userID int) int {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

// Message carries a chat message through storage and over the wire. Content
// holds ciphertext at rest for text messages and the plaintext on the wire;
// for image/audio it is an opaque URL either way. Sender name and avatar are
// denormalized from the current user record via JOIN, so renames re-label old
// history.
type Message struct {
	ID             int           `json:"id"`
	ConversationID int           `json:"roomId"`
	SenderID       int           `json:"senderId"`
	SenderName     string        `json:"senderName"`
	SenderAvatar   string        `json:"senderAvatar"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"type"`
	Duration       int           `json:"duration,omitempty"` // seconds, audio only
	Status         MessageStatus `json:"status"`
	Deleted        bool          `json:"deleted"`
	CreatedAt      time.Time     `json:"timestamp"`
}

// ConversationSummary is the list-view row: the counterpart's current
// identity, a plaintext-safe preview and the unread counter.
type ConversationSummary struct {
	ID            int       `json:"roomId"`
	OtherUserID   int       `json:"otherUserId"`
	OtherUsername string    `json:"otherUsername"`
	OtherAvatar   string    `json:"otherAvatar"`
	OtherOnline   bool      `json:"otherOnline"`
	LastMessage   string    `json:"lastMessage"`
	LastUpdated   time.Time `json:"lastUpdated"`
	UnreadCount   int       `json:"unreadCount"`
}
