package domain

import "time"

// Inbound event types.
const (
	EventJoin        = "join"
	EventLeave       = "leave"
	EventSend        = "send"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
	EventMarkRead    = "mark_read"
	EventMarkAllRead = "mark_all_read"
)

// Outbound event types.
const (
	TypeHandshake     = "handshake"
	TypeMessage       = "message"
	TypeMessageStatus = "message_status"
	TypePresence      = "presence"
	TypeTyping        = "typing"
	TypeTypingStopped = "typing_stopped"
	TypeJoinAck       = "join_ack"
	TypeError         = "error"
)

// ClientEvent is the single inbound frame shape. Type selects which fields
// are meaningful; the dispatcher rejects unknown types with an error event.
type ClientEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Content        string `json:"content,omitempty"`
	ContentType    string `json:"content_type,omitempty"`
	MediaURL       string `json:"media_url,omitempty"`
}

// HandshakeEvent is sent once after a successful upgrade.
type HandshakeEvent struct {
	Type      string    `json:"type"` // "handshake"
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageEvent carries a persisted message to room subscribers, including
// the sender's other devices.
type MessageEvent struct {
	Type    string         `json:"type"` // "message"
	Message MessagePayload `json:"message"`
}

// MessagePayload is the wire form of a persisted message.
type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	ContentType    string    `json:"content_type"`
	MediaURL       string    `json:"media_url,omitempty"`
	Seq            int64     `json:"seq"`
	CreatedAt      time.Time `json:"created_at"`
}

// StatusUpdate is one message's recomputed aggregated status.
type StatusUpdate struct {
	MessageID string        `json:"message_id"`
	Status    MessageStatus `json:"status"`
	Delivered []string      `json:"delivered_to,omitempty"`
	Read      []string      `json:"read_by,omitempty"`
}

// StatusEvent is pushed to a message's sender. Bulk reads batch all updates
// for one sender into a single event.
type StatusEvent struct {
	Type           string         `json:"type"` // "message_status"
	ConversationID string         `json:"conversation_id"`
	Updates        []StatusUpdate `json:"updates"`
}

// PresenceEvent announces a confirmed online/offline transition to a room.
type PresenceEvent struct {
	Type       string    `json:"type"` // "presence"
	UserID     string    `json:"user_id"`
	IsOnline   bool      `json:"is_online"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// TypingEvent is the ephemeral typing indicator. The receiving client owns
// expiry; the server relays only.
type TypingEvent struct {
	Type           string `json:"type"` // "typing" | "typing_stopped"
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// JoinAckEvent confirms room membership to the joining session.
type JoinAckEvent struct {
	Type           string `json:"type"` // "join_ack"
	ConversationID string `json:"conversation_id"`
	UnreadCount    int    `json:"unread_count"`
}

// ErrorEvent is the WS-safe error surface.
type ErrorEvent struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried by ErrorEvent.
const (
	CodeNotAMember        = "not_a_member"
	CodePersistenceFailed = "persistence_failed"
	CodeBadRequest        = "bad_request"
)
