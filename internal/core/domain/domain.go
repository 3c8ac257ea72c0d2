package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity owned by the durable store. This core only writes
// back the IsOnline/LastSeenAt pair on confirmed presence transitions.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsOnline     bool
	LastSeenAt   time.Time
	CreatedAt    time.Time
}

// Conversation is a chat room. Membership changes are pushed in by the
// chat-creation collaborator; this core never creates or destroys rooms.
type Conversation struct {
	ID              uuid.UUID
	IsGroup         bool
	MemberIDs       []string
	LatestMessageID uuid.UUID
	CreatedAt       time.Time
}

// ContentType of a message body.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentFile  ContentType = "file"
)

// Message is owned by the durable store once persisted. Seq is the
// server-assigned per-conversation sequence; receivers render in Seq order.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       string
	Content        string
	ContentType    ContentType
	MediaURL       string
	Seq            int64
	Deleted        bool
	CreatedAt      time.Time

	// DeliveredTo and ReadBy hold one entry per recipient, never the
	// sender. A recipient present in ReadBy is always present in
	// DeliveredTo (reading implies delivery).
	DeliveredTo map[string]time.Time
	ReadBy      map[string]time.Time
}

// MessageStatus is the sender-visible rollup over all recipients' receipts.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// AggregateStatus recomputes the rollup from the receipt sets and the room's
// current member list. Callers pass fresh state every time; the result is
// never cached.
func (m *Message) AggregateStatus(memberIDs []string) MessageStatus {
	recipients := 0
	for _, id := range memberIDs {
		if id != m.SenderID {
			recipients++
		}
	}
	if len(m.DeliveredTo) == 0 {
		return StatusSent
	}
	if recipients > 0 && len(m.ReadBy) >= recipients {
		return StatusRead
	}
	return StatusDelivered
}

// ReadCursor marks the newest message a user has read in a conversation.
// Moved only by that user's own read actions, forward only.
type ReadCursor struct {
	UserID         string
	ConversationID uuid.UUID
	LastReadMsgID  uuid.UUID
	LastReadSeq    int64
	LastReadAt     time.Time
}
