package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRepository handles the persistent identity and the presence write-back.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	// SetOnlineStatus writes the confirmed presence transition. Durable
	// last-seen lives here; the Redis mirror is best-effort.
	SetOnlineStatus(ctx context.Context, userID string, online bool, lastSeen time.Time) error
}

// ConversationRepository is the membership lookup boundary. Conversations
// are created and destroyed by an external collaborator.
type ConversationRepository interface {
	GetMembers(ctx context.Context, convID uuid.UUID) ([]string, error)
	ListUserConversations(ctx context.Context, userID string) ([]uuid.UUID, error)
	SetLatestMessage(ctx context.Context, convID, msgID uuid.UUID) error
}

// MessageRepository persists messages and their receipt sets. The store is
// the system of record; in-memory state is a rebuildable fan-out view.
type MessageRepository interface {
	// Append assigns the server timestamp and the next per-conversation
	// sequence atomically, then inserts the message.
	Append(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, msgID uuid.UUID) (*Message, error)
	// AddDelivered records a delivery receipt. Returns false when the
	// recipient was already marked (idempotent no-op).
	AddDelivered(ctx context.Context, msgID uuid.UUID, userID string, at time.Time) (bool, error)
	// AddRead records a read receipt with the same idempotency rule. The
	// caller guarantees delivered-before-read ordering.
	AddRead(ctx context.Context, msgID uuid.UUID, userID string, at time.Time) (bool, error)
	// ListUndelivered returns messages in the conversation authored by
	// others and missing a delivery receipt for userID, in seq order.
	ListUndelivered(ctx context.Context, convID uuid.UUID, userID string) ([]*Message, error)
	// ListUnreadUpTo returns messages authored by others with seq at or
	// below the cutoff message's seq and no read receipt for userID,
	// in seq order.
	ListUnreadUpTo(ctx context.Context, convID uuid.UUID, userID string, cutoffMsgID uuid.UUID) ([]*Message, error)
	// CountUnreadAfter counts non-deleted messages authored by others
	// with seq greater than afterSeq.
	CountUnreadAfter(ctx context.Context, convID uuid.UUID, userID string, afterSeq int64) (int, error)
}

// CursorRepository stores per-(user, conversation) read cursors.
type CursorRepository interface {
	Get(ctx context.Context, userID string, convID uuid.UUID) (*ReadCursor, error)
	// Advance moves the cursor forward to the given message. Returns false
	// when the cursor already points at the same or a newer message.
	Advance(ctx context.Context, userID string, convID, msgID uuid.UUID) (bool, error)
}
