package contracts

import "context"

// Client is the minimal surface the registry needs to talk to one physical
// connection. The ws package provides the production implementation.
type Client interface {
	Send(ctx context.Context, data []byte) error
	Close()
}

// Session is one live, authenticated connection. A user may hold several
// concurrent sessions (multi-tab, multi-device).
type Session interface {
	ID() string
	UserID() string
	// Send marshals the event and queues it on this session's connection.
	Send(ctx context.Context, event any) error
}

// Registry is the shared in-memory routing layer: it maps users to live
// sessions and conversations to the sessions currently joined to them.
// All methods are safe under concurrent join/leave/broadcast; no broadcast
// observes a half-updated membership set.
type Registry interface {
	// Register adds a connection for a verified user and returns the
	// session handle.
	Register(userID string, c Client) Session
	// Unregister removes the session and every room pointer it holds.
	// Idempotent: unregistering twice, or before any join, is a no-op.
	Unregister(s Session)
	ConnectionsFor(userID string) []Session
	// IsUserOnline reports whether the user has at least one live session.
	IsUserOnline(userID string) bool

	// Join and Leave maintain room membership pointers. Membership
	// verification against the durable store happens in the room service,
	// not here.
	Join(s Session, convID string)
	Leave(s Session, convID string)
	// Broadcast delivers the event to every session joined to the room,
	// optionally skipping one originating session. Per-connection send
	// failures are isolated.
	Broadcast(ctx context.Context, convID string, event any, excludeSessionID string)
	// SendToUser delivers the event to every live session of one user.
	SendToUser(ctx context.Context, userID string, event any)
}
