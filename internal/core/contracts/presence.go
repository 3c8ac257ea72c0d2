package contracts

import (
	"context"
	"time"
)

// PresenceStore mirrors confirmed presence transitions into Redis so other
// services can answer "who is online" without touching this process. The
// session registry stays the authority for live connections; this mirror is
// best-effort and eventually consistent.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID string, at time.Time) error
	SetOffline(ctx context.Context, userID string, lastSeen time.Time) error
	// ListOnline returns user ids marked online within the freshness window.
	ListOnline(ctx context.Context) ([]string, error)
}
