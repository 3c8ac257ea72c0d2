package contracts

import (
	"context"

	"sanuda/internal/core/domain"
)

// OfflineNotifier hands a message to the push-notification path for a
// recipient with no live session. Best effort: failures are logged and
// swallowed, never propagated to the sender's result.
type OfflineNotifier interface {
	Notify(ctx context.Context, userID string, msg *domain.Message) error
}
