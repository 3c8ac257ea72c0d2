package services

import (
	"context"
	"log/slog"

	"sanuda/internal/core/domain"

	"github.com/google/uuid"
)

// CursorService tracks, per (user, conversation), the newest message that
// user has read. Forward-only; unread counts are recomputed on demand so
// concurrent message arrival cannot leave a stale cache.
type CursorService struct {
	log      *slog.Logger
	cursors  domain.CursorRepository
	messages domain.MessageRepository
}

func NewCursorService(
	log *slog.Logger,
	cursors domain.CursorRepository,
	messages domain.MessageRepository,
) *CursorService {
	return &CursorService{
		log:      log,
		cursors:  cursors,
		messages: messages,
	}
}

// Advance moves the cursor to msgID. An older or equal cutoff is a no-op.
func (s *CursorService) Advance(ctx context.Context, userID string, convID, msgID uuid.UUID) error {
	moved, err := s.cursors.Advance(ctx, userID, convID, msgID)
	if err != nil {
		s.log.ErrorContext(ctx, "cursor - advance failed", "conv_id", convID, "user_id", userID, "err", err)
		return err
	}
	if moved {
		s.log.DebugContext(ctx, "cursor - advanced", "conv_id", convID, "user_id", userID, "message_id", msgID)
	}
	return nil
}

// UnreadCount counts messages authored by others, newer than the cursor and
// not deleted.
func (s *CursorService) UnreadCount(ctx context.Context, userID string, convID uuid.UUID) (int, error) {
	cur, err := s.cursors.Get(ctx, userID, convID)
	if err != nil {
		return 0, err
	}
	var afterSeq int64
	if cur != nil {
		afterSeq = cur.LastReadSeq
	}
	return s.messages.CountUnreadAfter(ctx, convID, userID, afterSeq)
}
