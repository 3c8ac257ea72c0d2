package services

import (
	"context"

	"sanuda/internal/core/contracts"
	"sanuda/internal/core/domain"
)

// TypingService relays typing indicators to the room, excluding the
// originating session. No state, no persistence: the receiving client owns
// indicator expiry.
type TypingService struct {
	registry contracts.Registry
}

func NewTypingService(registry contracts.Registry) *TypingService {
	return &TypingService{registry: registry}
}

func (s *TypingService) StartTyping(ctx context.Context, sess contracts.Session, convID string) {
	s.registry.Broadcast(ctx, convID, domain.TypingEvent{
		Type:           domain.TypeTyping,
		ConversationID: convID,
		UserID:         sess.UserID(),
	}, sess.ID())
}

func (s *TypingService) StopTyping(ctx context.Context, sess contracts.Session, convID string) {
	s.registry.Broadcast(ctx, convID, domain.TypingEvent{
		Type:           domain.TypeTypingStopped,
		ConversationID: convID,
		UserID:         sess.UserID(),
	}, sess.ID())
}
