package services

import (
	"context"
	"log/slog"

	"sanuda/internal/core/contracts"
	"sanuda/internal/core/domain"

	"github.com/google/uuid"
)

// RoomService is the room directory facade: it verifies membership against
// the durable store before touching the registry's room maps.
type RoomService struct {
	log      *slog.Logger
	registry contracts.Registry
	convs    domain.ConversationRepository
	cursors  *CursorService
}

func NewRoomService(
	log *slog.Logger,
	registry contracts.Registry,
	convs domain.ConversationRepository,
	cursors *CursorService,
) *RoomService {
	return &RoomService{
		log:      log,
		registry: registry,
		convs:    convs,
		cursors:  cursors,
	}
}

// VerifyMember returns the conversation's member list, or ErrNotAMember when
// userID is not in it. Reused by the fan-out pipeline's step 1.
func (s *RoomService) VerifyMember(ctx context.Context, convID uuid.UUID, userID string) ([]string, error) {
	members, err := s.convs.GetMembers(ctx, convID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m == userID {
			return members, nil
		}
	}
	return nil, domain.ErrNotAMember
}

func (s *RoomService) Join(ctx context.Context, sess contracts.Session, convID string) error {
	cid, err := uuid.Parse(convID)
	if err != nil {
		return domain.ErrInvalidConversationID
	}
	if _, err := s.VerifyMember(ctx, cid, sess.UserID()); err != nil {
		s.log.WarnContext(ctx, "rooms - join rejected", "conv_id", convID, "user_id", sess.UserID(), "err", err)
		return err
	}
	s.registry.Join(sess, convID)

	unread := 0
	if n, err := s.cursors.UnreadCount(ctx, sess.UserID(), cid); err == nil {
		unread = n
	}
	_ = sess.Send(ctx, domain.JoinAckEvent{
		Type:           domain.TypeJoinAck,
		ConversationID: convID,
		UnreadCount:    unread,
	})
	s.log.InfoContext(ctx, "rooms - join success", "conv_id", convID, "user_id", sess.UserID())
	return nil
}

func (s *RoomService) Leave(ctx context.Context, sess contracts.Session, convID string) {
	s.registry.Leave(sess, convID)
	s.log.InfoContext(ctx, "rooms - leave", "conv_id", convID, "user_id", sess.UserID())
}
