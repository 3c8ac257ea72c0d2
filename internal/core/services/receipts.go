package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sanuda/internal/core/contracts"
	"sanuda/internal/core/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReceiptService owns the per-(message, recipient) Sent→Delivered→Read state
// machine. Transitions are strictly monotonic; duplicates and backward moves
// are silent no-ops because client acks arrive at-least-once. Every
// effective mark pushes the recomputed aggregated status to the sender.
type ReceiptService struct {
	log      *slog.Logger
	registry contracts.Registry
	messages domain.MessageRepository
	convs    domain.ConversationRepository
	locks    *keyedMutex
}

func NewReceiptService(
	log *slog.Logger,
	registry contracts.Registry,
	messages domain.MessageRepository,
	convs domain.ConversationRepository,
) *ReceiptService {
	return &ReceiptService{
		log:      log,
		registry: registry,
		messages: messages,
		convs:    convs,
		locks:    newKeyedMutex(),
	}
}

func (s *ReceiptService) MarkDelivered(ctx context.Context, msgID uuid.UUID, userID string) error {
	unlock := s.locks.Lock("msg:" + msgID.String())
	defer unlock()

	msg, err := s.messages.GetMessage(ctx, msgID)
	if err != nil {
		return err
	}
	members, err := s.membersFor(ctx, msg.ConversationID, userID)
	if err != nil {
		return err
	}
	changed, err := s.deliverLocked(ctx, msg, userID)
	if err != nil {
		return err
	}
	if changed {
		s.sendStatus(ctx, msg, members)
	}
	return nil
}

// MarkRead records a read receipt and returns the affected message so the
// caller can advance the reader's cursor.
func (s *ReceiptService) MarkRead(ctx context.Context, msgID uuid.UUID, userID string) (*domain.Message, error) {
	unlock := s.locks.Lock("msg:" + msgID.String())
	defer unlock()

	msg, err := s.messages.GetMessage(ctx, msgID)
	if err != nil {
		return nil, err
	}
	members, err := s.membersFor(ctx, msg.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	changed, err := s.readLocked(ctx, msg, userID)
	if err != nil {
		return nil, err
	}
	if changed {
		s.sendStatus(ctx, msg, members)
	}
	return msg, nil
}

// MarkAllReadUpTo promotes every unread message in the conversation authored
// by someone else, with seq at or below the cutoff, to Read. One batched
// status event per affected sender bounds broadcast volume.
func (s *ReceiptService) MarkAllReadUpTo(ctx context.Context, convID uuid.UUID, userID string, lastMsgID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "ReceiptService.MarkAllReadUpTo", trace.WithAttributes(
		attribute.String("conv_id", convID.String()),
		attribute.String("user_id", userID),
	))
	defer span.End()

	members, err := s.membersFor(ctx, convID, userID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	msgs, err := s.messages.ListUnreadUpTo(ctx, convID, userID, lastMsgID)
	if err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "receipts - mark all read - list failed", "conv_id", convID, "user_id", userID, "err", err)
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	bySender := make(map[string][]domain.StatusUpdate)
	for _, msg := range msgs {
		unlock := s.locks.Lock("msg:" + msg.ID.String())
		changed, err := s.readLocked(ctx, msg, userID)
		unlock()
		if err != nil {
			s.log.WarnContext(ctx, "receipts - mark all read - skip message", "message_id", msg.ID, "err", err)
			continue
		}
		if !changed {
			continue
		}
		bySender[msg.SenderID] = append(bySender[msg.SenderID], statusUpdate(msg, members))
	}
	for senderID, updates := range bySender {
		s.registry.SendToUser(ctx, senderID, domain.StatusEvent{
			Type:           domain.TypeMessageStatus,
			ConversationID: convID.String(),
			Updates:        updates,
		})
	}
	span.SetAttributes(attribute.Int("messages_marked", len(msgs)))
	s.log.InfoContext(ctx, "receipts - mark all read - success",
		"conv_id", convID, "user_id", userID, "marked", len(msgs), "senders", len(bySender))
	return nil
}

// deliverLocked records a delivery receipt on a loaded message. The caller
// holds the message lock. Sender self-marks and duplicates are no-ops.
func (s *ReceiptService) deliverLocked(ctx context.Context, msg *domain.Message, userID string) (bool, error) {
	if msg.SenderID == userID {
		return false, nil
	}
	if _, ok := msg.DeliveredTo[userID]; ok {
		return false, nil
	}
	now := time.Now()
	changed, err := s.messages.AddDelivered(ctx, msg.ID, userID, now)
	if err != nil {
		return false, err
	}
	if changed {
		if msg.DeliveredTo == nil {
			msg.DeliveredTo = make(map[string]time.Time)
		}
		msg.DeliveredTo[userID] = now
	}
	return changed, nil
}

// readLocked records a read receipt, auto-promoting the delivery receipt
// first so reading always implies delivery.
func (s *ReceiptService) readLocked(ctx context.Context, msg *domain.Message, userID string) (bool, error) {
	if msg.SenderID == userID {
		return false, nil
	}
	if _, ok := msg.ReadBy[userID]; ok {
		return false, nil
	}
	if _, err := s.deliverLocked(ctx, msg, userID); err != nil {
		return false, err
	}
	now := time.Now()
	changed, err := s.messages.AddRead(ctx, msg.ID, userID, now)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			return false, nil
		}
		return false, err
	}
	if changed {
		if msg.ReadBy == nil {
			msg.ReadBy = make(map[string]time.Time)
		}
		msg.ReadBy[userID] = now
	}
	return changed, nil
}

// membersFor returns the conversation's member list, rejecting marks from
// users outside the conversation: a stray receipt would corrupt the
// sender-visible rollup.
func (s *ReceiptService) membersFor(ctx context.Context, convID uuid.UUID, userID string) ([]string, error) {
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

func (s *ReceiptService) sendStatus(ctx context.Context, msg *domain.Message, members []string) {
	s.registry.SendToUser(ctx, msg.SenderID, domain.StatusEvent{
		Type:           domain.TypeMessageStatus,
		ConversationID: msg.ConversationID.String(),
		Updates:        []domain.StatusUpdate{statusUpdate(msg, members)},
	})
}

func statusUpdate(msg *domain.Message, members []string) domain.StatusUpdate {
	u := domain.StatusUpdate{
		MessageID: msg.ID.String(),
		Status:    msg.AggregateStatus(members),
	}
	for id := range msg.DeliveredTo {
		u.Delivered = append(u.Delivered, id)
	}
	for id := range msg.ReadBy {
		u.Read = append(u.Read, id)
	}
	return u
}
