package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sanuda/internal/core/contracts"
	"sanuda/internal/core/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FanoutService is the send pipeline: persist first, then deliver to every
// live recipient connection exactly once, then hand offline recipients to
// the notifier. Sends within one conversation are serialized so broadcasts
// leave in server-assigned seq order.
type FanoutService struct {
	log      *slog.Logger
	registry contracts.Registry
	rooms    *RoomService
	messages domain.MessageRepository
	convs    domain.ConversationRepository
	notifier contracts.OfflineNotifier
	locks    *keyedMutex
}

func NewFanoutService(
	log *slog.Logger,
	registry contracts.Registry,
	rooms *RoomService,
	messages domain.MessageRepository,
	convs domain.ConversationRepository,
	notifier contracts.OfflineNotifier,
) *FanoutService {
	return &FanoutService{
		log:      log,
		registry: registry,
		rooms:    rooms,
		messages: messages,
		convs:    convs,
		notifier: notifier,
		locks:    newKeyedMutex(),
	}
}

func (s *FanoutService) Send(
	ctx context.Context,
	sess contracts.Session,
	convID string,
	content string,
	contentType domain.ContentType,
	mediaURL string,
) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "FanoutService.Send", trace.WithAttributes(
		attribute.String("conv_id", convID),
		attribute.String("sender_id", sess.UserID()),
	))
	defer span.End()

	cid, err := uuid.Parse(convID)
	if err != nil {
		span.RecordError(err)
		return nil, domain.ErrInvalidConversationID
	}
	// Membership check aborts before persistence: no partial message.
	members, err := s.rooms.VerifyMember(ctx, cid, sess.UserID())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if contentType == "" {
		contentType = domain.ContentText
	}

	// One writer per conversation keeps seq assignment and broadcast in
	// the same order.
	unlock := s.locks.Lock("conv:" + convID)
	defer unlock()

	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: cid,
		SenderID:       sess.UserID(),
		Content:        content,
		ContentType:    contentType,
		MediaURL:       mediaURL,
		DeliveredTo:    make(map[string]time.Time),
		ReadBy:         make(map[string]time.Time),
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		s.log.ErrorContext(ctx, "fanout - persist failed", "conv_id", convID, "sender_id", sess.UserID(), "err", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
	}
	if err := s.convs.SetLatestMessage(ctx, cid, msg.ID); err != nil {
		// The message itself is committed; the conversation list just
		// lags until the next send.
		s.log.WarnContext(ctx, "fanout - latest message pointer update failed", "conv_id", convID, "err", err)
	}

	var offline []string
	now := time.Now()
	for _, recipient := range members {
		if recipient == msg.SenderID {
			continue
		}
		if !s.registry.IsUserOnline(recipient) {
			offline = append(offline, recipient)
			continue
		}
		if _, err := s.messages.AddDelivered(ctx, msg.ID, recipient, now); err != nil {
			s.log.WarnContext(ctx, "fanout - delivered mark failed", "message_id", msg.ID, "recipient", recipient, "err", err)
			continue
		}
		msg.DeliveredTo[recipient] = now
	}

	// The sender's other devices receive the message too; nobody is
	// excluded from the room broadcast.
	s.registry.Broadcast(ctx, convID, domain.MessageEvent{
		Type:    domain.TypeMessage,
		Message: wireMessage(msg),
	}, "")

	s.registry.SendToUser(ctx, msg.SenderID, domain.StatusEvent{
		Type:           domain.TypeMessageStatus,
		ConversationID: convID,
		Updates:        []domain.StatusUpdate{statusUpdate(msg, members)},
	})

	for _, recipient := range offline {
		go s.notifyOffline(context.WithoutCancel(ctx), recipient, msg)
	}

	span.SetAttributes(
		attribute.Int64("seq", msg.Seq),
		attribute.Int("delivered", len(msg.DeliveredTo)),
		attribute.Int("offline", len(offline)),
	)
	s.log.InfoContext(ctx, "fanout - message sent",
		"conv_id", convID, "message_id", msg.ID, "seq", msg.Seq,
		"delivered", len(msg.DeliveredTo), "offline", len(offline))
	return msg, nil
}

// notifyOffline is fire-and-forget: a notification failure never fails the
// send that triggered it.
func (s *FanoutService) notifyOffline(ctx context.Context, userID string, msg *domain.Message) {
	if err := s.notifier.Notify(ctx, userID, msg); err != nil {
		s.log.WarnContext(ctx, "fanout - offline notify failed", "recipient", userID, "message_id", msg.ID, "err", err)
	}
}

func wireMessage(msg *domain.Message) domain.MessagePayload {
	return domain.MessagePayload{
		ID:             msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		ContentType:    string(msg.ContentType),
		MediaURL:       msg.MediaURL,
		Seq:            msg.Seq,
		CreatedAt:      msg.CreatedAt,
	}
}
