package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"sanuda/internal/core/contracts"
	"sanuda/internal/core/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("core-services")

// ManagerService orchestrates one connection's lifecycle and dispatches its
// inbound events to the components. The typed switch replaces per-socket
// callback registration: every event type maps to exactly one handler and
// every failure maps to one error event on the originating session.
type ManagerService struct {
	log      *slog.Logger
	registry contracts.Registry
	rooms    *RoomService
	typing   *TypingService
	fanout   *FanoutService
	receipts *ReceiptService
	cursors  *CursorService
	presence *PresenceTracker
}

func NewManagerService(
	log *slog.Logger,
	registry contracts.Registry,
	rooms *RoomService,
	typing *TypingService,
	fanout *FanoutService,
	receipts *ReceiptService,
	cursors *CursorService,
	presence *PresenceTracker,
) *ManagerService {
	return &ManagerService{
		log:      log,
		registry: registry,
		rooms:    rooms,
		typing:   typing,
		fanout:   fanout,
		receipts: receipts,
		cursors:  cursors,
		presence: presence,
	}
}

// HandleConnect registers the verified connection and runs the presence
// Online transition (with catch-up when this is the user's first session).
func (m *ManagerService) HandleConnect(ctx context.Context, userID string, c contracts.Client) contracts.Session {
	sess := m.registry.Register(userID, c)
	m.presence.HandleConnect(ctx, userID)
	return sess
}

// HandleDisconnect removes the session immediately; only the offline
// broadcast is delayed, behind the presence debounce.
func (m *ManagerService) HandleDisconnect(ctx context.Context, sess contracts.Session) {
	m.registry.Unregister(sess)
	m.presence.HandleDisconnect(ctx, sess.UserID())
}

// DispatchLoop drains one connection's inbound frames in arrival order.
// A single consumer per connection keeps same-connection operations ordered:
// two sends from one device reach the per-conversation lock in emission
// order, and a typing_stop can never overtake its typing_start. Returns when
// ctx is cancelled or the frame channel is closed.
func (m *ManagerService) DispatchLoop(ctx context.Context, sess contracts.Session, frames <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-frames:
			if !ok {
				return
			}
			m.Dispatch(ctx, sess, data)
		}
	}
}

// Dispatch handles one inbound frame from the session.
func (m *ManagerService) Dispatch(ctx context.Context, sess contracts.Session, raw []byte) {
	var ev domain.ClientEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		m.sendError(ctx, sess, domain.CodeBadRequest, "malformed event")
		return
	}
	ctx, span := tracer.Start(ctx, "ManagerService.Dispatch", trace.WithAttributes(
		attribute.String("event_type", ev.Type),
		attribute.String("user_id", sess.UserID()),
	))
	defer span.End()

	switch ev.Type {
	case domain.EventJoin:
		if err := m.rooms.Join(ctx, sess, ev.ConversationID); err != nil {
			span.RecordError(err)
			m.sendError(ctx, sess, errorCode(err), err.Error())
		}
	case domain.EventLeave:
		m.rooms.Leave(ctx, sess, ev.ConversationID)
	case domain.EventSend:
		_, err := m.fanout.Send(ctx, sess, ev.ConversationID, ev.Content, domain.ContentType(ev.ContentType), ev.MediaURL)
		if err != nil {
			span.RecordError(err)
			m.sendError(ctx, sess, errorCode(err), err.Error())
		}
	case domain.EventTypingStart:
		m.typing.StartTyping(ctx, sess, ev.ConversationID)
	case domain.EventTypingStop:
		m.typing.StopTyping(ctx, sess, ev.ConversationID)
	case domain.EventMarkRead:
		m.handleMarkRead(ctx, sess, ev)
	case domain.EventMarkAllRead:
		m.handleMarkAllRead(ctx, sess, ev)
	default:
		m.sendError(ctx, sess, domain.CodeBadRequest, "unknown event type: "+ev.Type)
	}
}

func (m *ManagerService) handleMarkRead(ctx context.Context, sess contracts.Session, ev domain.ClientEvent) {
	msgID, err := uuid.Parse(ev.MessageID)
	if err != nil {
		m.sendError(ctx, sess, domain.CodeBadRequest, "invalid message id")
		return
	}
	msg, err := m.receipts.MarkRead(ctx, msgID, sess.UserID())
	if err != nil {
		m.log.ErrorContext(ctx, "manager - mark read failed", "message_id", ev.MessageID, "user_id", sess.UserID(), "err", err)
		if errors.Is(err, domain.ErrNotAMember) {
			m.sendError(ctx, sess, domain.CodeNotAMember, err.Error())
		}
		return
	}
	if err := m.cursors.Advance(ctx, sess.UserID(), msg.ConversationID, msg.ID); err != nil {
		m.log.WarnContext(ctx, "manager - cursor advance failed", "message_id", ev.MessageID, "user_id", sess.UserID(), "err", err)
	}
}

func (m *ManagerService) handleMarkAllRead(ctx context.Context, sess contracts.Session, ev domain.ClientEvent) {
	convID, err := uuid.Parse(ev.ConversationID)
	if err != nil {
		m.sendError(ctx, sess, domain.CodeBadRequest, "invalid conversation id")
		return
	}
	msgID, err := uuid.Parse(ev.MessageID)
	if err != nil {
		m.sendError(ctx, sess, domain.CodeBadRequest, "invalid message id")
		return
	}
	if err := m.receipts.MarkAllReadUpTo(ctx, convID, sess.UserID(), msgID); err != nil {
		m.log.ErrorContext(ctx, "manager - mark all read failed", "conv_id", ev.ConversationID, "user_id", sess.UserID(), "err", err)
		if errors.Is(err, domain.ErrNotAMember) {
			m.sendError(ctx, sess, domain.CodeNotAMember, err.Error())
		}
		return
	}
	if err := m.cursors.Advance(ctx, sess.UserID(), convID, msgID); err != nil {
		m.log.WarnContext(ctx, "manager - cursor advance failed", "conv_id", ev.ConversationID, "user_id", sess.UserID(), "err", err)
	}
}

func (m *ManagerService) sendError(ctx context.Context, sess contracts.Session, code, msg string) {
	_ = sess.Send(ctx, domain.ErrorEvent{
		Type:    domain.TypeError,
		Code:    code,
		Message: msg,
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotAMember):
		return domain.CodeNotAMember
	case errors.Is(err, domain.ErrPersistenceFailed):
		return domain.CodePersistenceFailed
	default:
		return domain.CodeBadRequest
	}
}
