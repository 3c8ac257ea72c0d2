package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"

	"sanuda/internal/core/contracts"
	"sanuda/internal/core/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("notification-worker")

// NotificationWorker drains the offline-notification stream and forwards each
// envelope to the push gateway. Entries are acknowledged after handling so a
// crash mid-push replays the entry to another consumer.
type NotificationWorker struct {
	log      *slog.Logger
	queue    contracts.MessageQueue
	presence contracts.PresenceStore
	push     *PushClient
	group    string
}

var _ contracts.AsyncWorker = (*NotificationWorker)(nil)

func NewNotificationWorker(
	log *slog.Logger,
	queue contracts.MessageQueue,
	presence contracts.PresenceStore,
	push *PushClient,
	group string,
) *NotificationWorker {
	return &NotificationWorker{
		log:      log,
		queue:    queue,
		presence: presence,
		push:     push,
		group:    group,
	}
}

func (w *NotificationWorker) Run(ctx context.Context, topic string) error {
	w.log.InfoContext(ctx, "notification worker - starting", "topic", topic, "group", w.group)
	return w.queue.SubscribeToStream(ctx, topic, w.group, func(ctx context.Context, messageID string, data []byte) error {
		if err := w.ProcessMessage(ctx, messageID, data); err != nil {
			return err
		}
		if err := w.queue.AcknowledgeMessage(ctx, topic, w.group, messageID); err != nil {
			return err
		}
		return w.queue.DeleteMessage(ctx, topic, messageID)
	})
}

// ProcessMessage pushes one envelope. A recipient who came back online while
// the entry sat in the stream is skipped: the catch-up pass already delivered
// the message to their live session.
func (w *NotificationWorker) ProcessMessage(ctx context.Context, messageID string, raw []byte) error {
	ctx, span := tracer.Start(ctx, "NotificationWorker.ProcessMessage", trace.WithAttributes(
		attribute.String("entry_id", messageID),
	))
	defer span.End()

	var env domain.NotifyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// Poison entry; ack-and-drop rather than replay forever.
		w.log.ErrorContext(ctx, "notification worker - malformed envelope", "entry_id", messageID, "err", err)
		span.RecordError(err)
		return nil
	}

	online, err := w.presence.ListOnline(ctx)
	if err == nil && slices.Contains(online, env.UserID) {
		w.log.DebugContext(ctx, "notification worker - recipient back online, skipping",
			"user_id", env.UserID, "message_id", env.MessageID)
		return nil
	}

	if err := w.push.Push(ctx, env); err != nil {
		span.RecordError(err)
		w.log.ErrorContext(ctx, "notification worker - push failed",
			"user_id", env.UserID, "message_id", env.MessageID, "err", err)
		return err
	}
	w.log.InfoContext(ctx, "notification worker - pushed",
		"user_id", env.UserID, "message_id", env.MessageID)
	return nil
}
