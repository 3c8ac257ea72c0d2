package redis

import (
	"context"
	"encoding/json"
	"time"

	"sanuda/internal/core/contracts"
	"sanuda/internal/core/domain"
)

// StreamNotifier publishes offline-notification envelopes onto the notify
// stream instead of pushing directly, so delivery retries live in the worker
// and never block the send path.
type StreamNotifier struct {
	queue contracts.MessageQueue
	topic string
}

var _ contracts.OfflineNotifier = (*StreamNotifier)(nil)

func NewStreamNotifier(queue contracts.MessageQueue, topic string) *StreamNotifier {
	return &StreamNotifier{queue: queue, topic: topic}
}

func (n *StreamNotifier) Notify(ctx context.Context, userID string, msg *domain.Message) error {
	payload, err := json.Marshal(domain.NotifyEnvelope{
		UserID:         userID,
		MessageID:      msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		ContentType:    string(msg.ContentType),
		QueuedAt:       time.Now(),
	})
	if err != nil {
		return err
	}
	return n.queue.PublishToStream(ctx, n.topic, payload)
}
