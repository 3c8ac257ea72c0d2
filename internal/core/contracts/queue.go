package contracts

import "context"

// MessageQueue is the reliable-stream boundary used for offline
// notifications: the fan-out pipeline publishes, the notification worker
// consumes with a consumer group.
type MessageQueue interface {
	PublishToStream(ctx context.Context, topic string, payload []byte) error
	// SubscribeToStream starts a consumer-group read loop for the topic and
	// invokes handler for each entry. Returns after the loop is launched.
	SubscribeToStream(ctx context.Context, topic, group string, handler func(ctx context.Context, messageID string, data []byte) error) error
	AcknowledgeMessage(ctx context.Context, topic, group, messageID string) error
	DeleteMessage(ctx context.Context, topic, messageID string) error
	DeleteStream(ctx context.Context, topic string) error
}
