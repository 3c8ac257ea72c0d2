package domain

import "time"

// NotifyEnvelope is the offline-notification payload carried on the notify
// stream from the fan-out pipeline to the notification worker.
type NotifyEnvelope struct {
	UserID         string    `json:"userId"`
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	ContentType    string    `json:"contentType"`
	QueuedAt       time.Time `json:"queuedAt"`
}
