package contracts

import "context"

// AsyncWorker consumes a stream partition until its context is cancelled.
type AsyncWorker interface {
	Run(ctx context.Context, topic string) error
	ProcessMessage(ctx context.Context, messageID string, raw []byte) error
}
