package redis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"sanuda/internal/core/contracts"

	"github.com/redis/go-redis/v9"
)

const (
	streamMaxLen  = 10000
	readBlock     = 5 * time.Second
	readBatchSize = 32
)

// StreamQueue implements the reliable-stream boundary on Redis Streams with
// consumer groups. Entries survive process restarts until acknowledged.
type StreamQueue struct {
	client   *redis.Client
	log      *slog.Logger
	consumer string
}

var _ contracts.MessageQueue = (*StreamQueue)(nil)

func NewStreamQueue(client *redis.Client, log *slog.Logger, consumer string) *StreamQueue {
	return &StreamQueue{client: client, log: log, consumer: consumer}
}

func (q *StreamQueue) PublishToStream(ctx context.Context, topic string, payload []byte) error {
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"data": payload},
	}).Err()
}

// SubscribeToStream creates the consumer group if needed and launches the
// read loop. The loop stops when ctx is cancelled.
func (q *StreamQueue) SubscribeToStream(ctx context.Context, topic, group string, handler func(ctx context.Context, messageID string, data []byte) error) error {
	err := q.client.XGroupCreateMkStream(ctx, topic, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	go q.readLoop(ctx, topic, group, handler)
	return nil
}

func (q *StreamQueue) readLoop(ctx context.Context, topic, group string, handler func(ctx context.Context, messageID string, data []byte) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: q.consumer,
			Streams:  []string{topic, ">"},
			Count:    readBatchSize,
			Block:    readBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.ErrorContext(ctx, "stream queue - read failed", "topic", topic, "err", err)
			time.Sleep(time.Second)
			continue
		}
		for _, stream := range streams {
			for _, entry := range stream.Messages {
				data, _ := entry.Values["data"].(string)
				if err := handler(ctx, entry.ID, []byte(data)); err != nil {
					q.log.ErrorContext(ctx, "stream queue - handler failed",
						"topic", topic, "entry_id", entry.ID, "err", err)
				}
			}
		}
	}
}

func (q *StreamQueue) AcknowledgeMessage(ctx context.Context, topic, group, messageID string) error {
	return q.client.XAck(ctx, topic, group, messageID).Err()
}

func (q *StreamQueue) DeleteMessage(ctx context.Context, topic, messageID string) error {
	return q.client.XDel(ctx, topic, messageID).Err()
}

func (q *StreamQueue) DeleteStream(ctx context.Context, topic string) error {
	return q.client.Del(ctx, topic).Err()
}
