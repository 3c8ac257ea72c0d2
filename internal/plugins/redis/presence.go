package redis

import (
	"context"
	"strconv"
	"time"

	"sanuda/internal/core/contracts"

	"github.com/redis/go-redis/v9"
)

const (
	onlineKey    = "presence:online"
	lastSeenKey  = "presence:last_seen"
	lastSeenKeep = 30 * 24 * time.Hour
)

// PresenceMirror keeps confirmed presence transitions in a sorted set scored
// by the transition timestamp. Entries older than the freshness window count
// as offline, so a crashed instance cannot leave users online forever.
type PresenceMirror struct {
	client    *redis.Client
	onlineTTL time.Duration
}

var _ contracts.PresenceStore = (*PresenceMirror)(nil)

func NewPresenceMirror(client *redis.Client, onlineTTL time.Duration) *PresenceMirror {
	return &PresenceMirror{client: client, onlineTTL: onlineTTL}
}

func (p *PresenceMirror) SetOnline(ctx context.Context, userID string, at time.Time) error {
	return p.client.ZAdd(ctx, onlineKey, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: userID,
	}).Err()
}

func (p *PresenceMirror) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	pipe := p.client.TxPipeline()
	pipe.ZRem(ctx, onlineKey, userID)
	pipe.HSet(ctx, lastSeenKey, userID, lastSeen.UnixMilli())
	pipe.Expire(ctx, lastSeenKey, lastSeenKeep)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *PresenceMirror) ListOnline(ctx context.Context) ([]string, error) {
	cutoff := time.Now().Add(-p.onlineTTL).UnixMilli()
	return p.client.ZRangeByScore(ctx, onlineKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff, 10),
		Max: "+inf",
	}).Result()
}
