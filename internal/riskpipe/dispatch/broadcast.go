package dispatch

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Broadcaster pushes alert payloads to real-time listeners. Best-effort by
// contract: the dispatcher logs and continues on failure.
type Broadcaster interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// RedisBroadcaster publishes over redis pub/sub.
type RedisBroadcaster struct {
	rdb *redis.Client
}

func NewRedisBroadcaster(addr string) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisBroadcasterFromClient wraps an existing client (tests).
func NewRedisBroadcasterFromClient(rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.rdb.Publish(ctx, topic, payload).Err()
}

func (b *RedisBroadcaster) Close() error { return b.rdb.Close() }
