package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const callbackNamespace = "scheduler_callback"

// keyValueStore is the part of a redis client the deduper uses.
type keyValueStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CallbackDeduper remembers scheduler message ids so a redelivered callback is
// dropped before it reaches the job ledger.
type CallbackDeduper struct {
	client keyValueStore
	ttl    time.Duration
}

func NewClient(addr, password string) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
}

func NewCallbackDeduper(client keyValueStore, ttl time.Duration) *CallbackDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CallbackDeduper{client: client, ttl: ttl}
}

// Claim reports whether messageID is seen for the first time within the TTL.
func (d *CallbackDeduper) Claim(ctx context.Context, messageID string) (bool, error) {
	return d.client.SetNX(ctx, key(messageID), time.Now().Unix(), d.ttl).Result()
}

// Release forgets messageID so the scheduler's retry of a failed callback is processed.
func (d *CallbackDeduper) Release(ctx context.Context, messageID string) error {
	return d.client.Del(ctx, key(messageID)).Err()
}

func key(messageID string) string {
	return callbackNamespace + ":" + messageID
}
