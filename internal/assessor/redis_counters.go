package assessor

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounters backs the call budget with Redis so the counters are shared
// across all workers. INCR + EXPIRE NX keeps the increment atomic and the
// bucket self-expiring.
type RedisCounters struct {
	client *redis.Client
}

// NewRedisCounters creates a counter store over an existing Redis client.
func NewRedisCounters(client *redis.Client) *RedisCounters {
	return &RedisCounters{client: client}
}

func (r *RedisCounters) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Ping verifies connectivity at startup.
func (r *RedisCounters) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
