package poller

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSeenCache is a SeenCache backed by a Redis SET with per-key TTL,
// usable when multiple poller replicas must share one dedup window. It
// trades the in-memory lruSet's strict LRU eviction for TTL-based expiry,
// which is the natural fit for a shared, replicated cache.
type RedisSeenCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	ctx    context.Context
}

// NewRedisSeenCache returns a RedisSeenCache. Entries expire after ttl,
// bounding memory the same way lruSet's capacity does.
func NewRedisSeenCache(ctx context.Context, client *redis.Client, keyPrefix string, ttl time.Duration) *RedisSeenCache {
	return &RedisSeenCache{client: client, prefix: keyPrefix, ttl: ttl, ctx: ctx}
}

func (r *RedisSeenCache) Contains(id string) bool {
	n, err := r.client.Exists(r.ctx, r.prefix+id).Result()
	if err != nil {
		// Fail open: treat a Redis error as "not seen" so a transient outage
		// degrades to re-dispatching alerts rather than silently dropping them.
		return false
	}
	return n > 0
}

func (r *RedisSeenCache) Add(id string) {
	r.client.Set(r.ctx, r.prefix+id, "1", r.ttl)
}
