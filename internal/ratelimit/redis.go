package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// RedisStore counts windows in Redis so the ceiling applies across every
// instance sharing the client. Buckets expire with their window; Redis
// handles eviction.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Consume implements Store. The counter is incremented first and the
// decision read from the resulting value; a rejected request may leave
// the stored count above Max, which is harmless because the key embeds
// the window index and expires with it.
func (s *RedisStore) Consume(ctx context.Context, key string, limit Limit) (Result, error) {
	if limit.Window <= 0 || limit.Max <= 0 {
		return Result{OK: true, Remaining: 0}, nil
	}
	idx := windowIndex(s.now(), limit.Window)
	composite := redisKeyPrefix + key + ":" + strconv.FormatInt(idx, 10)

	count, err := s.client.Incr(ctx, composite).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: incr %s: %w", key, err)
	}
	if count == 1 {
		// Two windows of grace so a straggling read near the boundary
		// still sees the bucket before Redis drops it.
		if err := s.client.PExpire(ctx, composite, 2*limit.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("ratelimit: pexpire %s: %w", key, err)
		}
	}
	remaining := limit.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{OK: count <= int64(limit.Max), Remaining: remaining}, nil
}

// Reset implements Store by deleting every rate-limit key.
func (s *RedisStore) Reset(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("ratelimit: reset: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("ratelimit: reset scan: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
