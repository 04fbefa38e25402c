package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client)
}

func TestRedisStoreWindowExhaustion(t *testing.T) {
	ctx := context.Background()
	store := newRedisStore(t)
	store.now = fixedClock(time.UnixMilli(1_700_000_000_000))
	limit := Limit{Window: time.Minute, Max: 2}

	for i := 0; i < 2; i++ {
		res, err := store.Consume(ctx, "auth:client", limit)
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		if !res.OK {
			t.Fatalf("consume %d rejected before max", i)
		}
	}
	res, err := store.Consume(ctx, "auth:client", limit)
	if err != nil {
		t.Fatalf("consume over max: %v", err)
	}
	if res.OK || res.Remaining != 0 {
		t.Fatalf("expected rejection with remaining 0, got %+v", res)
	}
}

func TestRedisStoreFreshWindow(t *testing.T) {
	ctx := context.Background()
	store := newRedisStore(t)
	start := time.UnixMilli(1_700_000_000_000)
	store.now = fixedClock(start)
	limit := Limit{Window: time.Minute, Max: 1}

	if res, _ := store.Consume(ctx, "k", limit); !res.OK {
		t.Fatalf("first consume rejected")
	}
	store.now = fixedClock(start.Add(time.Minute))
	if res, err := store.Consume(ctx, "k", limit); err != nil || !res.OK {
		t.Fatalf("new window rejected: res=%+v err=%v", res, err)
	}
}

func TestRedisStoreReset(t *testing.T) {
	ctx := context.Background()
	store := newRedisStore(t)
	limit := Limit{Window: time.Minute, Max: 1}
	_, _ = store.Consume(ctx, "k", limit)
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if res, _ := store.Consume(ctx, "k", limit); !res.OK {
		t.Fatalf("consume after reset rejected")
	}
}
