package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

type bucket struct {
	count     int
	expiresAt time.Time
}

// MemoryStore keeps buckets in a process-local map. Stale buckets are
// never read again once their window passes; Sweep removes them so the
// map does not grow with every (key, window) pair ever seen.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]bucket
	now     func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]bucket),
		now:     time.Now,
	}
}

// WithClock overrides the time source. Test hook; returns the receiver
// for construction chaining.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Consume implements Store.
func (s *MemoryStore) Consume(ctx context.Context, key string, limit Limit) (Result, error) {
	if limit.Window <= 0 || limit.Max <= 0 {
		return Result{OK: true, Remaining: 0}, nil
	}
	now := s.now()
	idx := windowIndex(now, limit.Window)
	composite := key + ":" + strconv.FormatInt(idx, 10)

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[composite]
	if !ok {
		windowStart := time.UnixMilli(idx * limit.Window.Milliseconds())
		s.buckets[composite] = bucket{count: 1, expiresAt: windowStart.Add(limit.Window)}
		return Result{OK: true, Remaining: limit.Max - 1}, nil
	}
	if b.count >= limit.Max {
		return Result{OK: false, Remaining: 0}, nil
	}
	b.count++
	s.buckets[composite] = b
	return Result{OK: true, Remaining: limit.Max - b.count}, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string]bucket)
	return nil
}

// Sweep drops every bucket whose window ended before now and returns the
// number removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, b := range s.buckets {
		if now.After(b.expiresAt) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of live buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// StartSweeper evicts expired buckets every interval until ctx is done.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := s.Sweep(now); removed > 0 && logger != nil {
				logger.Debug("rate limit sweep", slog.Int("removed", removed))
			}
		}
	}
}

var _ Store = (*MemoryStore)(nil)
