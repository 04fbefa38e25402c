// Package ratelimit implements fixed-window request counting. A window
// boundary is floor(now / window); the bucket key embeds the window index
// so a new window always starts a fresh counter instead of decaying an
// old one. The classic boundary burst (up to 2x max across a boundary) is
// an accepted tradeoff for O(1) per-key accounting.
package ratelimit

import (
	"context"
	"time"
)

// Limit describes a fixed-window budget.
type Limit struct {
	Window time.Duration
	Max    int
}

// Result reports the outcome of a consumption attempt.
type Result struct {
	OK        bool
	Remaining int
}

// Store counts consumptions per (key, window). Implementations must make
// concurrent increments to the same bucket atomic so the Max ceiling
// holds under concurrent load.
//
// A single in-process store bounds each instance independently: a fleet
// of N instances behind a load balancer multiplies the effective ceiling
// by N. Use the Redis store when a fleet-wide ceiling is required.
type Store interface {
	// Consume takes one unit from the bucket for key in the current
	// window, creating the bucket at count 1 on first use. Once the
	// count reaches the limit further consumption is rejected without
	// incrementing.
	Consume(ctx context.Context, key string, limit Limit) (Result, error)
	// Reset clears all buckets. Test hook, not used in request flow.
	Reset(ctx context.Context) error
}

func windowIndex(now time.Time, window time.Duration) int64 {
	return now.UnixMilli() / window.Milliseconds()
}
