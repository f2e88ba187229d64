package ratelimit

import "context"

// RateLimiter spends attempts from per-key budgets. The in-memory
// implementation uses GCRA, so a throttled member regains attempts one at a
// time instead of all at once at a window boundary.
type RateLimiter interface {
	// Allow records an attempt on key (built with FormatKey) when the budget
	// has room, and reports the outcome either way.
	Allow(ctx context.Context, key string, config RateLimitConfig) (RateLimitResult, error)
}
