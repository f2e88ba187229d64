// Package memory provides in-memory implementations of the outbound ports
// for development, tests, and single-node deployments.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Commandability/commandability-web-sub001/internal/domain/ratelimit"
)

// RateLimiter implements ratelimit.RateLimiter using GCRA in memory.
// Thread-safe. A background cleanup goroutine, started with StartCleanup,
// bounds memory by dropping idle keys.
type RateLimiter struct {
	cells           map[string]time.Time // theoretical arrival time per key
	mu              sync.Mutex
	now             func() time.Time
	logger          *slog.Logger
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	maxTTL          time.Duration
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterClock overrides the time source.
func WithRateLimiterClock(now func() time.Time) RateLimiterOption {
	return func(r *RateLimiter) { r.now = now }
}

// WithCleanup sets how often idle keys are swept and how long a key may
// stay idle.
func WithCleanup(interval, maxTTL time.Duration) RateLimiterOption {
	return func(r *RateLimiter) {
		r.cleanupInterval = interval
		r.maxTTL = maxTTL
	}
}

// NewRateLimiter creates an in-memory rate limiter. Defaults: cleanup every
// 5 minutes, idle keys dropped after 1 hour.
func NewRateLimiter(logger *slog.Logger, opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{
		cells:           make(map[string]time.Time),
		now:             time.Now,
		logger:          logger,
		stopChan:        make(chan struct{}),
		cleanupInterval: 5 * time.Minute,
		maxTTL:          time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allow checks whether an event is allowed under config and records it.
func (r *RateLimiter) Allow(_ context.Context, key string, config ratelimit.RateLimitConfig) (ratelimit.RateLimitResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if config.Rate <= 0 {
		config.Rate = 1
	}
	emission := config.Period / time.Duration(config.Rate)
	if config.Burst <= 0 {
		config.Burst = config.Rate
	}
	burstOffset := time.Duration(config.Burst) * emission

	tat, exists := r.cells[key]
	if !exists || tat.Before(now) {
		tat = now
	}

	// A key may run at most burstOffset ahead of now, counting this event.
	allowAt := tat.Add(emission - burstOffset)
	if now.Before(allowAt) {
		return ratelimit.RateLimitResult{
			Allowed:    false,
			RetryAfter: allowAt.Sub(now),
			ResetAfter: tat.Sub(now),
		}, nil
	}

	newTAT := tat.Add(emission)
	r.cells[key] = newTAT

	remaining := int((burstOffset - newTAT.Sub(now)) / emission)
	remaining = max(0, min(remaining, config.Burst))

	return ratelimit.RateLimitResult{
		Allowed:    true,
		Remaining:  remaining,
		ResetAfter: newTAT.Sub(now),
	}, nil
}

// StartCleanup starts the background sweep. It stops when ctx is done or
// Stop is called.
func (r *RateLimiter) StartCleanup(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.maxTTL)
	cleaned := 0
	for key, tat := range r.cells {
		if tat.Before(cutoff) {
			delete(r.cells, key)
			cleaned++
		}
	}
	if cleaned > 0 {
		r.logger.Debug("rate limiter cleanup completed",
			"cleaned_keys", cleaned,
			"remaining_keys", len(r.cells))
	}
}

// Stop stops the cleanup goroutine and waits for it to exit. Safe to call
// multiple times.
func (r *RateLimiter) Stop() {
	r.once.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Size returns the number of tracked keys.
func (r *RateLimiter) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cells)
}

var _ ratelimit.RateLimiter = (*RateLimiter)(nil)
