// Package ratelimit holds the throttling types the auth provider uses to
// slow down secret guessing: interactive sign-ins per email and
// reauthentications before a deletion per identity.
package ratelimit

import (
	"fmt"
	"time"
)

// RateLimitConfig is the attempt budget for one key: Rate attempts per
// Period, with up to Burst attempts back to back.
// A zero Rate or Period disables throttling.
type RateLimitConfig struct {
	Rate   int
	Burst  int
	Period time.Duration
}

// Enabled reports whether the config limits anything.
func (c RateLimitConfig) Enabled() bool {
	return c.Rate > 0 && c.Period > 0
}

// RateLimitResult is the outcome of one attempt.
type RateLimitResult struct {
	Allowed bool

	// Remaining attempts before the key is throttled.
	Remaining int

	// RetryAfter is how long a throttled caller must wait. Zero when allowed.
	RetryAfter time.Duration

	// ResetAfter is how long until the full burst is available again.
	ResetAfter time.Duration
}

// KeyType separates the attempt budgets of sign-in and reauthentication,
// so a member locked out of one can still use the other.
type KeyType string

const (
	// KeyTypeReauth keys on the identity ID.
	KeyTypeReauth KeyType = "reauth"

	// KeyTypeSignIn keys on the normalized email.
	KeyTypeSignIn KeyType = "signin"
)

const keyPrefix = "ratelimit"

// FormatKey builds the limiter key for one budget, e.g.
// FormatKey(KeyTypeReauth, "u1") is "ratelimit:reauth:u1".
func FormatKey(keyType KeyType, value string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, keyType, value)
}
