package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Commandability/commandability-web-sub001/internal/adapter/outbound/realtime"
	"github.com/Commandability/commandability-web-sub001/internal/domain/auth"
	"github.com/Commandability/commandability-web-sub001/internal/domain/ratelimit"
	"github.com/Commandability/commandability-web-sub001/internal/domain/session"
	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

// ErrInvalidCredentials is returned by SignIn for an unknown email or a
// wrong secret.
var ErrInvalidCredentials = outbound.ErrInvalidCredentials

type authListener struct {
	queue   *realtime.Queue
	onNext  func(*session.Identity)
	onError func(error)
}

// AuthProvider is an in-memory auth provider over a fixed set of accounts.
// It holds one current identity, pushed to every listener in order on its
// own goroutine.
type AuthProvider struct {
	logger  *slog.Logger
	limiter ratelimit.RateLimiter
	limit   ratelimit.RateLimitConfig

	mu        sync.Mutex
	byEmail   map[string]auth.Account
	byID      map[string]auth.Account
	current   *session.Identity
	failure   error
	listeners map[string]*authListener
}

// AuthOption configures an AuthProvider.
type AuthOption func(*AuthProvider)

// WithAttemptLimit throttles SignIn (per email) and Reauthenticate (per
// identity) with limiter.
func WithAttemptLimit(limiter ratelimit.RateLimiter, cfg ratelimit.RateLimitConfig) AuthOption {
	return func(p *AuthProvider) {
		p.limiter = limiter
		p.limit = cfg
	}
}

// NewAuthProvider creates a provider with no current identity.
func NewAuthProvider(accounts []auth.Account, logger *slog.Logger, opts ...AuthOption) *AuthProvider {
	p := &AuthProvider{
		logger:    logger,
		byEmail:   make(map[string]auth.Account, len(accounts)),
		byID:      make(map[string]auth.Account, len(accounts)),
		listeners: make(map[string]*authListener),
	}
	for _, a := range accounts {
		p.byEmail[auth.NormalizeEmail(a.Identity.Email)] = a
		p.byID[a.Identity.ID] = a
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnIdentityChange implements outbound.AuthProvider. The current identity
// (or failure) is delivered asynchronously right after registration.
func (p *AuthProvider) OnIdentityChange(onNext func(*session.Identity), onError func(error)) func() {
	l := &authListener{queue: realtime.NewQueue(), onNext: onNext, onError: onError}
	id := uuid.NewString()

	p.mu.Lock()
	p.listeners[id] = l
	p.pushLocked(l)
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
		l.queue.Close()
	}
}

// pushLocked queues the current state for l. Caller must hold p.mu.
func (p *AuthProvider) pushLocked(l *authListener) {
	if p.failure != nil {
		err := p.failure
		l.queue.Push(func() { l.onError(err) })
		return
	}
	var identity *session.Identity
	if p.current != nil {
		c := *p.current
		identity = &c
	}
	l.queue.Push(func() { l.onNext(identity) })
}

func (p *AuthProvider) broadcastLocked() {
	for _, l := range p.listeners {
		p.pushLocked(l)
	}
}

// SignIn verifies email and secret and makes the account current.
func (p *AuthProvider) SignIn(ctx context.Context, email, secret string) (session.Identity, error) {
	email = auth.NormalizeEmail(email)
	if err := p.throttle(ctx, ratelimit.KeyTypeSignIn, email); err != nil {
		return session.Identity{}, err
	}

	p.mu.Lock()
	account, ok := p.byEmail[email]
	p.mu.Unlock()
	if !ok {
		return session.Identity{}, ErrInvalidCredentials
	}
	match, err := auth.VerifySecret(secret, account.SecretHash)
	if err != nil {
		return session.Identity{}, fmt.Errorf("verify secret: %w", err)
	}
	if !match {
		return session.Identity{}, ErrInvalidCredentials
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failure != nil {
		return session.Identity{}, p.failure
	}
	identity := account.Identity
	p.current = &identity
	p.broadcastLocked()
	p.logger.Info("signed in", "identity", identity.ID)
	return identity, nil
}

// SignOut clears the current identity.
func (p *AuthProvider) SignOut() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failure != nil || p.current == nil {
		return
	}
	p.logger.Info("signed out", "identity", p.current.ID)
	p.current = nil
	p.broadcastLocked()
}

// Fail puts the provider into an unrecoverable failure and reports err to
// every listener.
func (p *AuthProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failure != nil {
		return
	}
	p.failure = err
	p.broadcastLocked()
}

// Current returns the current identity, if any.
func (p *AuthProvider) Current() (session.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return session.Identity{}, false
	}
	return *p.current, true
}

// Reauthenticate implements outbound.AuthProvider.
func (p *AuthProvider) Reauthenticate(ctx context.Context, identity session.Identity, secret string) error {
	if err := p.throttle(ctx, ratelimit.KeyTypeReauth, identity.ID); err != nil {
		return err
	}

	p.mu.Lock()
	current := p.current
	account, ok := p.byID[identity.ID]
	p.mu.Unlock()

	if current == nil || current.ID != identity.ID || !ok {
		return outbound.ErrIdentityMismatch
	}
	match, err := auth.VerifySecret(secret, account.SecretHash)
	if err != nil {
		return fmt.Errorf("verify secret: %w", err)
	}
	if !match {
		return outbound.ErrWrongSecret
	}
	return nil
}

func (p *AuthProvider) throttle(ctx context.Context, keyType ratelimit.KeyType, value string) error {
	if p.limiter == nil || !p.limit.Enabled() {
		return nil
	}
	res, err := p.limiter.Allow(ctx, ratelimit.FormatKey(keyType, value), p.limit)
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if !res.Allowed {
		p.logger.Warn("attempt throttled", "kind", keyType, "retry_after", res.RetryAfter)
		return outbound.ErrTooManyRequests
	}
	return nil
}

// Close ends every listener and waits for their delivery goroutines.
func (p *AuthProvider) Close() {
	p.mu.Lock()
	listeners := p.listeners
	p.listeners = make(map[string]*authListener)
	p.mu.Unlock()

	for _, l := range listeners {
		l.queue.Close()
	}
	for _, l := range listeners {
		<-l.queue.Done()
	}
}

var _ outbound.AuthProvider = (*AuthProvider)(nil)
