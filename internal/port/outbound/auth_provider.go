// Package outbound defines the outbound port interfaces for the backend
// services the sync core depends on: the auth provider, the realtime
// document store, and the object store.
package outbound

import (
	"context"
	"errors"

	"github.com/Commandability/commandability-web-sub001/internal/domain/session"
)

// Reauthentication errors. Adapters wrap them; callers match with errors.Is.
var (
	// ErrWrongSecret means the supplied secret does not match the identity.
	ErrWrongSecret = errors.New("wrong secret")
	// ErrTooManyRequests means reauthentication attempts are throttled.
	ErrTooManyRequests = errors.New("too many requests")
	// ErrIdentityMismatch means the identity is not the provider's current one.
	ErrIdentityMismatch = errors.New("identity mismatch")
	// ErrInvalidCredentials means sign-in failed on an unknown email or a
	// wrong secret.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AuthProvider is the outbound port for the external auth provider.
type AuthProvider interface {
	// OnIdentityChange registers a listener. The provider calls onNext with
	// the current identity (nil when signed out) once after registration
	// and again on every change, or onError on an unrecoverable failure.
	// Callbacks may arrive on any goroutine. The returned function removes
	// the listener.
	OnIdentityChange(onNext func(*session.Identity), onError func(error)) (unsubscribe func())

	// Reauthenticate re-proves identity's credentials with a freshly
	// supplied secret.
	Reauthenticate(ctx context.Context, identity session.Identity, secret string) error
}
