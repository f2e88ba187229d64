// Package session models the lifecycle of the current identity: whether it
// is still being resolved, known, or unrecoverably failed.
package session

import (
	"errors"
	"fmt"
)

// Status is the lifecycle phase of a session.
type Status string

const (
	// StatusPending means the auth provider has not reported yet.
	StatusPending Status = "pending"
	// StatusResolved means the provider reported an identity (possibly none).
	StatusResolved Status = "resolved"
	// StatusRejected means the provider failed. Terminal.
	StatusRejected Status = "rejected"
)

// ErrRejected marks the fatal session failure. Errors surfaced to the
// process-level handler wrap it together with the provider error.
var ErrRejected = errors.New("session rejected")

// Identity is an authenticated principal.
type Identity struct {
	// ID is the stable unique id of the principal.
	ID string `json:"id" validate:"required"`
	// Email is the credential handle used for reauthentication.
	Email string `json:"email" validate:"omitempty,email"`
	// DisplayName is informational only.
	DisplayName string `json:"display_name,omitempty"`
}

// State is the observable session state. Outside pending exactly one of
// Identity/Err is meaningful; a resolved state with a nil Identity means
// signed out.
type State struct {
	Status   Status    `json:"status"`
	Identity *Identity `json:"identity"`
	Err      error     `json:"-"`
}

// Pending returns the initial state.
func Pending() State {
	return State{Status: StatusPending}
}

// SignedIn reports whether the state carries an identity.
func (s State) SignedIn() bool {
	return s.Status == StatusResolved && s.Identity != nil
}

// Fatal returns the error to surface to the top-level failure handler, or
// nil when the state is not rejected.
func (s State) Fatal() error {
	if s.Status != StatusRejected {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRejected, s.Err)
}

// Clone returns a copy that shares nothing mutable with s.
func (s State) Clone() State {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	return s
}

// Equal reports whether two states describe the same status and identity.
func (s State) Equal(other State) bool {
	if s.Status != other.Status || !errors.Is(s.Err, other.Err) {
		return false
	}
	switch {
	case s.Identity == nil && other.Identity == nil:
		return true
	case s.Identity == nil || other.Identity == nil:
		return false
	default:
		return *s.Identity == *other.Identity
	}
}
