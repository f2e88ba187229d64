// Package inbound defines the inbound port interfaces for the sync core.
// Inbound adapters (HTTP, CLI) call these interfaces.
package inbound

import (
	"context"
	"errors"

	"github.com/Commandability/commandability-web-sub001/internal/domain/deletion"
	"github.com/Commandability/commandability-web-sub001/internal/domain/session"
	"github.com/Commandability/commandability-web-sub001/internal/domain/subscription"
)

// ErrSignedOut is returned for operations that need a signed-in identity.
var ErrSignedOut = errors.New("no identity signed in")

// SyncService is the read side of the sync core plus the deletion entry
// point.
type SyncService interface {
	Session() session.State
	Aggregate() subscription.Aggregate
	// Stream delivers the current aggregate, then every change. The returned
	// function releases the stream.
	Stream(buffer int) (<-chan subscription.Aggregate, func())
	DeleteReports(ctx context.Context, secret string, ids []string, all bool) (*deletion.Result, error)
}

// SessionControl signs the process identity in and out.
type SessionControl interface {
	SignIn(ctx context.Context, email, secret string) (session.Identity, error)
	SignOut()
}

// Server is a long-running inbound adapter.
type Server interface {
	// Start blocks until ctx is cancelled or the server fails.
	Start(ctx context.Context) error
	Close() error
}
