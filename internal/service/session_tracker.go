package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Commandability/commandability-web-sub001/internal/domain/session"
	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

// SessionTracker owns the process-wide session state. It registers exactly
// one listener with the auth provider and maps its callbacks onto
// session.State transitions.
type SessionTracker struct {
	provider outbound.AuthProvider
	logger   *slog.Logger
	metrics  *Metrics

	// notifyMu serializes transition+onChange so observers see transitions
	// in the order they were applied.
	notifyMu sync.Mutex

	mu          sync.Mutex
	state       session.State
	started     bool
	cancelled   bool
	onChange    func(session.State)
	unsubscribe func()
	// changed is closed and replaced on every transition.
	changed chan struct{}

	fatal     chan error
	fatalOnce sync.Once
}

// NewSessionTracker creates a tracker in the pending state. metrics may be nil.
func NewSessionTracker(provider outbound.AuthProvider, logger *slog.Logger, metrics *Metrics) *SessionTracker {
	t := &SessionTracker{
		provider: provider,
		logger:   logger,
		metrics:  metrics,
		state:    session.Pending(),
		changed:  make(chan struct{}),
		fatal:    make(chan error, 1),
	}
	metrics.sessionStatus(session.StatusPending)
	return t
}

// Start registers the provider listener. onChange (may be nil) receives a
// copy of every new state. Start registers at most once per tracker; later
// calls return a no-op cancel. The returned cancel is idempotent.
func (t *SessionTracker) Start(onChange func(session.State)) (cancel func()) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		t.logger.Warn("session tracker already started")
		return func() {}
	}
	t.started = true
	t.onChange = onChange
	t.mu.Unlock()

	unsubscribe := t.provider.OnIdentityChange(
		func(identity *session.Identity) {
			t.handle(session.IdentityChanged(identity))
		},
		func(err error) {
			t.handle(session.ProviderFailed(err))
		},
	)

	t.mu.Lock()
	if t.cancelled {
		// Cancelled while registering.
		t.mu.Unlock()
		unsubscribe()
		return t.Cancel
	}
	t.unsubscribe = unsubscribe
	t.mu.Unlock()

	return t.Cancel
}

// Cancel deregisters the provider listener. Calling it more than once is
// a no-op. The last observed state is kept.
func (t *SessionTracker) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (t *SessionTracker) handle(ev session.Event) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	prev := t.state
	next, changed := prev.Apply(ev)
	if !changed {
		t.mu.Unlock()
		return
	}
	t.state = next
	close(t.changed)
	t.changed = make(chan struct{})
	onChange := t.onChange
	t.mu.Unlock()

	t.metrics.sessionStatus(next.Status)
	switch next.Status {
	case session.StatusRejected:
		t.logger.Error("session rejected", "error", next.Err)
		t.fatalOnce.Do(func() {
			t.fatal <- next.Fatal()
		})
	case session.StatusResolved:
		if next.Identity != nil {
			t.logger.Info("session resolved", "identity", next.Identity.ID)
		} else {
			t.logger.Info("session resolved", "identity", nil)
		}
	}

	if onChange != nil {
		onChange(next.Clone())
	}
}

// State returns a copy of the current state.
func (t *SessionTracker) State() session.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}

// Wait blocks until the state leaves pending or ctx is done.
func (t *SessionTracker) Wait(ctx context.Context) (session.State, error) {
	for {
		t.mu.Lock()
		if t.state.Status != session.StatusPending {
			st := t.state.Clone()
			t.mu.Unlock()
			return st, nil
		}
		changed := t.changed
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return session.State{}, ctx.Err()
		case <-changed:
		}
	}
}

// Fatal delivers the wrapped session.ErrRejected once when the session is
// rejected. It is never closed.
func (t *SessionTracker) Fatal() <-chan error {
	return t.fatal
}
