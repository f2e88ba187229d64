package session

import "errors"

// Event is one auth provider notification.
type Event struct {
	identity *Identity
	err      error
}

// IdentityChanged is the event of a successful provider callback. A nil
// identity means signed out.
func IdentityChanged(identity *Identity) Event {
	if identity != nil {
		id := *identity
		identity = &id
	}
	return Event{identity: identity}
}

// ProviderFailed is the event of a failing provider callback.
func ProviderFailed(err error) Event {
	if err == nil {
		err = errors.New("auth provider reported an unspecified failure")
	}
	return Event{err: err}
}

// Apply returns the state after ev and whether the state changed.
//
//	pending  + success -> resolved(identity)
//	pending  + failure -> rejected(err)
//	resolved + success -> resolved(identity')
//	resolved + failure -> rejected(err)
//	rejected + any     -> rejected (unchanged)
func (s State) Apply(ev Event) (State, bool) {
	if s.Status == StatusRejected {
		return s, false
	}
	var next State
	if ev.err != nil {
		next = State{Status: StatusRejected, Err: ev.err}
	} else {
		next = State{Status: StatusResolved, Identity: ev.identity}
	}
	if next.Equal(s) {
		return s, false
	}
	return next, true
}
