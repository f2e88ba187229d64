// Package subscription contains the domain types of the subscription
// aggregator: named specs, per-name lifecycle states, and the combined
// aggregate state.
package subscription

import (
	"errors"
	"fmt"

	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
)

// Sentinel errors.
var (
	// ErrDuplicateName is returned when two specs in one list share a name.
	ErrDuplicateName = errors.New("duplicate subscription name")
	// ErrEmptyName is returned for a spec without a name.
	ErrEmptyName = errors.New("subscription name is required")
)

// Status is the lifecycle phase of one subscription or of the aggregate.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusRejected Status = "rejected"
)

// severity orders statuses for combination: rejected > pending > resolved.
func (s Status) severity() int {
	switch s {
	case StatusRejected:
		return 2
	case StatusPending:
		return 1
	default:
		return 0
	}
}

// Spec names one realtime subscription. A zero Reference means the
// subscription is not subscribable yet (for example, awaiting identity).
type Spec struct {
	Name      string             `json:"name"`
	Reference document.Reference `json:"reference"`
	Options   document.Options   `json:"options"`
}

// ValidateSpecs checks that every spec has a name and that names are unique.
func ValidateSpecs(specs []Spec) error {
	seen := make(map[string]struct{}, len(specs))
	for i, spec := range specs {
		if spec.Name == "" {
			return fmt.Errorf("specs[%d]: %w", i, ErrEmptyName)
		}
		if _, dup := seen[spec.Name]; dup {
			return fmt.Errorf("specs[%d]: %w: %s", i, ErrDuplicateName, spec.Name)
		}
		seen[spec.Name] = struct{}{}
	}
	return nil
}

// State is the lifecycle of one named subscription.
type State struct {
	Name       string             `json:"name"`
	Status     Status             `json:"status"`
	Data       *document.Snapshot `json:"data"`
	Err        error              `json:"-"`
	Generation uint64             `json:"generation"`
}

// Clone returns a copy sharing nothing mutable with s.
func (s State) Clone() State {
	if s.Data != nil {
		snap := s.Data.Clone()
		s.Data = &snap
	}
	return s
}

// Aggregate is the combined view of a set of subscriptions.
type Aggregate struct {
	Entries map[string]State `json:"entries"`
	// Names preserves the caller's spec order.
	Names []string `json:"names"`
	// Status is the combined status, see Combine.
	Status Status `json:"status"`
	// Err is the error of the first rejected entry in spec order.
	Err error `json:"-"`
}

// Lookup returns the state of one named subscription.
func (a Aggregate) Lookup(name string) (State, bool) {
	st, ok := a.Entries[name]
	return st, ok
}

// Data returns the snapshot of one named subscription, or nil when the
// entry is absent, not yet resolved, or has a null reference.
func (a Aggregate) Data(name string) *document.Snapshot {
	st, ok := a.Entries[name]
	if !ok || st.Status != StatusResolved {
		return nil
	}
	return st.Data
}

// Combine derives the combined status over the full entry set, in the
// order given by names. An absent entry counts as pending. The first
// rejected entry's error is returned.
func Combine(names []string, entries map[string]State) (Status, error) {
	combined := StatusResolved
	var firstErr error
	for _, name := range names {
		st, ok := entries[name]
		status := StatusPending
		if ok {
			status = st.Status
		}
		if status == StatusRejected && firstErr == nil {
			firstErr = st.Err
		}
		if status.severity() > combined.severity() {
			combined = status
		}
	}
	return combined, firstErr
}
