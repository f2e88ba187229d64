package service

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
	"github.com/Commandability/commandability-web-sub001/internal/domain/subscription"
	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

// ErrAggregatorCancelled is returned by Observe after Cancel.
var ErrAggregatorCancelled = errors.New("aggregator cancelled")

// aggregateEntry is the registry record of one named subscription.
type aggregateEntry struct {
	key        subscription.Key
	spec       subscription.Spec
	generation uint64
	// unsubscribe is nil for null references and while the listener is
	// being established.
	unsubscribe func()
	state       subscription.State
}

// pendingListener is a listener to establish outside the registry lock.
type pendingListener struct {
	name       string
	generation uint64
	spec       subscription.Spec
}

// Aggregator keeps a variable set of named realtime subscriptions alive and
// merges their lifecycle states into one subscription.Aggregate.
//
// Backend callbacks may arrive on any goroutine. Every callback carries the
// generation of its entry at subscription time and is discarded when the
// entry has since been re-keyed, removed, or cancelled.
//
// onChange deliveries go through a FIFO outbox drained by one goroutine at
// a time. onChange may call Observe; the resulting update is delivered after
// the current call returns.
type Aggregator struct {
	store    outbound.DocumentStore
	onChange func(subscription.Aggregate)
	logger   *slog.Logger
	metrics  *Metrics

	// observeMu serializes Observe calls.
	observeMu sync.Mutex

	mu      sync.Mutex
	names   []string
	entries map[string]*aggregateEntry
	// retired holds the last generation of removed names so a name added
	// back never reuses a generation a late callback may still carry.
	retired   map[string]uint64
	live      int
	cancelled bool
	outbox    []subscription.Aggregate
	draining  bool
}

// NewAggregator creates an empty aggregator. onChange may be nil; metrics
// may be nil.
func NewAggregator(store outbound.DocumentStore, onChange func(subscription.Aggregate), logger *slog.Logger, metrics *Metrics) *Aggregator {
	if onChange == nil {
		onChange = func(subscription.Aggregate) {}
	}
	return &Aggregator{
		store:    store,
		onChange: onChange,
		logger:   logger,
		metrics:  metrics,
		entries:  make(map[string]*aggregateEntry),
		retired:  make(map[string]uint64),
	}
}

// Observe replaces the spec list. Names absent from specs are unsubscribed
// and removed; names whose identity key changed get a new generation and a
// new listener; unchanged names keep their listener untouched. A spec with
// a null reference resolves immediately with no data.
func (a *Aggregator) Observe(specs []subscription.Spec) error {
	if err := subscription.ValidateSpecs(specs); err != nil {
		return err
	}

	a.observeMu.Lock()
	err := a.observe(specs)
	a.observeMu.Unlock()

	a.drain()
	return err
}

func (a *Aggregator) observe(specs []subscription.Spec) error {
	a.mu.Lock()
	if a.cancelled {
		a.mu.Unlock()
		return ErrAggregatorCancelled
	}

	var (
		stale   []func()
		pending []pendingListener
		changed bool
	)

	wanted := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		wanted[spec.Name] = struct{}{}
	}
	for name, e := range a.entries {
		if _, ok := wanted[name]; ok {
			continue
		}
		if e.unsubscribe != nil {
			stale = append(stale, e.unsubscribe)
			a.live--
		}
		delete(a.entries, name)
		a.retired[name] = e.generation
		changed = true
		a.logger.Debug("subscription removed", "name", name, "generation", e.generation)
	}

	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
		key := subscription.KeyOf(spec)

		e, ok := a.entries[spec.Name]
		if ok && e.key == key {
			continue
		}
		if !ok {
			e = &aggregateEntry{generation: a.retired[spec.Name]}
			delete(a.retired, spec.Name)
			a.entries[spec.Name] = e
		}
		if e.unsubscribe != nil {
			stale = append(stale, e.unsubscribe)
			e.unsubscribe = nil
			a.live--
		}
		e.generation++
		e.key = key
		e.spec = spec
		changed = true

		if spec.Reference.IsZero() {
			e.state = subscription.State{
				Name:       spec.Name,
				Status:     subscription.StatusResolved,
				Generation: e.generation,
			}
			a.logger.Debug("subscription has null reference", "name", spec.Name, "generation", e.generation)
			continue
		}
		e.state = subscription.State{
			Name:       spec.Name,
			Status:     subscription.StatusPending,
			Generation: e.generation,
		}
		pending = append(pending, pendingListener{name: spec.Name, generation: e.generation, spec: spec})
	}
	if !slices.Equal(a.names, names) {
		changed = true
	}
	a.names = names
	if changed {
		a.enqueueLocked()
	}
	a.mu.Unlock()

	// Superseded listeners are dropped before their replacements exist.
	for _, unsubscribe := range stale {
		unsubscribe()
	}

	for _, p := range pending {
		a.subscribe(p)
	}

	a.mu.Lock()
	a.metrics.setListeners(a.live)
	a.mu.Unlock()
	return nil
}

// subscribe establishes one backend listener and attaches it to its entry
// if the entry still carries the same generation.
func (a *Aggregator) subscribe(p pendingListener) {
	name, gen := p.name, p.generation
	unsubscribe := a.store.Subscribe(p.spec.Reference, p.spec.Options,
		func(snap document.Snapshot) {
			a.accept(name, gen, func(st *subscription.State) {
				snap = snap.Clone()
				st.Status = subscription.StatusResolved
				st.Data = &snap
				st.Err = nil
			})
		},
		func(err error) {
			a.accept(name, gen, func(st *subscription.State) {
				st.Status = subscription.StatusRejected
				st.Data = nil
				st.Err = err
			})
		},
	)

	a.mu.Lock()
	e, ok := a.entries[name]
	if a.cancelled || !ok || e.generation != gen {
		a.mu.Unlock()
		unsubscribe()
		return
	}
	e.unsubscribe = unsubscribe
	a.live++
	a.mu.Unlock()

	a.logger.Debug("subscription established", "name", name, "generation", gen, "reference", p.spec.Reference.String())
}

// accept applies a listener event if gen is still the entry's generation.
func (a *Aggregator) accept(name string, gen uint64, update func(*subscription.State)) {
	a.mu.Lock()
	e, ok := a.entries[name]
	if a.cancelled || !ok || e.generation != gen {
		a.mu.Unlock()
		a.metrics.event(false)
		a.logger.Debug("discarding stale subscription event", "name", name, "generation", gen)
		return
	}
	update(&e.state)
	if e.state.Status == subscription.StatusRejected {
		a.logger.Warn("subscription rejected", "name", name, "generation", gen, "error", e.state.Err)
	}
	a.enqueueLocked()
	a.mu.Unlock()

	a.metrics.event(true)
	a.drain()
}

// enqueueLocked appends a fresh copy of the aggregate to the outbox.
// Caller must hold a.mu.
func (a *Aggregator) enqueueLocked() {
	a.outbox = append(a.outbox, a.snapshotLocked())
}

func (a *Aggregator) snapshotLocked() subscription.Aggregate {
	entries := make(map[string]subscription.State, len(a.entries))
	for name, e := range a.entries {
		entries[name] = e.state.Clone()
	}
	names := append([]string(nil), a.names...)
	status, err := subscription.Combine(names, entries)
	return subscription.Aggregate{
		Entries: entries,
		Names:   names,
		Status:  status,
		Err:     err,
	}
}

// drain delivers queued aggregates in order. Only one goroutine drains at a
// time; others return immediately and their updates are picked up by the
// active drainer.
func (a *Aggregator) drain() {
	a.mu.Lock()
	if a.draining {
		a.mu.Unlock()
		return
	}
	a.draining = true
	for len(a.outbox) > 0 && !a.cancelled {
		next := a.outbox[0]
		a.outbox[0] = subscription.Aggregate{}
		a.outbox = a.outbox[1:]
		a.mu.Unlock()
		a.onChange(next)
		a.mu.Lock()
	}
	a.draining = false
	a.mu.Unlock()
}

// State returns an immutable copy of the current aggregate.
func (a *Aggregator) State() subscription.Aggregate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Lookup returns the state of one named subscription.
func (a *Aggregator) Lookup(name string) (subscription.State, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[name]
	if !ok {
		return subscription.State{}, false
	}
	return e.state.Clone(), true
}

// Listeners returns the number of live backend listeners.
func (a *Aggregator) Listeners() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Cancel unsubscribes every live listener and clears the registry. Pending
// deliveries are dropped. Calling Cancel more than once is a no-op.
func (a *Aggregator) Cancel() {
	a.mu.Lock()
	if a.cancelled {
		a.mu.Unlock()
		return
	}
	a.cancelled = true
	var unsubscribes []func()
	for _, e := range a.entries {
		if e.unsubscribe != nil {
			unsubscribes = append(unsubscribes, e.unsubscribe)
		}
	}
	a.entries = make(map[string]*aggregateEntry)
	a.names = nil
	a.outbox = nil
	a.live = 0
	a.mu.Unlock()

	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}
	a.metrics.setListeners(0)
	a.logger.Debug("aggregator cancelled", "listeners", len(unsubscribes))
}
