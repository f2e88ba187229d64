package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Commandability/commandability-web-sub001/internal/domain/deletion"
	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
	"github.com/Commandability/commandability-web-sub001/internal/domain/namespace"
	"github.com/Commandability/commandability-web-sub001/internal/domain/session"
	"github.com/Commandability/commandability-web-sub001/internal/domain/subscription"
	"github.com/Commandability/commandability-web-sub001/internal/port/inbound"
	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

// Subscription names watched for the current identity.
const (
	SpecUser    = "user"
	SpecReports = "reports"
)

// ErrSignedOut is returned for operations that need a signed-in identity.
var ErrSignedOut = inbound.ErrSignedOut

// defaultStreamBuffer is the per-subscriber buffer of aggregate updates.
const defaultStreamBuffer = 16

// SpecsFor builds the member data specs for identity. A nil identity maps
// every spec to the null reference.
func SpecsFor(identity *session.Identity) []subscription.Spec {
	reportOpts := document.Options{OrderBy: "createdAt", Descending: true}
	if identity == nil {
		return []subscription.Spec{
			{Name: SpecUser},
			{Name: SpecReports, Options: reportOpts},
		}
	}
	return []subscription.Spec{
		{Name: SpecUser, Reference: namespace.UserDocument(identity.ID)},
		{Name: SpecReports, Reference: namespace.Reports(identity.ID), Options: reportOpts},
	}
}

type streamSubscriber struct {
	ch chan subscription.Aggregate
}

// SyncService wires the session tracker to the aggregator: every session
// change rebuilds the spec list, and every aggregate change is fanned out to
// stream subscribers.
type SyncService struct {
	tracker  *SessionTracker
	agg      *Aggregator
	deletion *DeletionService
	logger   *slog.Logger
	metrics  *Metrics

	mu          sync.Mutex
	subscribers map[*streamSubscriber]struct{}
	last        *subscription.Aggregate
	closed      bool
	stop        func()
}

// NewSyncService creates a SyncService. metrics may be nil.
func NewSyncService(auth outbound.AuthProvider, docs outbound.DocumentStore, deleter *DeletionService, logger *slog.Logger, metrics *Metrics) *SyncService {
	s := &SyncService{
		deletion:    deleter,
		logger:      logger,
		metrics:     metrics,
		subscribers: make(map[*streamSubscriber]struct{}),
	}
	s.tracker = NewSessionTracker(auth, logger.With("component", "session"), metrics)
	s.agg = NewAggregator(docs, s.broadcast, logger.With("component", "aggregator"), metrics)
	return s
}

// Start begins tracking the session. Specs start out null until the
// provider reports.
func (s *SyncService) Start() error {
	if err := s.agg.Observe(SpecsFor(nil)); err != nil {
		return err
	}
	cancel := s.tracker.Start(s.onSession)
	s.mu.Lock()
	s.stop = cancel
	s.mu.Unlock()
	return nil
}

func (s *SyncService) onSession(st session.State) {
	if st.Status == session.StatusRejected {
		// Member content must not outlive a rejected session.
		s.agg.Cancel()
		return
	}
	if err := s.agg.Observe(SpecsFor(st.Identity)); err != nil && !errors.Is(err, ErrAggregatorCancelled) {
		s.logger.Error("failed to update subscriptions", "error", err)
	}
}

// broadcast fans agg out to every subscriber. Slow subscribers lose their
// oldest buffered update.
func (s *SyncService) broadcast(agg subscription.Aggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &agg
	for sub := range s.subscribers {
		for {
			select {
			case sub.ch <- agg:
			default:
				select {
				case <-sub.ch:
					s.metrics.streamDrop()
				default:
				}
				continue
			}
			break
		}
	}
}

// Stream registers a subscriber. The channel first carries the current
// aggregate, then every change. The returned function unregisters and
// closes the channel; it is idempotent.
func (s *SyncService) Stream(buffer int) (<-chan subscription.Aggregate, func()) {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	sub := &streamSubscriber{ch: make(chan subscription.Aggregate, buffer)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	// The last broadcast keeps the stream ordered with later broadcasts.
	initial := s.agg.State()
	if s.last != nil {
		initial = *s.last
	}
	sub.ch <- initial
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subscribers[sub]; ok {
				delete(s.subscribers, sub)
				close(sub.ch)
			}
		})
	}
}

// Session returns the current session state.
func (s *SyncService) Session() session.State {
	return s.tracker.State()
}

// WaitSession blocks until the session leaves pending.
func (s *SyncService) WaitSession(ctx context.Context) (session.State, error) {
	return s.tracker.Wait(ctx)
}

// Aggregate returns the current aggregate.
func (s *SyncService) Aggregate() subscription.Aggregate {
	return s.agg.State()
}

// Lookup returns one named subscription state.
func (s *SyncService) Lookup(name string) (subscription.State, bool) {
	return s.agg.Lookup(name)
}

// Fatal delivers the session's fatal error.
func (s *SyncService) Fatal() <-chan error {
	return s.tracker.Fatal()
}

// DeleteReports runs a coordinated deletion for the signed-in identity.
func (s *SyncService) DeleteReports(ctx context.Context, secret string, ids []string, all bool) (*deletion.Result, error) {
	st := s.tracker.State()
	if st.Status != session.StatusResolved || st.Identity == nil {
		return nil, ErrSignedOut
	}
	return s.deletion.Delete(ctx, deletion.Request{
		Identity:  *st.Identity,
		Secret:    secret,
		TargetIDs: ids,
		All:       all,
	})
}

var _ inbound.SyncService = (*SyncService)(nil)

// Close stops session tracking, drops every listener, and closes all
// stream channels.
func (s *SyncService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop := s.stop
	subs := s.subscribers
	s.subscribers = make(map[*streamSubscriber]struct{})
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.agg.Cancel()

	s.mu.Lock()
	for sub := range subs {
		close(sub.ch)
	}
	s.mu.Unlock()
}
