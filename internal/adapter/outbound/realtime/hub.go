// Package realtime provides the change-feed hub shared by the document store
// adapters: per-listener ordered push delivery of snapshots, recomputed
// after every committed write.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
)

// ErrFilterUnsupported is delivered to listeners with a filter when the hub
// has no FilterCompiler.
var ErrFilterUnsupported = errors.New("filter expressions not supported")

// ErrHubClosed is delivered to listeners subscribing after Close.
var ErrHubClosed = errors.New("realtime hub closed")

// Loader reads the current state of ref. Collection snapshots carry every
// direct child document, unfiltered and unsorted.
type Loader func(ctx context.Context, ref document.Reference) (document.Snapshot, error)

// Matcher decides whether a document passes a collection filter.
type Matcher interface {
	Match(doc document.Document) (bool, error)
}

// FilterCompiler compiles Options.Filter expressions.
type FilterCompiler interface {
	CompileFilter(expr string) (Matcher, error)
}

// Option configures a Hub.
type Option func(*Hub)

// WithFilterCompiler enables Options.Filter.
func WithFilterCompiler(c FilterCompiler) Option {
	return func(h *Hub) {
		h.compiler = c
	}
}

// WithClock overrides the snapshot read time source.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		h.now = now
	}
}

type listener struct {
	id      string
	ref     document.Reference
	opts    document.Options
	match   Matcher
	queue   *Queue
	onNext  func(document.Snapshot)
	onError func(error)
}

// Hub fans snapshots out to push listeners.
type Hub struct {
	load     Loader
	compiler FilterCompiler
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	listeners map[string]*listener
	queues    map[*Queue]struct{}
	closed    bool
}

// NewHub creates a hub reading state through load.
func NewHub(load Loader, logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		load:      load,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[string]*listener),
		queues:    make(map[*Queue]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a listener. The initial snapshot is computed now and
// delivered on the listener's own goroutine after Subscribe returns.
func (h *Hub) Subscribe(ref document.Reference, opts document.Options, onNext func(document.Snapshot), onError func(error)) func() {
	l := &listener{
		id:      uuid.NewString(),
		ref:     ref,
		opts:    opts,
		queue:   NewQueue(),
		onNext:  onNext,
		onError: onError,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		h.failLocked(l, ErrHubClosed)
		return func() {}
	}
	h.queues[l.queue] = struct{}{}

	if opts.Filter != "" && ref.Kind() == document.KindCollection {
		if h.compiler == nil {
			h.failLocked(l, ErrFilterUnsupported)
			return func() {}
		}
		m, err := h.compiler.CompileFilter(opts.Filter)
		if err != nil {
			h.failLocked(l, err)
			return func() {}
		}
		l.match = m
	}

	h.listeners[l.id] = l
	h.deliverLocked(l)
	h.logger.Debug("listener registered", "listener", l.id, "reference", ref.String())

	return func() { h.unsubscribe(l) }
}

func (h *Hub) unsubscribe(l *listener) {
	h.mu.Lock()
	delete(h.listeners, l.id)
	delete(h.queues, l.queue)
	h.mu.Unlock()
	l.queue.Close()
}

// Notify recomputes and delivers snapshots for every listener affected by a
// write to the given document paths.
func (h *Hub) Notify(paths ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, l := range h.listeners {
		if affected(l.ref, paths) {
			h.deliverLocked(l)
		}
	}
}

// affected reports whether a write to one of paths changes ref's snapshot.
func affected(ref document.Reference, paths []string) bool {
	for _, p := range paths {
		written, err := document.Parse(p)
		if err != nil {
			continue
		}
		switch ref.Kind() {
		case document.KindDocument:
			if written.Equal(ref) {
				return true
			}
		case document.KindCollection:
			if written.Parent().Equal(ref) {
				return true
			}
		}
	}
	return false
}

// deliverLocked computes l's snapshot and queues its delivery.
// Caller must hold h.mu.
func (h *Hub) deliverLocked(l *listener) {
	snap, err := h.snapshot(l)
	if err != nil {
		h.failLocked(l, err)
		return
	}
	l.queue.Push(func() { l.onNext(snap) })
}

// failLocked queues onError and ends the listener. Caller must hold h.mu.
func (h *Hub) failLocked(l *listener, err error) {
	delete(h.listeners, l.id)
	delete(h.queues, l.queue)
	q := l.queue
	q.Push(func() {
		l.onError(err)
		q.Close()
	})
	h.logger.Warn("listener failed", "listener", l.id, "reference", l.ref.String(), "error", err)
}

func (h *Hub) snapshot(l *listener) (document.Snapshot, error) {
	snap, err := h.load(context.Background(), l.ref)
	if err != nil {
		return document.Snapshot{}, fmt.Errorf("load %s: %w", l.ref, err)
	}
	snap.Ref = l.ref
	snap.ReadTime = h.now()
	if l.ref.Kind() != document.KindCollection {
		return snap, nil
	}

	docs := snap.Docs[:0:0]
	for _, doc := range snap.Docs {
		if l.match != nil {
			ok, err := l.match.Match(doc)
			if err != nil {
				return document.Snapshot{}, fmt.Errorf("filter %s: %w", doc.Ref, err)
			}
			if !ok {
				continue
			}
		}
		docs = append(docs, doc)
	}
	snap.Docs = document.SortDocuments(docs, l.opts)
	return snap, nil
}

// Listeners returns the number of registered listeners.
func (h *Hub) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Close ends every listener and waits for their goroutines to exit.
// Close must not be called from a listener callback.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	queues := h.queues
	h.queues = make(map[*Queue]struct{})
	h.listeners = make(map[string]*listener)
	h.mu.Unlock()

	for q := range queues {
		q.Close()
	}
	for q := range queues {
		<-q.Done()
	}
}
