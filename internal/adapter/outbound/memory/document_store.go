package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Commandability/commandability-web-sub001/internal/adapter/outbound/realtime"
	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

// DocumentStore is an in-memory realtime document store.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]document.Document
	now  func() time.Time
	hub  *realtime.Hub
}

// NewDocumentStore creates an empty store. hubOpts configure its change
// feed (filter compiler, clock).
func NewDocumentStore(logger *slog.Logger, hubOpts ...realtime.Option) *DocumentStore {
	s := &DocumentStore{
		docs: make(map[string]document.Document),
		now:  time.Now,
	}
	s.hub = realtime.NewHub(s.load, logger, hubOpts...)
	return s
}

func (s *DocumentStore) load(_ context.Context, ref document.Reference) (document.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ref.Kind() == document.KindDocument {
		doc, ok := s.docs[ref.Path()]
		if !ok {
			return document.Snapshot{}, nil
		}
		return document.Snapshot{Exists: true, Data: doc.Data.Clone()}, nil
	}
	return document.Snapshot{Docs: s.childrenLocked(ref)}, nil
}

func (s *DocumentStore) childrenLocked(ref document.Reference) []document.Document {
	var docs []document.Document
	for _, doc := range s.docs {
		if doc.Ref.Parent().Equal(ref) {
			docs = append(docs, doc.Clone())
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Ref.Path() < docs[j].Ref.Path() })
	return docs
}

// Subscribe implements outbound.DocumentStore.
func (s *DocumentStore) Subscribe(ref document.Reference, opts document.Options, onNext func(document.Snapshot), onError func(error)) func() {
	return s.hub.Subscribe(ref, opts, onNext, onError)
}

// ListChildren implements outbound.DocumentStore.
func (s *DocumentStore) ListChildren(ctx context.Context, ref document.Reference) ([]document.Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.childrenLocked(ref)
	refs := make([]document.Reference, len(docs))
	for i, doc := range docs {
		refs[i] = doc.Ref
	}
	return refs, nil
}

// Get returns one document.
func (s *DocumentStore) Get(_ context.Context, ref document.Reference) (document.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[ref.Path()]
	if !ok {
		return document.Document{}, false
	}
	return doc.Clone(), true
}

// Set implements outbound.DocumentWriter.
func (s *DocumentStore) Set(ctx context.Context, ref document.Reference, data document.Data) error {
	if ref.Kind() != document.KindDocument {
		return fmt.Errorf("%w: %s", outbound.ErrNotDocument, ref)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[ref.Path()] = document.Document{Ref: ref, Data: data.Clone(), UpdateTime: s.now()}
	s.mu.Unlock()

	s.hub.Notify(ref.Path())
	return nil
}

// BeginBatch implements outbound.DocumentStore.
func (s *DocumentStore) BeginBatch() outbound.Batch {
	return &memoryBatch{store: s}
}

// Listeners returns the number of live listeners.
func (s *DocumentStore) Listeners() int {
	return s.hub.Listeners()
}

// Close ends every listener.
func (s *DocumentStore) Close() {
	s.hub.Close()
}

type memoryBatch struct {
	store     *DocumentStore
	mu        sync.Mutex
	deletes   []document.Reference
	committed bool
}

func (b *memoryBatch) Delete(ref document.Reference) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, ref)
}

func (b *memoryBatch) Commit(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.committed {
		return outbound.ErrBatchCommitted
	}
	for _, ref := range b.deletes {
		if ref.Kind() != document.KindDocument {
			return fmt.Errorf("%w: %s", outbound.ErrNotDocument, ref)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.committed = true

	paths := make([]string, 0, len(b.deletes))
	b.store.mu.Lock()
	for _, ref := range b.deletes {
		if _, ok := b.store.docs[ref.Path()]; ok {
			delete(b.store.docs, ref.Path())
			paths = append(paths, ref.Path())
		}
	}
	b.store.mu.Unlock()

	if len(paths) > 0 {
		b.store.hub.Notify(paths...)
	}
	return nil
}

var (
	_ outbound.DocumentStore  = (*DocumentStore)(nil)
	_ outbound.DocumentWriter = (*DocumentStore)(nil)
)
