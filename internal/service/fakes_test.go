package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
	"github.com/Commandability/commandability-web-sub001/internal/domain/session"
	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Fake AuthProvider ---

type fakeAuthProvider struct {
	mu            sync.Mutex
	onNext        func(*session.Identity)
	onError       func(error)
	registrations int
	unsubscribes  int
	reauthErr     error
	reauthCalls   int
}

func (f *fakeAuthProvider) OnIdentityChange(onNext func(*session.Identity), onError func(error)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registrations++
	f.onNext = onNext
	f.onError = onError
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubscribes++
		f.onNext = nil
		f.onError = nil
	}
}

func (f *fakeAuthProvider) Reauthenticate(_ context.Context, _ session.Identity, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reauthCalls++
	return f.reauthErr
}

func (f *fakeAuthProvider) emit(identity *session.Identity) {
	f.mu.Lock()
	onNext := f.onNext
	f.mu.Unlock()
	if onNext != nil {
		onNext(identity)
	}
}

func (f *fakeAuthProvider) fail(err error) {
	f.mu.Lock()
	onError := f.onError
	f.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

// --- Fake DocumentStore ---

type fakeListener struct {
	ref     document.Reference
	opts    document.Options
	onNext  func(document.Snapshot)
	onError func(error)
	active  bool
}

type fakeDocumentStore struct {
	mu        sync.Mutex
	listeners []*fakeListener
	children  map[string][]document.Reference
	listErr   error
	commitErr error
	commits   int
	deleted   []document.Reference
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{children: make(map[string][]document.Reference)}
}

func (f *fakeDocumentStore) Subscribe(ref document.Reference, opts document.Options, onNext func(document.Snapshot), onError func(error)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &fakeListener{ref: ref, opts: opts, onNext: onNext, onError: onError, active: true}
	f.listeners = append(f.listeners, l)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		l.active = false
	}
}

func (f *fakeDocumentStore) BeginBatch() outbound.Batch {
	return &fakeBatch{store: f}
}

func (f *fakeDocumentStore) ListChildren(_ context.Context, ref document.Reference) ([]document.Reference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]document.Reference(nil), f.children[ref.Path()]...), nil
}

// live returns the number of active listeners.
func (f *fakeDocumentStore) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, l := range f.listeners {
		if l.active {
			n++
		}
	}
	return n
}

// subscribeCalls returns the total number of Subscribe calls.
func (f *fakeDocumentStore) subscribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// latest returns the most recent listener registered on ref.
func (f *fakeDocumentStore) latest(ref document.Reference) *fakeListener {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.listeners) - 1; i >= 0; i-- {
		if f.listeners[i].ref.Equal(ref) {
			return f.listeners[i]
		}
	}
	return nil
}

// push delivers a snapshot through l even if it was unsubscribed, the way a
// late in-flight backend event would arrive.
func (l *fakeListener) push(data document.Data) {
	l.onNext(document.Snapshot{Ref: l.ref, Exists: data != nil, Data: data})
}

func (l *fakeListener) fail(err error) {
	l.onError(err)
}

type fakeBatch struct {
	store   *fakeDocumentStore
	pending []document.Reference
}

func (b *fakeBatch) Delete(ref document.Reference) {
	b.pending = append(b.pending, ref)
}

func (b *fakeBatch) Commit(_ context.Context) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	b.store.commits++
	if b.store.commitErr != nil {
		return b.store.commitErr
	}
	b.store.deleted = append(b.store.deleted, b.pending...)
	return nil
}

func (f *fakeDocumentStore) deletedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, 0, len(f.deleted))
	for _, ref := range f.deleted {
		paths = append(paths, ref.Path())
	}
	sort.Strings(paths)
	return paths
}

// --- Fake ObjectStore ---

type fakeObjectStore struct {
	mu          sync.Mutex
	objects     map[string]outbound.ObjectRef
	deleteErr   map[string]error
	listErr     map[string]error
	deleteCalls int
	listCalls   int
}

func newFakeObjectStore(keys ...string) *fakeObjectStore {
	f := &fakeObjectStore{
		objects:   make(map[string]outbound.ObjectRef),
		deleteErr: make(map[string]error),
		listErr:   make(map[string]error),
	}
	for _, k := range keys {
		f.objects[k] = outbound.ObjectRef{Key: k, Size: int64(len(k))}
	}
	return f
}

func (f *fakeObjectStore) ListObjects(_ context.Context, prefix string) ([]outbound.ObjectRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if err := f.listErr[prefix]; err != nil {
		return nil, err
	}
	var out []outbound.ObjectRef
	for k, ref := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeObjectStore) DeleteObject(_ context.Context, ref outbound.ObjectRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if err := f.deleteErr[ref.Key]; err != nil {
		return err
	}
	delete(f.objects, ref.Key)
	return nil
}

func (f *fakeObjectStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var errBackend = errors.New("backend unavailable")
