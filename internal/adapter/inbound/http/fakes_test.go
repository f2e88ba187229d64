package http

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/Commandability/commandability-web-sub001/internal/domain/deletion"
	"github.com/Commandability/commandability-web-sub001/internal/domain/session"
	"github.com/Commandability/commandability-web-sub001/internal/domain/subscription"
)

// discardLogger returns a logger that discards all output (for tests)
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type deleteCall struct {
	secret string
	ids    []string
	all    bool
}

// fakeSync is a hand-written inbound.SyncService.
type fakeSync struct {
	mu       sync.Mutex
	state    session.State
	agg      subscription.Aggregate
	streams  []chan subscription.Aggregate
	released int

	deleteResult *deletion.Result
	deleteErr    error
	deletes      []deleteCall
}

func (f *fakeSync) Session() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSync) Aggregate() subscription.Aggregate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agg
}

func (f *fakeSync) Stream(buffer int) (<-chan subscription.Aggregate, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan subscription.Aggregate, 8)
	ch <- f.agg
	f.streams = append(f.streams, ch)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			f.released++
			f.mu.Unlock()
		})
	}
}

// publish sends agg to every open stream.
func (f *fakeSync) publish(agg subscription.Aggregate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agg = agg
	for _, ch := range f.streams {
		ch <- agg
	}
}

func (f *fakeSync) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeSync) releasedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func (f *fakeSync) DeleteReports(ctx context.Context, secret string, ids []string, all bool) (*deletion.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, deleteCall{secret: secret, ids: ids, all: all})
	return f.deleteResult, f.deleteErr
}

// fakeControl is a hand-written inbound.SessionControl.
type fakeControl struct {
	mu        sync.Mutex
	identity  session.Identity
	signInErr error
	signIns   []string
	signOuts  int
}

func (f *fakeControl) SignIn(ctx context.Context, email, secret string) (session.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signIns = append(f.signIns, email)
	if f.signInErr != nil {
		return session.Identity{}, f.signInErr
	}
	return f.identity, nil
}

func (f *fakeControl) SignOut() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
}
