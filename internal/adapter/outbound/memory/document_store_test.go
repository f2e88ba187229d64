package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

func recvSnapshot(t *testing.T, ch <-chan document.Snapshot) document.Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return document.Snapshot{}
}

func TestDocumentStore_SubscribeAndBatchDelete(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := NewDocumentStore(testLogger())
	defer store.Close()

	reports := document.Collection("users", "u1", "reports")
	for _, id := range []string{"r1", "r2", "r3"} {
		ref, _ := reports.Child(id)
		if err := store.Set(ctx, ref, document.Data{"createdAt": len(id)}); err != nil {
			t.Fatalf("Set() error: %v", err)
		}
	}

	ch := make(chan document.Snapshot, 8)
	unsubscribe := store.Subscribe(reports, document.Options{}, func(s document.Snapshot) { ch <- s }, func(error) {})
	defer unsubscribe()

	if snap := recvSnapshot(t, ch); len(snap.Docs) != 3 {
		t.Fatalf("initial docs = %d, want 3", len(snap.Docs))
	}

	batch := store.BeginBatch()
	batch.Delete(document.Doc("users", "u1", "reports", "r1"))
	batch.Delete(document.Doc("users", "u1", "reports", "r2"))
	batch.Delete(document.Doc("users", "u1", "reports", "missing"))
	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if err := batch.Commit(ctx); !errors.Is(err, outbound.ErrBatchCommitted) {
		t.Errorf("second Commit() = %v, want ErrBatchCommitted", err)
	}

	snap := recvSnapshot(t, ch)
	if len(snap.Docs) != 1 || snap.Docs[0].Ref.ID() != "r3" {
		t.Errorf("docs after delete = %+v, want only r3", snap.Docs)
	}

	refs, err := store.ListChildren(ctx, reports)
	if err != nil {
		t.Fatalf("ListChildren() error: %v", err)
	}
	if len(refs) != 1 {
		t.Errorf("ListChildren() = %v, want 1 ref", refs)
	}
}

func TestDocumentStore_BatchRejectsCollection(t *testing.T) {
	store := NewDocumentStore(testLogger())
	defer store.Close()

	ctx := context.Background()
	ref := document.Doc("users", "u1")
	if err := store.Set(ctx, ref, document.Data{"x": 1}); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	batch := store.BeginBatch()
	batch.Delete(ref)
	batch.Delete(document.Collection("users"))
	if err := batch.Commit(ctx); !errors.Is(err, outbound.ErrNotDocument) {
		t.Fatalf("Commit() = %v, want ErrNotDocument", err)
	}
	if _, ok := store.Get(ctx, ref); !ok {
		t.Error("a failed batch must not delete anything")
	}

	if err := store.Set(ctx, document.Collection("users"), nil); !errors.Is(err, outbound.ErrNotDocument) {
		t.Errorf("Set(collection) = %v, want ErrNotDocument", err)
	}
}

func TestDocumentStore_DocumentListenerSeesDeletion(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := NewDocumentStore(testLogger())
	defer store.Close()

	ref := document.Doc("users", "u1")
	_ = store.Set(ctx, ref, document.Data{"organizationName": "Station 7"})

	ch := make(chan document.Snapshot, 8)
	store.Subscribe(ref, document.Options{}, func(s document.Snapshot) { ch <- s }, func(error) {})

	if snap := recvSnapshot(t, ch); !snap.Exists || snap.Data["organizationName"] != "Station 7" {
		t.Fatalf("initial snapshot = %+v", snap)
	}

	batch := store.BeginBatch()
	batch.Delete(ref)
	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if snap := recvSnapshot(t, ch); snap.Exists {
		t.Errorf("snapshot after delete = %+v, want missing", snap)
	}
	if store.Listeners() != 1 {
		t.Errorf("Listeners() = %d, want 1", store.Listeners())
	}
}
