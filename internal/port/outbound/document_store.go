package outbound

import (
	"context"
	"errors"

	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
)

// Document store errors.
var (
	// ErrBatchCommitted is returned by a second Commit on the same batch.
	ErrBatchCommitted = errors.New("batch already committed")
	// ErrNotDocument is returned for writes addressed at a non-document path.
	ErrNotDocument = errors.New("reference is not a document")
)

// DocumentStore is the outbound port for the realtime document store.
type DocumentStore interface {
	// Subscribe registers a push listener on ref. The first snapshot is
	// delivered asynchronously after Subscribe returns, followed by one
	// snapshot per change, in order. onError ends the listener. The
	// returned function removes the listener; after it returns no further
	// callbacks are made.
	Subscribe(ref document.Reference, opts document.Options, onNext func(document.Snapshot), onError func(error)) (unsubscribe func())

	// BeginBatch starts an atomic write batch.
	BeginBatch() Batch

	// ListChildren returns the document references directly under the
	// collection ref. An absent collection yields an empty list.
	ListChildren(ctx context.Context, ref document.Reference) ([]document.Reference, error)
}

// Batch is an all-or-nothing group of writes.
type Batch interface {
	// Delete queues the removal of a document. Deleting an absent document
	// is a no-op.
	Delete(ref document.Reference)

	// Commit applies every queued write atomically. A batch is committed at
	// most once.
	Commit(ctx context.Context) error
}

// DocumentWriter is implemented by stores that accept direct writes. It is
// used by the seed command and tests, not by the sync core.
type DocumentWriter interface {
	Set(ctx context.Context, ref document.Reference, data document.Data) error
}
