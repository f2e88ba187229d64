package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Commandability/commandability-web-sub001/internal/ctxkey"
	"github.com/Commandability/commandability-web-sub001/internal/domain/deletion"
	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
	"github.com/Commandability/commandability-web-sub001/internal/domain/session"
	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

var testIdentity = session.Identity{ID: "u1", Email: "u1@example.com"}

// reportObjects returns the object keys stored for report ids r under u1.
func reportObjects(ids ...string) []string {
	var keys []string
	for _, id := range ids {
		keys = append(keys,
			fmt.Sprintf("users/u1/reports/%s/report.pdf", id),
			fmt.Sprintf("users/u1/reports/%s/photo.jpg", id),
		)
	}
	return keys
}

func TestDeletionService_ReauthFailureWritesNothing(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"wrong secret", fmt.Errorf("verify: %w", outbound.ErrWrongSecret), deletion.CodeWrongPassword},
		{"throttled", outbound.ErrTooManyRequests, deletion.CodeTooManyRequests},
		{"mismatch", outbound.ErrIdentityMismatch, deletion.CodeUserMismatch},
		{"unknown", errBackend, deletion.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &fakeAuthProvider{reauthErr: tt.err}
			docs := newFakeDocumentStore()
			objects := newFakeObjectStore(reportObjects("r1")...)
			svc := NewDeletionService(auth, docs, objects, testLogger())

			result, err := svc.Delete(context.Background(), deletion.Request{
				Identity: testIdentity, Secret: "nope", TargetIDs: []string{"r1"},
			})
			if err != nil {
				t.Fatalf("Delete() error: %v", err)
			}
			if got := result.FieldErrors[deletion.PasswordField]; got != tt.wantCode {
				t.Errorf("field error = %q, want %q", got, tt.wantCode)
			}
			if docs.commits != 0 {
				t.Errorf("batch commits = %d, want 0", docs.commits)
			}
			if objects.deleteCalls != 0 || objects.listCalls != 0 {
				t.Errorf("object calls = %d list / %d delete, want none", objects.listCalls, objects.deleteCalls)
			}
		})
	}
}

func TestDeletionService_DeletesExactlyTargets(t *testing.T) {
	auth := &fakeAuthProvider{}
	docs := newFakeDocumentStore()
	objects := newFakeObjectStore(reportObjects("r1", "r2", "r3")...)
	svc := NewDeletionService(auth, docs, objects, testLogger())

	result, err := svc.Delete(context.Background(), deletion.Request{
		Identity: testIdentity, Secret: "s", TargetIDs: []string{"r1", "r2", "r1"},
	})
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if result.Rejected() || result.Partial() {
		t.Fatalf("result = %+v, want full success", result)
	}
	if docs.commits != 1 {
		t.Errorf("commits = %d, want 1", docs.commits)
	}

	wantDeleted := []string{"users/u1/reports/r1", "users/u1/reports/r2"}
	if got := docs.deletedPaths(); !reflect.DeepEqual(got, wantDeleted) {
		t.Errorf("deleted metadata = %v, want %v", got, wantDeleted)
	}
	if !reflect.DeepEqual(result.DeletedRecordIDs, []string{"r1", "r2"}) {
		t.Errorf("DeletedRecordIDs = %v", result.DeletedRecordIDs)
	}
	if result.DeletedObjects != 4 {
		t.Errorf("DeletedObjects = %d, want 4", result.DeletedObjects)
	}
	if got, want := objects.keys(), reportObjects("r3"); !reflect.DeepEqual(got, slices.Sorted(slices.Values(want))) {
		t.Errorf("remaining objects = %v, want %v", got, want)
	}
}

func TestDeletionService_AbsentTargetsAreNoOps(t *testing.T) {
	auth := &fakeAuthProvider{}
	docs := newFakeDocumentStore()
	objects := newFakeObjectStore()
	svc := NewDeletionService(auth, docs, objects, testLogger())

	req := deletion.Request{Identity: testIdentity, Secret: "s", TargetIDs: []string{"missing"}}
	for i := 0; i < 2; i++ {
		result, err := svc.Delete(context.Background(), req)
		if err != nil {
			t.Fatalf("Delete() #%d error: %v", i, err)
		}
		if result.Partial() || result.DeletedObjects != 0 {
			t.Errorf("Delete() #%d = %+v, want clean no-op", i, result)
		}
	}
}

func TestDeletionService_All(t *testing.T) {
	auth := &fakeAuthProvider{}
	docs := newFakeDocumentStore()
	docs.children["users/u1/reports"] = []document.Reference{
		document.Doc("users", "u1", "reports", "r1"),
		document.Doc("users", "u1", "reports", "r2"),
	}
	objects := newFakeObjectStore(append(reportObjects("r1", "r2"), "users/u2/reports/r1/report.pdf")...)
	svc := NewDeletionService(auth, docs, objects, testLogger())

	result, err := svc.Delete(context.Background(), deletion.Request{Identity: testIdentity, Secret: "s", All: true})
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if len(result.DeletedRecordIDs) != 2 {
		t.Errorf("DeletedRecordIDs = %v, want 2 ids", result.DeletedRecordIDs)
	}
	if got := objects.keys(); !reflect.DeepEqual(got, []string{"users/u2/reports/r1/report.pdf"}) {
		t.Errorf("remaining objects = %v, other identities must be untouched", got)
	}
}

func TestDeletionService_CommitFailureSkipsObjects(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	auth := &fakeAuthProvider{}
	docs := newFakeDocumentStore()
	docs.commitErr = errBackend
	objects := newFakeObjectStore(reportObjects("r1")...)
	svc := NewDeletionService(auth, docs, objects, testLogger(), WithDeletionMetrics(m))

	_, err := svc.Delete(context.Background(), deletion.Request{Identity: testIdentity, Secret: "s", TargetIDs: []string{"r1"}})
	if !errors.Is(err, errBackend) {
		t.Fatalf("Delete() = %v, want wrapped backend error", err)
	}
	if objects.listCalls != 0 || objects.deleteCalls != 0 {
		t.Error("object store must not be touched after a failed commit")
	}
	if got := testutil.ToFloat64(m.Deletions.WithLabelValues("error")); got != 1 {
		t.Errorf("deletions{error} = %v, want 1", got)
	}
}

func TestDeletionService_PartialObjectFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	auth := &fakeAuthProvider{}
	docs := newFakeDocumentStore()
	objects := newFakeObjectStore(reportObjects("r1", "r2")...)
	objects.deleteErr["users/u1/reports/r1/photo.jpg"] = errBackend
	objects.listErr["users/u1/reports/r2/"] = errBackend

	svc := NewDeletionService(auth, docs, objects, testLogger(),
		WithDeletionMetrics(m), WithTracerProvider(tp))

	result, err := svc.Delete(context.Background(), deletion.Request{
		Identity: testIdentity, Secret: "s", TargetIDs: []string{"r1", "r2"},
	})
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if len(docs.deletedPaths()) != 2 {
		t.Errorf("metadata should be deleted despite object failures")
	}
	if result.DeletedObjects != 1 {
		t.Errorf("DeletedObjects = %d, want 1", result.DeletedObjects)
	}
	if len(result.FailedObjects) != 2 {
		t.Fatalf("FailedObjects = %+v, want 2", result.FailedObjects)
	}
	if f := result.FailedObjects[0]; f.RecordID != "r1" || f.Key != "users/u1/reports/r1/photo.jpg" || !errors.Is(f.Err, errBackend) {
		t.Errorf("FailedObjects[0] = %+v", f)
	}
	if f := result.FailedObjects[1]; f.RecordID != "r2" || f.Key != "" {
		t.Errorf("FailedObjects[1] = %+v, want list failure for r2", f)
	}

	if got := testutil.ToFloat64(m.Deletions.WithLabelValues("partial")); got != 1 {
		t.Errorf("deletions{partial} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OrphanedObjects); got != 2 {
		t.Errorf("orphaned_objects_total = %v, want 2", got)
	}

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	want := []string{"deletion.reauthenticate", "deletion.metadata", "deletion.objects"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("spans = %v, want %v", names, want)
	}
}

func TestDeletionService_RetryAfterPartialFailure(t *testing.T) {
	auth := &fakeAuthProvider{}
	docs := newFakeDocumentStore()
	objects := newFakeObjectStore(reportObjects("r1", "r2")...)
	objects.deleteErr["users/u1/reports/r1/photo.jpg"] = errBackend
	objects.listErr["users/u1/reports/r2/"] = errBackend
	svc := NewDeletionService(auth, docs, objects, testLogger())

	req := deletion.Request{Identity: testIdentity, Secret: "s", TargetIDs: []string{"r1", "r2"}}
	first, err := svc.Delete(context.Background(), req)
	if err != nil {
		t.Fatalf("first Delete() error: %v", err)
	}
	if !first.Partial() {
		t.Fatalf("first result = %+v, want partial", first)
	}

	clear(objects.deleteErr)
	clear(objects.listErr)

	second, err := svc.Delete(context.Background(), req)
	if err != nil {
		t.Fatalf("retry Delete() error: %v", err)
	}
	if len(second.FailedObjects) != 0 {
		t.Errorf("retry FailedObjects = %+v, want none", second.FailedObjects)
	}
	if second.DeletedObjects != 3 {
		t.Errorf("retry DeletedObjects = %d, want 3", second.DeletedObjects)
	}
	if left := objects.keys(); len(left) != 0 {
		t.Errorf("objects left after retry = %v, want none", left)
	}
	if docs.commits != 2 {
		t.Errorf("commits = %d, want 2", docs.commits)
	}
}

func TestDeletionService_InvalidRequest(t *testing.T) {
	auth := &fakeAuthProvider{}
	svc := NewDeletionService(auth, newFakeDocumentStore(), newFakeObjectStore(), testLogger())

	_, err := svc.Delete(context.Background(), deletion.Request{Identity: testIdentity, Secret: "s"})
	if !errors.Is(err, deletion.ErrInvalidRequest) {
		t.Fatalf("Delete() = %v, want ErrInvalidRequest", err)
	}
	if auth.reauthCalls != 0 {
		t.Error("invalid request must not reach the auth provider")
	}
}

type fakeJournal struct {
	entries []deletion.JournalEntry
	err     error
}

func (j *fakeJournal) Record(_ context.Context, entry deletion.JournalEntry) error {
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, entry)
	return nil
}

func TestDeletionService_Journal(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return at }

	t.Run("records committed deletions in request scope", func(t *testing.T) {
		var logs bytes.Buffer
		journal := &fakeJournal{}
		objects := newFakeObjectStore(reportObjects("r1")...)
		svc := NewDeletionService(&fakeAuthProvider{}, newFakeDocumentStore(), objects, testLogger(),
			WithJournal(journal), WithDeletionClock(clock))

		ctx := context.WithValue(context.Background(), ctxkey.RequestIDKey{}, "req-1")
		ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, slog.New(slog.NewTextHandler(&logs, nil)))
		if _, err := svc.Delete(ctx, deletion.Request{Identity: testIdentity, Secret: "s", TargetIDs: []string{"r1"}}); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}

		if len(journal.entries) != 1 {
			t.Fatalf("journal entries = %d, want 1", len(journal.entries))
		}
		e := journal.entries[0]
		if e.RequestID != "req-1" || e.IdentityID != "u1" || !e.Time.Equal(at) || e.Outcome != deletion.OutcomeOK || e.DeletedObjects != 2 {
			t.Errorf("entry = %+v", e)
		}
		if !strings.Contains(logs.String(), "component=deletion") {
			t.Errorf("request logger not used: %q", logs.String())
		}
	})

	t.Run("rejected reauthentication is not journaled", func(t *testing.T) {
		journal := &fakeJournal{}
		svc := NewDeletionService(&fakeAuthProvider{reauthErr: outbound.ErrWrongSecret}, newFakeDocumentStore(), newFakeObjectStore(), testLogger(),
			WithJournal(journal))
		if _, err := svc.Delete(context.Background(), deletion.Request{Identity: testIdentity, Secret: "s", TargetIDs: []string{"r1"}}); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if len(journal.entries) != 0 {
			t.Errorf("journal entries = %+v, want none", journal.entries)
		}
	})

	t.Run("journal failure does not fail the deletion", func(t *testing.T) {
		journal := &fakeJournal{err: errBackend}
		docs := newFakeDocumentStore()
		svc := NewDeletionService(&fakeAuthProvider{}, docs, newFakeObjectStore(), testLogger(), WithJournal(journal))
		result, err := svc.Delete(context.Background(), deletion.Request{Identity: testIdentity, Secret: "s", TargetIDs: []string{"r1"}})
		if err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if len(result.DeletedRecordIDs) != 1 || docs.commits != 1 {
			t.Errorf("result = %+v, commits = %d", result, docs.commits)
		}
	})
}
