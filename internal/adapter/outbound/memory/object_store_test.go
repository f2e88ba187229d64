package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

func TestObjectStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewObjectStore()

	for _, key := range []string{
		"users/u1/reports/r1/report.pdf",
		"users/u1/reports/r1/photo.jpg",
		"users/u1/reports/r10/report.pdf",
	} {
		if err := store.PutObject(ctx, key, bytes.NewReader([]byte(key)), int64(len(key))); err != nil {
			t.Fatalf("PutObject() error: %v", err)
		}
	}

	refs, err := store.ListObjects(ctx, "users/u1/reports/r1/")
	if err != nil {
		t.Fatalf("ListObjects() error: %v", err)
	}
	if len(refs) != 2 || refs[0].Key != "users/u1/reports/r1/photo.jpg" {
		t.Fatalf("ListObjects() = %+v, want the two r1 objects sorted", refs)
	}

	for _, ref := range refs {
		if err := store.DeleteObject(ctx, ref); err != nil {
			t.Fatalf("DeleteObject() error: %v", err)
		}
	}
	// Absent objects are a no-op.
	if err := store.DeleteObject(ctx, outbound.ObjectRef{Key: "users/u1/reports/r1/report.pdf"}); err != nil {
		t.Errorf("DeleteObject(absent) = %v, want nil", err)
	}

	if _, ok := store.GetObject(ctx, "users/u1/reports/r10/report.pdf"); !ok {
		t.Error("r10 must not be matched by the r1/ prefix")
	}
}

func TestObjectStore_PutSizeMismatch(t *testing.T) {
	store := NewObjectStore()
	if err := store.PutObject(context.Background(), "k", bytes.NewReader([]byte("abc")), 5); err == nil {
		t.Error("PutObject() with wrong size should fail")
	}
}
