package filestore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *ObjectStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "objects"), testLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

func put(t *testing.T, s *ObjectStore, key, body string) {
	t.Helper()
	if err := s.PutObject(context.Background(), key, strings.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("PutObject(%q) error: %v", key, err)
	}
}

func TestObjectStore_PutListDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	put(t, s, "users/u1/reports/r1/report.pdf", "pdf")
	put(t, s, "users/u1/reports/r1/photo.jpg", "jpeg!")
	put(t, s, "users/u1/reports/r10/report.pdf", "other")

	refs, err := s.ListObjects(ctx, "users/u1/reports/r1/")
	if err != nil {
		t.Fatalf("ListObjects() error: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("ListObjects() = %+v, want 2", refs)
	}
	if refs[0].Key != "users/u1/reports/r1/photo.jpg" || refs[0].Size != 5 {
		t.Errorf("refs[0] = %+v", refs[0])
	}

	all, err := s.ListObjects(ctx, "users/u1/")
	if err != nil || len(all) != 3 {
		t.Fatalf("ListObjects(users/u1/) = %v, %v", all, err)
	}

	for _, ref := range refs {
		if err := s.DeleteObject(ctx, ref); err != nil {
			t.Fatalf("DeleteObject() error: %v", err)
		}
	}
	if err := s.DeleteObject(ctx, refs[0]); err != nil {
		t.Errorf("DeleteObject(absent) = %v, want nil", err)
	}

	if _, err := os.Stat(filepath.Join(s.Root(), "users", "u1", "reports", "r1")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("empty record directory should be pruned, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "users", "u1", "reports", "r10", "report.pdf")); err != nil {
		t.Errorf("r10 object should survive: %v", err)
	}
}

func TestObjectStore_ListMissingPrefix(t *testing.T) {
	s := newTestStore(t)
	refs, err := s.ListObjects(context.Background(), "users/nobody/reports/")
	if err != nil {
		t.Fatalf("ListObjects() error: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("ListObjects() = %v, want empty", refs)
	}
}

func TestObjectStore_InvalidKeys(t *testing.T) {
	s := newTestStore(t)
	for _, key := range []string{"", "/etc/passwd", "../escape", "a/../../b", "a//b", "a/b.tmp", ".lock"} {
		err := s.PutObject(context.Background(), key, strings.NewReader("x"), 1)
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("PutObject(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
	if err := s.DeleteObject(context.Background(), outbound.ObjectRef{Key: "../x"}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("DeleteObject(../x) = %v, want ErrInvalidKey", err)
	}
}

func TestObjectStore_FailedWriteLeavesNoTemp(t *testing.T) {
	s := newTestStore(t)
	key := "users/u1/reports/r1/report.pdf"
	put(t, s, key, "original")

	err := s.PutObject(context.Background(), key, io.LimitReader(strings.NewReader("short"), 5), 100)
	if err == nil {
		t.Fatal("PutObject() with size mismatch should fail")
	}
	data, err := os.ReadFile(filepath.Join(s.Root(), filepath.FromSlash(key)))
	if err != nil || string(data) != "original" {
		t.Errorf("original object = %q, %v; want untouched", data, err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), filepath.FromSlash(key)) + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Error("temp file left behind")
	}
}

func TestObjectStore_ConcurrentWrites(t *testing.T) {
	s := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := strings.Repeat("x", i+1)
			_ = s.PutObject(context.Background(), "users/u1/reports/r1/report.pdf", strings.NewReader(body), int64(len(body)))
		}()
	}
	wg.Wait()

	refs, err := s.ListObjects(context.Background(), "users/u1/reports/r1/")
	if err != nil || len(refs) != 1 {
		t.Fatalf("ListObjects() = %v, %v; want one object", refs, err)
	}
	if refs[0].Size < 1 || refs[0].Size > 20 {
		t.Errorf("size = %d, want a complete write", refs[0].Size)
	}
}
