package s3

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

const testBucket = "reports"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeS3 serves the subset of the path-style S3 REST API the store uses.
// Listings are paged two keys at a time.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	denied  map[string]bool
	lists   int
}

type listResult struct {
	XMLName               xml.Name      `xml:"ListBucketResult"`
	Name                  string        `xml:"Name"`
	Prefix                string        `xml:"Prefix"`
	KeyCount              int           `xml:"KeyCount"`
	IsTruncated           bool          `xml:"IsTruncated"`
	NextContinuationToken string        `xml:"NextContinuationToken,omitempty"`
	Contents              []listContent `xml:"Contents"`
}

type listContent struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	Size         int64  `xml:"Size"`
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/"+testBucket)
	key := strings.TrimPrefix(path, "/")

	switch {
	case r.Method == http.MethodGet && key == "" && r.URL.Query().Get("list-type") == "2":
		f.list(w, r)
	case r.Method == http.MethodPut && key != "":
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete && key != "":
		if f.denied[key] {
			writeError(w, http.StatusForbidden, "AccessDenied")
			return
		}
		if _, ok := f.objects[key]; !ok {
			writeError(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodHead && key == "":
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusBadRequest, "InvalidRequest")
	}
}

func (f *fakeS3) list(w http.ResponseWriter, r *http.Request) {
	f.lists++
	prefix := r.URL.Query().Get("prefix")
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start, _ := strconv.Atoi(r.URL.Query().Get("continuation-token"))
	end := min(start+2, len(keys))
	res := listResult{Name: testBucket, Prefix: prefix}
	for _, k := range keys[start:end] {
		res.Contents = append(res.Contents, listContent{
			Key:          k,
			LastModified: "2024-03-01T12:00:00.000Z",
			Size:         int64(len(f.objects[k])),
		})
	}
	res.KeyCount = len(res.Contents)
	if end < len(keys) {
		res.IsTruncated = true
		res.NextContinuationToken = strconv.Itoa(end)
	}
	w.Header().Set("Content-Type", "application/xml")
	_ = xml.NewEncoder(w).Encode(res)
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
}

func newTestStore(t *testing.T) (*ObjectStore, *fakeS3) {
	t.Helper()
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_CONFIG_FILE", os.DevNull)
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", os.DevNull)

	fake := &fakeS3{objects: make(map[string][]byte), denied: make(map[string]bool)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := New(context.Background(), Config{
		Bucket:          testBucket,
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	}, testLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return store, fake
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Region: "us-east-1"}, testLogger())
	if !errors.Is(err, ErrBucketRequired) {
		t.Errorf("New() error = %v, want ErrBucketRequired", err)
	}
}

func TestObjectStore_ListPaginates(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()
	for _, k := range []string{"a.pdf", "b.jpg", "c.png", "d.txt", "e.bin"} {
		fake.objects["users/u1/reports/r1/"+k] = []byte(k)
	}
	fake.objects["users/u1/reports/r2/other.pdf"] = []byte("x")

	refs, err := store.ListObjects(ctx, "users/u1/reports/r1/")
	if err != nil {
		t.Fatalf("ListObjects() error: %v", err)
	}
	if len(refs) != 5 {
		t.Fatalf("ListObjects() returned %d refs, want 5", len(refs))
	}
	if fake.lists != 3 {
		t.Errorf("list requests = %d, want 3 pages", fake.lists)
	}
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if refs[0].Key != "users/u1/reports/r1/a.pdf" || refs[0].Size != 5 || !refs[0].Updated.Equal(want) {
		t.Errorf("refs[0] = %+v", refs[0])
	}
}

func TestObjectStore_PutAndDelete(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()
	key := "users/u1/reports/r1/report.pdf"

	if err := store.PutObject(ctx, key, strings.NewReader("%PDF"), 4); err != nil {
		t.Fatalf("PutObject() error: %v", err)
	}
	if string(fake.objects[key]) != "%PDF" {
		t.Fatalf("stored body = %q", fake.objects[key])
	}

	if err := store.DeleteObject(ctx, outbound.ObjectRef{Key: key}); err != nil {
		t.Fatalf("DeleteObject() error: %v", err)
	}
	if _, ok := fake.objects[key]; ok {
		t.Error("object should be deleted")
	}

	// NoSuchKey from a compatible server is a no-op.
	if err := store.DeleteObject(ctx, outbound.ObjectRef{Key: key}); err != nil {
		t.Errorf("DeleteObject(absent) = %v, want nil", err)
	}
}

func TestObjectStore_DeleteFailure(t *testing.T) {
	store, fake := newTestStore(t)
	key := "users/u1/reports/r1/locked.pdf"
	fake.objects[key] = []byte("x")
	fake.denied[key] = true

	err := store.DeleteObject(context.Background(), outbound.ObjectRef{Key: key})
	if err == nil {
		t.Fatal("DeleteObject() should fail on AccessDenied")
	}
	if isNotFound(err) {
		t.Error("AccessDenied must not be treated as not found")
	}
}

func TestObjectStore_Health(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Health(context.Background()); err != nil {
		t.Errorf("Health() error: %v", err)
	}
}
