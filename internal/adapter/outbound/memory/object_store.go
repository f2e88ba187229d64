package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

type storedObject struct {
	data    []byte
	updated time.Time
}

// ObjectStore is an in-memory object store.
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string]storedObject
	now     func() time.Time
}

// NewObjectStore creates an empty store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{
		objects: make(map[string]storedObject),
		now:     time.Now,
	}
}

// ListObjects implements outbound.ObjectStore.
func (s *ObjectStore) ListObjects(ctx context.Context, prefix string) ([]outbound.ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var refs []outbound.ObjectRef
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			refs = append(refs, outbound.ObjectRef{Key: key, Size: int64(len(obj.data)), Updated: obj.updated})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key < refs[j].Key })
	return refs, nil
}

// DeleteObject implements outbound.ObjectStore. Absent objects are a no-op.
func (s *ObjectStore) DeleteObject(ctx context.Context, ref outbound.ObjectRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, ref.Key)
	return nil
}

// PutObject implements outbound.ObjectWriter.
func (s *ObjectStore) PutObject(ctx context.Context, key string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read object body: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("object %s: read %d bytes, expected %d", key, len(data), size)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = storedObject{data: data, updated: s.now()}
	return nil
}

// GetObject returns a copy of an object's content.
func (s *ObjectStore) GetObject(_ context.Context, key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

var (
	_ outbound.ObjectStore  = (*ObjectStore)(nil)
	_ outbound.ObjectWriter = (*ObjectStore)(nil)
)
