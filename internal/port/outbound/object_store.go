package outbound

import (
	"context"
	"io"
	"time"
)

// ObjectRef identifies one stored object.
type ObjectRef struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	Updated time.Time `json:"updated"`
}

// ObjectStore is the outbound port for the object storage service.
type ObjectStore interface {
	// ListObjects returns every object whose key starts with prefix.
	ListObjects(ctx context.Context, prefix string) ([]ObjectRef, error)

	// DeleteObject removes one object. Deleting an absent object is a no-op.
	DeleteObject(ctx context.Context, ref ObjectRef) error
}

// ObjectWriter is implemented by stores that accept uploads.
type ObjectWriter interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error
}
