// Package filestore provides an object store on the local filesystem.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

// ErrInvalidKey is returned for keys that would escape the store root.
var ErrInvalidKey = errors.New("invalid object key")

const (
	lockName  = ".lock"
	tmpSuffix = ".tmp"
)

// ObjectStore keeps each object in one file under a root directory, at the
// object key's slash separated path. Writes are atomic (write-tmp-then-
// rename) and serialized across processes with a lock file.
type ObjectStore struct {
	root   string
	mu     sync.Mutex
	logger *slog.Logger
}

// New creates the root directory if needed and returns a store on it.
func New(root string, logger *slog.Logger) (*ObjectStore, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create object root: %w", err)
	}
	if runtime.GOOS != "windows" {
		if info, err := os.Stat(root); err == nil && info.Mode().Perm()&0o077 != 0 {
			logger.Warn("object root has too-open permissions, should be 0700",
				"path", root, "current_mode", fmt.Sprintf("%04o", info.Mode().Perm()))
		}
	}
	return &ObjectStore{root: root, logger: logger}, nil
}

// filePath maps a key to its file, rejecting keys that leave the root.
func (s *ObjectStore) filePath(key string) (string, error) {
	clean := path.Clean(key)
	if key == "" || clean != key || strings.HasPrefix(clean, "/") || clean == "." ||
		strings.HasPrefix(clean, "../") || clean == ".." || strings.HasSuffix(key, tmpSuffix) || path.Base(clean) == lockName {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// withLock runs fn holding the in-process mutex and the cross-process lock.
func (s *ObjectStore) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockFile, err := os.OpenFile(filepath.Join(s.root, lockName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	return fn()
}

// ListObjects implements outbound.ObjectStore.
func (s *ObjectStore) ListObjects(ctx context.Context, prefix string) ([]outbound.ObjectRef, error) {
	// Walk from the deepest directory the prefix names.
	dir := s.root
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir = filepath.Join(s.root, filepath.FromSlash(prefix[:i]))
	}

	var refs []outbound.ObjectRef
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if name == lockName || strings.HasSuffix(name, tmpSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		refs = append(refs, outbound.ObjectRef{Key: key, Size: info.Size(), Updated: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects %q: %w", prefix, err)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key < refs[j].Key })
	return refs, nil
}

// DeleteObject implements outbound.ObjectStore. Absent objects are a no-op.
// Directories left empty are removed up to the root.
func (s *ObjectStore) DeleteObject(ctx context.Context, ref outbound.ObjectRef) error {
	p, err := s.filePath(ref.Key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.withLock(func() error {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete object %s: %w", ref.Key, err)
		}
		s.pruneEmptyDirs(filepath.Dir(p))
		return nil
	})
}

func (s *ObjectStore) pruneEmptyDirs(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		if err := os.Remove(dir); err != nil {
			// Not empty, or already gone.
			return
		}
		dir = filepath.Dir(dir)
	}
}

// PutObject implements outbound.ObjectWriter. The sequence is: lock, write
// key+".tmp", fsync, rename over the key.
func (s *ObjectStore) PutObject(ctx context.Context, key string, body io.Reader, size int64) error {
	p, err := s.filePath(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.withLock(func() error {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("create object dir: %w", err)
		}
		if err := writeAtomic(p, body, size); err != nil {
			return err
		}
		s.logger.Debug("object stored", "key", key)
		return nil
	})
}

// writeAtomic writes body to a temp file, fsyncs it, and renames it over
// target. On any error the temp file is removed.
func writeAtomic(target string, body io.Reader, size int64) error {
	tmpPath := target + tmpSuffix

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	n, err := io.Copy(f, body)
	if err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if size >= 0 && n != size {
		cleanup()
		return fmt.Errorf("write temp file: wrote %d bytes, expected %d", n, size)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Root returns the store's root directory.
func (s *ObjectStore) Root() string {
	return s.root
}

var (
	_ outbound.ObjectStore  = (*ObjectStore)(nil)
	_ outbound.ObjectWriter = (*ObjectStore)(nil)
)
