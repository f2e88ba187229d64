// Package document contains the domain types for the realtime document store:
// references, query options, and snapshots.
package document

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned when a path cannot address a document or collection.
var ErrInvalidPath = errors.New("invalid document path")

// Kind identifies what a Reference points at.
type Kind string

const (
	// KindNone is the kind of the zero (null) reference.
	KindNone Kind = ""
	// KindDocument addresses a single record. Document paths have an even
	// number of segments ("users/u1").
	KindDocument Kind = "document"
	// KindCollection addresses a set of records. Collection paths have an
	// odd number of segments ("users/u1/reports").
	KindCollection Kind = "collection"
)

// Reference is an addressable pointer to a document or a collection.
// The zero value is the null reference, meaning "not yet subscribable".
type Reference struct {
	path string
}

// Parse validates a slash separated path and returns its Reference.
func Parse(path string) (Reference, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return Reference{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return Reference{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return Reference{path: path}, nil
}

// MustParse is like Parse but panics on an invalid path.
func MustParse(path string) Reference {
	ref, err := Parse(path)
	if err != nil {
		panic(err)
	}
	return ref
}

// Doc builds a document reference from its segments.
func Doc(segments ...string) Reference {
	ref := MustParse(strings.Join(segments, "/"))
	if ref.Kind() != KindDocument {
		panic(fmt.Sprintf("document: %q is not a document path", ref.path))
	}
	return ref
}

// Collection builds a collection reference from its segments.
func Collection(segments ...string) Reference {
	ref := MustParse(strings.Join(segments, "/"))
	if ref.Kind() != KindCollection {
		panic(fmt.Sprintf("document: %q is not a collection path", ref.path))
	}
	return ref
}

// IsZero reports whether r is the null reference.
func (r Reference) IsZero() bool {
	return r.path == ""
}

// Path returns the canonical slash separated path ("" for the null reference).
func (r Reference) Path() string {
	return r.path
}

// String implements fmt.Stringer.
func (r Reference) String() string {
	if r.path == "" {
		return "<null>"
	}
	return r.path
}

// Kind returns whether r addresses a document or a collection.
func (r Reference) Kind() Kind {
	if r.path == "" {
		return KindNone
	}
	if strings.Count(r.path, "/")%2 == 1 {
		return KindDocument
	}
	return KindCollection
}

// ID returns the last path segment.
func (r Reference) ID() string {
	if i := strings.LastIndexByte(r.path, '/'); i >= 0 {
		return r.path[i+1:]
	}
	return r.path
}

// Parent returns the enclosing reference: the collection of a document, or
// the owning document of a sub-collection. Top-level collections have a null parent.
func (r Reference) Parent() Reference {
	i := strings.LastIndexByte(r.path, '/')
	if i < 0 {
		return Reference{}
	}
	return Reference{path: r.path[:i]}
}

// Child returns the reference of a direct child segment.
func (r Reference) Child(id string) (Reference, error) {
	if r.IsZero() {
		return Reference{}, fmt.Errorf("%w: child of null reference", ErrInvalidPath)
	}
	if id == "" || strings.Contains(id, "/") {
		return Reference{}, fmt.Errorf("%w: invalid segment %q", ErrInvalidPath, id)
	}
	return Reference{path: r.path + "/" + id}, nil
}

// Equal reports structural equality.
func (r Reference) Equal(other Reference) bool {
	return r.path == other.path
}

// MarshalText implements encoding.TextMarshaler.
func (r Reference) MarshalText() ([]byte, error) {
	return []byte(r.path), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty text yields the null reference.
func (r *Reference) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*r = Reference{}
		return nil
	}
	ref, err := Parse(string(text))
	if err != nil {
		return err
	}
	*r = ref
	return nil
}
