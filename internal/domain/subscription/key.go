package subscription

import (
	"github.com/cespare/xxhash/v2"
)

// Key is the identity of a spec: a structural hash over its name, its
// reference path, and its canonical options. Two specs with equal keys
// share one live listener.
type Key uint64

// KeyOf computes the identity key of spec.
func KeyOf(spec Spec) Key {
	h := xxhash.New()

	_, _ = h.WriteString(spec.Name)
	_, _ = h.Write([]byte{0}) // separator

	// The null reference hashes as an empty path with a distinct marker so it
	// never collides with a real path.
	if spec.Reference.IsZero() {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.WriteString(spec.Reference.Path())
	}
	_, _ = h.Write([]byte{0})

	_, _ = h.Write(spec.Options.Canonical())

	return Key(h.Sum64())
}
