package document

import (
	"encoding/json"
	"sort"
	"time"
)

// Data is the field map of a single document.
type Data map[string]any

// Clone returns a deep copy of d. Nested maps and slices are copied;
// scalar values are shared.
func (d Data) Clone() Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Data(t).Clone())
	case Data:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Document is one stored record.
type Document struct {
	Ref        Reference `json:"ref"`
	Data       Data      `json:"data"`
	UpdateTime time.Time `json:"update_time"`
}

// Clone returns a deep copy of doc.
func (doc Document) Clone() Document {
	doc.Data = doc.Data.Clone()
	return doc
}

// Snapshot is the value of a subscribed reference at one point in time,
// as delivered by a push listener. Document references fill Exists/Data;
// collection references fill Docs.
type Snapshot struct {
	Ref      Reference  `json:"ref"`
	Exists   bool       `json:"exists"`
	Data     Data       `json:"data,omitempty"`
	Docs     []Document `json:"docs,omitempty"`
	ReadTime time.Time  `json:"read_time"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	s.Data = s.Data.Clone()
	if s.Docs != nil {
		docs := make([]Document, len(s.Docs))
		for i := range s.Docs {
			docs[i] = s.Docs[i].Clone()
		}
		s.Docs = docs
	}
	return s
}

// Options are the query options of a subscription. They are part of the
// subscription identity, so two specs with different options are different
// subscriptions even on the same reference.
type Options struct {
	// Filter is a CEL expression evaluated against each document of a
	// collection ("doc.status == 'final'"). Ignored for document references.
	Filter string `json:"filter,omitempty" yaml:"filter" mapstructure:"filter"`
	// OrderBy names the field collections are sorted by. Empty sorts by id.
	OrderBy string `json:"order_by,omitempty" yaml:"order_by" mapstructure:"order_by"`
	// Descending reverses the sort order.
	Descending bool `json:"descending,omitempty" yaml:"descending" mapstructure:"descending"`
	// Limit caps the number of documents. Zero means unlimited.
	Limit int `json:"limit,omitempty" yaml:"limit" mapstructure:"limit"`
}

// IsZero reports whether no option is set.
func (o Options) IsZero() bool {
	return o == Options{}
}

// Canonical returns a deterministic encoding of o used for structural hashing.
func (o Options) Canonical() []byte {
	if o.IsZero() {
		return nil
	}
	b, _ := json.Marshal(o)
	return b
}

// SortDocuments orders docs in place by the OrderBy field of o, breaking ties
// by document id, and applies Limit. It returns the (possibly truncated) slice.
func SortDocuments(docs []Document, o Options) []Document {
	sort.SliceStable(docs, func(i, j int) bool {
		c := 0
		if o.OrderBy != "" {
			c = compareValues(docs[i].Data[o.OrderBy], docs[j].Data[o.OrderBy])
		}
		if c == 0 {
			c = compareStrings(docs[i].Ref.ID(), docs[j].Ref.ID())
		}
		if o.Descending {
			return c > 0
		}
		return c < 0
	})
	if o.Limit > 0 && len(docs) > o.Limit {
		docs = docs[:o.Limit]
	}
	return docs
}

// compareValues orders missing < bool < number < string < time < other.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case string:
		return compareStrings(av, b.(string))
	case time.Time:
		return av.Compare(b.(time.Time))
	}
	if fa, ok := toFloat(a); ok {
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case string:
		return 3
	case time.Time:
		return 4
	}
	if _, ok := toFloat(v); ok {
		return 2
	}
	return 5
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
