package subscription

import (
	"errors"
	"testing"

	"github.com/Commandability/commandability-web-sub001/internal/domain/document"
)

func TestCombine(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	tests := []struct {
		name       string
		names      []string
		entries    map[string]State
		wantStatus Status
		wantErr    error
	}{
		{
			name:       "empty set is resolved",
			wantStatus: StatusResolved,
		},
		{
			name:  "all resolved",
			names: []string{"a", "b"},
			entries: map[string]State{
				"a": {Status: StatusResolved},
				"b": {Status: StatusResolved},
			},
			wantStatus: StatusResolved,
		},
		{
			name:  "absent entry is pending",
			names: []string{"a", "b"},
			entries: map[string]State{
				"a": {Status: StatusResolved},
			},
			wantStatus: StatusPending,
		},
		{
			name:  "rejected dominates pending",
			names: []string{"a", "b", "c"},
			entries: map[string]State{
				"a": {Status: StatusPending},
				"b": {Status: StatusRejected, Err: errB},
				"c": {Status: StatusResolved},
			},
			wantStatus: StatusRejected,
			wantErr:    errB,
		},
		{
			name:  "first rejected error in spec order",
			names: []string{"b", "a"},
			entries: map[string]State{
				"a": {Status: StatusRejected, Err: errA},
				"b": {Status: StatusRejected, Err: errB},
			},
			wantStatus: StatusRejected,
			wantErr:    errB,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := Combine(tt.names, tt.entries)
			if status != tt.wantStatus {
				t.Errorf("Combine() status = %q, want %q", status, tt.wantStatus)
			}
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Errorf("Combine() err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSpecs(t *testing.T) {
	if err := ValidateSpecs([]Spec{{Name: "a"}, {Name: "b"}}); err != nil {
		t.Errorf("ValidateSpecs() unexpected error: %v", err)
	}
	if err := ValidateSpecs([]Spec{{Name: "a"}, {Name: "a"}}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("ValidateSpecs() = %v, want ErrDuplicateName", err)
	}
	if err := ValidateSpecs([]Spec{{}}); !errors.Is(err, ErrEmptyName) {
		t.Errorf("ValidateSpecs() = %v, want ErrEmptyName", err)
	}
}

func TestKeyOf(t *testing.T) {
	docA := document.Doc("users", "a")
	docB := document.Doc("users", "b")

	base := Spec{Name: "user", Reference: docA}

	if KeyOf(base) != KeyOf(Spec{Name: "user", Reference: document.MustParse("/users/a/")}) {
		t.Error("structurally equal references should share a key")
	}
	if KeyOf(base) == KeyOf(Spec{Name: "user", Reference: docB}) {
		t.Error("different references should differ")
	}
	if KeyOf(base) == KeyOf(Spec{Name: "profile", Reference: docA}) {
		t.Error("different names should differ")
	}
	if KeyOf(base) == KeyOf(Spec{Name: "user"}) {
		t.Error("null reference should differ from a real reference")
	}
	withOpts := Spec{Name: "user", Reference: docA, Options: document.Options{Limit: 3}}
	if KeyOf(base) == KeyOf(withOpts) {
		t.Error("different options should differ")
	}
	if KeyOf(withOpts) != KeyOf(Spec{Name: "user", Reference: docA, Options: document.Options{Limit: 3}}) {
		t.Error("equal options should share a key")
	}
}

func TestAggregate_Data(t *testing.T) {
	snap := &document.Snapshot{Ref: document.Doc("users", "a"), Exists: true}
	agg := Aggregate{
		Entries: map[string]State{
			"user":    {Name: "user", Status: StatusResolved, Data: snap},
			"reports": {Name: "reports", Status: StatusPending},
		},
	}
	if agg.Data("user") != snap {
		t.Error("Data(user) should return the resolved snapshot")
	}
	if agg.Data("reports") != nil {
		t.Error("Data(reports) should be nil while pending")
	}
	if agg.Data("missing") != nil {
		t.Error("Data(missing) should be nil")
	}
}
