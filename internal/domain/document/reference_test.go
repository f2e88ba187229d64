package document

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantKind Kind
		wantErr  bool
	}{
		{name: "document", path: "users/u1", wantKind: KindDocument},
		{name: "collection", path: "users/u1/reports", wantKind: KindCollection},
		{name: "top-level collection", path: "users", wantKind: KindCollection},
		{name: "trims slashes", path: "/users/u1/", wantKind: KindDocument},
		{name: "empty", path: "", wantErr: true},
		{name: "empty segment", path: "users//u1", wantErr: true},
		{name: "dot segment", path: "users/../u1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := Parse(tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPath) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalidPath", tt.path, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.path, err)
			}
			if ref.Kind() != tt.wantKind {
				t.Errorf("Kind() = %q, want %q", ref.Kind(), tt.wantKind)
			}
		})
	}
}

func TestReference_Navigation(t *testing.T) {
	report := Doc("users", "u1", "reports", "r1")

	if report.ID() != "r1" {
		t.Errorf("ID() = %q, want r1", report.ID())
	}
	if got := report.Parent().Path(); got != "users/u1/reports" {
		t.Errorf("Parent() = %q, want users/u1/reports", got)
	}
	if got := report.Parent().Parent().Path(); got != "users/u1" {
		t.Errorf("Parent().Parent() = %q, want users/u1", got)
	}
	if !Collection("users").Parent().IsZero() {
		t.Error("top-level collection parent should be the null reference")
	}

	child, err := Collection("users", "u1", "reports").Child("r2")
	if err != nil {
		t.Fatalf("Child() error = %v", err)
	}
	if child.Path() != "users/u1/reports/r2" {
		t.Errorf("Child() = %q", child.Path())
	}
	if _, err := Collection("users").Child("a/b"); err == nil {
		t.Error("Child() with slash should fail")
	}
	if _, err := (Reference{}).Child("x"); err == nil {
		t.Error("Child() of null reference should fail")
	}
}

func TestReference_Zero(t *testing.T) {
	var ref Reference
	if !ref.IsZero() {
		t.Error("zero reference should be null")
	}
	if ref.Kind() != KindNone {
		t.Errorf("Kind() = %q, want none", ref.Kind())
	}
	if ref.String() != "<null>" {
		t.Errorf("String() = %q", ref.String())
	}
	if !ref.Equal(Reference{}) {
		t.Error("null references should be equal")
	}
}

func TestReference_TextRoundTrip(t *testing.T) {
	var ref Reference
	if err := ref.UnmarshalText([]byte("users/u1")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if !ref.Equal(Doc("users", "u1")) {
		t.Errorf("UnmarshalText() = %v", ref)
	}
	if err := ref.UnmarshalText(nil); err != nil || !ref.IsZero() {
		t.Errorf("UnmarshalText(nil) = %v, %v; want null reference", ref, err)
	}
}
