package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestAncestorPathEncode(t *testing.T) {
	tests := []struct {
		name string
		path AncestorPath
		want string
	}{
		{name: "empty", path: AncestorPath{}, want: "0"},
		{name: "nil", path: nil, want: "0"},
		{name: "one", path: AncestorPath{100}, want: "0,100"},
		{name: "deep", path: AncestorPath{100, 101, 205}, want: "0,100,101,205"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.path.Encode(); got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseAncestorPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    AncestorPath
		wantErr bool
	}{
		{name: "root", input: "0", want: AncestorPath{}},
		{name: "empty", input: "", want: AncestorPath{}},
		{name: "nested", input: "0,100,101", want: AncestorPath{100, 101}},
		{name: "spaces", input: " 0, 100 ", want: AncestorPath{100}},
		{name: "no leading zero", input: "100,101", want: AncestorPath{100, 101}},
		{name: "garbage", input: "0,abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAncestorPath(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("ParseAncestorPath() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAncestorPath() unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseAncestorPath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAncestorPathRoundTrip(t *testing.T) {
	path := AncestorPath{100, 7, 42}
	parsed, err := ParseAncestorPath(path.Encode())
	if err != nil {
		t.Fatalf("ParseAncestorPath() error: %v", err)
	}
	if !parsed.Equal(path) {
		t.Errorf("round trip = %v, want %v", parsed, path)
	}
}

func TestAncestorPathChildDoesNotAlias(t *testing.T) {
	base := make(AncestorPath, 1, 4)
	base[0] = 100
	a := base.Child(1)
	b := base.Child(2)
	if a[1] != 1 || b[1] != 2 {
		t.Errorf("Child() shared backing array: a=%v b=%v", a, b)
	}
	if len(base) != 1 {
		t.Errorf("Child() mutated receiver: %v", base)
	}
}

func TestSourceDepartmentIsRoot(t *testing.T) {
	empty := ""
	parent := "d1"
	tests := []struct {
		name   string
		parent *string
		want   bool
	}{
		{name: "nil parent", parent: nil, want: true},
		{name: "empty parent", parent: &empty, want: true},
		{name: "has parent", parent: &parent, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := SourceDepartment{ExternalID: "x", ParentExternalID: tt.parent}
			if got := d.IsRoot(); got != tt.want {
				t.Errorf("IsRoot() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFatalInputError(t *testing.T) {
	var err error = &FatalInputError{Kind: FatalCycle, ExternalIDs: []string{"a", "b", "a"}}
	if got := err.Error(); got != "cycle detected in department parent graph: a -> b -> a" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := fmt.Errorf("build hierarchy: %w", err)
	var fatal *FatalInputError
	if !errors.As(wrapped, &fatal) {
		t.Fatal("errors.As() failed to find FatalInputError")
	}
	if fatal.Kind != FatalCycle {
		t.Errorf("Kind = %s, want %s", fatal.Kind, FatalCycle)
	}
}

func TestWriteErrorUnwrap(t *testing.T) {
	cause := errors.New("constraint failed")
	err := &WriteError{Entity: "department", Key: "d1", Op: "insert", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() should find wrapped cause")
	}
	if got := err.Error(); got != "insert department d1: constraint failed" {
		t.Errorf("Error() = %q", got)
	}
}
