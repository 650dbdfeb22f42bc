package types_test

import (
	"encoding/json"
	"testing"

	"github.com/xraph/reservoir/types"
)

func TestAttributesSetGet(t *testing.T) {
	a := types.NewAttributes()
	a.Set("virt_limit", "4")

	v, ok := a.Get("virt_limit")
	if !ok || v != "4" {
		t.Fatalf("expected (4, true), got (%q, %v)", v, ok)
	}

	if _, ok := a.Get("missing"); ok {
		t.Error("expected absent name to report false")
	}
}

func TestAttributesSetOverwritesInPlace(t *testing.T) {
	a := types.NewAttributes()
	a.Set("sockets", "2")
	a.Set("sockets", "2") // same name+value twice
	a.Set("sockets", "4")

	if a.Len() != 1 {
		t.Fatalf("expected exactly one entry, got %d", a.Len())
	}
	if v := a.Value("sockets"); v != "4" {
		t.Errorf("expected overwritten value 4, got %q", v)
	}
}

func TestAttributesCaseSensitive(t *testing.T) {
	a := types.NewAttributes()
	a.Set("Virt_Only", "true")

	if a.Has("virt_only") {
		t.Error("lookup must be case-sensitive")
	}
	if !a.Has("Virt_Only") {
		t.Error("exact-case lookup failed")
	}
}

func TestAttributesEquals(t *testing.T) {
	a := types.NewAttributes()
	a.Set("virt_only", "true")

	if !a.Equals("virt_only", "true") {
		t.Error("expected match")
	}
	if a.Equals("virt_only", "false") {
		t.Error("expected value mismatch")
	}
	if a.Equals("absent", "") {
		t.Error("absent name must never match, even against empty string")
	}
}

func TestAttributesRemove(t *testing.T) {
	a := types.NewAttributes()
	a.Set("requires_host", "host-1")

	v, ok := a.Remove("requires_host")
	if !ok || v != "host-1" {
		t.Fatalf("expected (host-1, true), got (%q, %v)", v, ok)
	}
	if a.Has("requires_host") {
		t.Error("expected name removed")
	}

	if _, ok := a.Remove("requires_host"); ok {
		t.Error("removing an absent name should report false")
	}
}

func TestAttributesNilReads(t *testing.T) {
	var a types.Attributes

	if a.Has("anything") {
		t.Error("nil set should have no names")
	}
	if v := a.Value("anything"); v != "" {
		t.Errorf("expected empty value, got %q", v)
	}
	if a.Len() != 0 {
		t.Errorf("expected zero length, got %d", a.Len())
	}
}

func TestAttributesSetThroughNilPointer(t *testing.T) {
	var a types.Attributes
	a.Set("pool_derived", "true")

	if !a.Has("pool_derived") {
		t.Error("Set on zero-value Attributes should allocate")
	}
}

func TestAttributesClone(t *testing.T) {
	a := types.NewAttributes()
	a.Set("stacking_id", "stack-1")

	b := a.Clone()
	b.Set("stacking_id", "stack-2")

	if a.Value("stacking_id") != "stack-1" {
		t.Error("clone must be independent of the original")
	}
}

func TestAttributesJSON(t *testing.T) {
	a := types.NewAttributes()
	a.Set("virt_limit", "unlimited")

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var restored types.Attributes
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !restored.Equals("virt_limit", "unlimited") {
		t.Error("round-trip lost entry")
	}

	// Nil marshals as an empty object.
	var empty types.Attributes
	data, err = json.Marshal(empty)
	if err != nil {
		t.Fatalf("marshal nil failed: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("expected {}, got %s", data)
	}
}

func TestAttributesNames(t *testing.T) {
	a := types.NewAttributes()
	a.Set("b", "2")
	a.Set("a", "1")
	a.Set("c", "3")

	names := a.Names()
	want := []string{"a", "b", "c"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
