package types

import (
	"encoding/json"
	"maps"
	"slices"
)

// Attributes is a name-to-value collection backing the pool-level,
// product-level, and derived-product attribute sets. Names are
// case-sensitive and unique within a set; writing an existing name
// overwrites its value in place.
//
// The zero value is usable: reads on a nil map behave as empty,
// and Set allocates on first write through the owning pointer.
type Attributes map[string]string

// NewAttributes creates an empty attribute set.
func NewAttributes() Attributes {
	return make(Attributes)
}

// Get returns the value for name and whether it is present.
func (a Attributes) Get(name string) (string, bool) {
	v, ok := a[name]
	return v, ok
}

// Value returns the value for name, or the empty string when absent.
// Use Get when the caller must distinguish absent from empty.
func (a Attributes) Value(name string) string {
	return a[name]
}

// Has reports whether name is present in the set.
func (a Attributes) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Equals reports whether name is present and its value equals expected.
// Safe to call on any set; absent names never match.
func (a Attributes) Equals(name, expected string) bool {
	v, ok := a[name]
	return ok && v == expected
}

// Set writes name to value, overwriting any existing entry in place.
func (a *Attributes) Set(name, value string) {
	if *a == nil {
		*a = make(Attributes)
	}
	(*a)[name] = value
}

// Remove deletes name from the set, returning its last known value.
// The second return is false if the name was not present.
func (a Attributes) Remove(name string) (string, bool) {
	v, ok := a[name]
	if ok {
		delete(a, name)
	}
	return v, ok
}

// Names returns the attribute names in sorted order.
func (a Attributes) Names() []string {
	return slices.Sorted(maps.Keys(a))
}

// Len returns the number of attributes in the set.
func (a Attributes) Len() int {
	return len(a)
}

// Clone returns an independent copy of the set.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}

// MarshalJSON renders the set as a JSON object. A nil set marshals as {}
// so stored columns never distinguish nil from empty.
func (a Attributes) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(a))
}

// UnmarshalJSON parses a JSON object into the set.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	m := make(map[string]string)
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*a = m
	return nil
}
