// Package state provides the record carried between workflow steps.
//
// A State is never mutated in place. Nodes receive a read-only State and
// return a Delta holding only the fields they change; Merge produces the
// next State. Keys absent from a Delta are left untouched.
package state

import (
	"fmt"
	"sort"
)

// Delta is the partial State a node returns.
type Delta map[string]any

// Keys returns the delta keys in sorted order.
func (d Delta) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// State is an ordered mapping from field name to value.
// The zero value is an empty State ready to use.
type State struct {
	fields map[string]any
	order  []string
}

// New builds a State from a plain map. Field order follows sorted key order.
func New(fields map[string]any) State {
	return State{}.Merge(Delta(fields))
}

// Get returns the value stored under key.
func (s State) Get(key string) (any, bool) {
	v, ok := s.fields[key]
	return v, ok
}

// Has reports whether key is present.
func (s State) Has(key string) bool {
	_, ok := s.fields[key]
	return ok
}

// Len returns the number of fields.
func (s State) Len() int {
	return len(s.order)
}

// Keys returns field names in insertion order.
func (s State) Keys() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Merge returns a new State equal to s except that every key in d holds d's
// value. Existing keys keep their position; new keys are appended in sorted
// order. s itself is not modified.
func (s State) Merge(d Delta) State {
	next := State{
		fields: make(map[string]any, len(s.fields)+len(d)),
		order:  make([]string, len(s.order), len(s.order)+len(d)),
	}
	copy(next.order, s.order)
	for k, v := range s.fields {
		next.fields[k] = v
	}
	for _, k := range d.Keys() {
		if _, exists := next.fields[k]; !exists {
			next.order = append(next.order, k)
		}
		next.fields[k] = d[k]
	}
	return next
}

// Snapshot returns a shallow copy of the fields as a plain map.
func (s State) Snapshot() map[string]any {
	out := make(map[string]any, len(s.fields))
	for k, v := range s.fields {
		out[k] = v
	}
	return out
}

// Equal reports whether both states hold the same keys with equal values.
// Values must be comparable.
func (s State) Equal(other State) bool {
	if len(s.fields) != len(other.fields) {
		return false
	}
	for k, v := range s.fields {
		ov, ok := other.fields[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer for debug output.
func (s State) String() string {
	return fmt.Sprintf("State%v", s.Keys())
}

// Lookup returns the value under key converted to T. The boolean is false
// when the key is absent or holds a value of another type.
func Lookup[T any](s State, key string) (T, bool) {
	var zero T
	v, ok := s.fields[key]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// LookupOr returns the value under key, or def when it is absent or mistyped.
func LookupOr[T any](s State, key string, def T) T {
	if v, ok := Lookup[T](s, key); ok {
		return v
	}
	return def
}
