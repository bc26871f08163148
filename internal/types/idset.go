// Package types contains shared types used across multiple packages to avoid import cycles.
package types

import (
	"github.com/elliotchance/orderedmap/v2"
)

// IdentifierSet holds record identifiers extracted from one completed export.
// Identifiers are deduplicated and insertion order is preserved, which keeps
// predicate chunk ordering deterministic across runs.
type IdentifierSet struct {
	ids *orderedmap.OrderedMap[string, struct{}]
}

// NewIdentifierSet creates an empty identifier set.
func NewIdentifierSet() *IdentifierSet {
	return &IdentifierSet{
		ids: orderedmap.NewOrderedMap[string, struct{}](),
	}
}

// NewIdentifierSetFrom creates an identifier set populated from the given
// values, preserving their order and dropping duplicates and empty strings.
func NewIdentifierSetFrom(values []string) *IdentifierSet {
	s := NewIdentifierSet()
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts an identifier. Duplicates and empty strings are ignored.
// Returns true if the identifier was newly added.
func (s *IdentifierSet) Add(id string) bool {
	if id == "" {
		return false
	}
	if _, exists := s.ids.Get(id); exists {
		return false
	}
	s.ids.Set(id, struct{}{})
	return true
}

// Contains reports whether the identifier is present.
func (s *IdentifierSet) Contains(id string) bool {
	_, exists := s.ids.Get(id)
	return exists
}

// Len returns the number of identifiers in the set.
func (s *IdentifierSet) Len() int {
	return s.ids.Len()
}

// Values returns all identifiers in insertion order.
func (s *IdentifierSet) Values() []string {
	out := make([]string, 0, s.ids.Len())
	for el := s.ids.Front(); el != nil; el = el.Next() {
		out = append(out, el.Key)
	}
	return out
}

// First returns up to n identifiers in insertion order. If the set holds
// fewer than n, all identifiers are returned.
func (s *IdentifierSet) First(n int) []string {
	if n <= 0 {
		return nil
	}
	out := make([]string, 0, n)
	for el := s.ids.Front(); el != nil && len(out) < n; el = el.Next() {
		out = append(out, el.Key)
	}
	return out
}
