// Package dedup remembers recently surfaced signal ids so repeated
// evaluations of the same window do not surface a signal twice.
package dedup

import "signal-engine/internal/ringbuf"

// DefaultCapacity is the number of ids remembered.
const DefaultCapacity = 100

// Set is a bounded set of ids with FIFO eviction and O(1) lookup.
// Not safe for concurrent use.
type Set struct {
	order   *ringbuf.Ring[string]
	members map[string]struct{}
}

// New creates a set remembering at most capacity ids.
func New(capacity int) *Set {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Set{
		order:   ringbuf.New[string](capacity),
		members: make(map[string]struct{}, capacity),
	}
}

// Contains reports whether id is remembered.
func (s *Set) Contains(id string) bool {
	_, ok := s.members[id]
	return ok
}

// Add remembers id and reports whether it was new. Adding beyond capacity
// forgets the oldest id.
func (s *Set) Add(id string) bool {
	if s.Contains(id) {
		return false
	}
	if old, evicted := s.order.Push(id); evicted {
		delete(s.members, old)
	}
	s.members[id] = struct{}{}
	return true
}

// Len returns the number of remembered ids.
func (s *Set) Len() int { return s.order.Len() }

// IDs returns the remembered ids, oldest first.
func (s *Set) IDs() []string { return s.order.Slice() }
