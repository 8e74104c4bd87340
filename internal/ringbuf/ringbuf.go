// Package ringbuf provides a bounded FIFO ring buffer that evicts its oldest
// element when full. It is not safe for concurrent use; callers that share a
// Ring across goroutines must serialise access themselves.
package ringbuf

// Ring is a fixed-capacity FIFO. Index 0 is the oldest element.
type Ring[T any] struct {
	buf   []T
	head  int // index of the oldest element
	count int

	// Eviction counter, for metrics.
	evicted uint64
}

// New creates a ring buffer holding at most capacity elements.
// Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. When the ring is full the oldest element is evicted and
// returned with ok=true.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = v
		r.count++
		return evicted, false
	}
	evicted = r.buf[r.head]
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	r.evicted++
	return evicted, true
}

// At returns the i-th oldest element. It panics if i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		panic("ringbuf: index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns the newest element, or false if the ring is empty.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.At(r.count - 1), true
}

// SetLast overwrites the newest element. Returns false if the ring is empty.
func (r *Ring[T]) SetLast(v T) bool {
	if r.count == 0 {
		return false
	}
	r.buf[(r.head+r.count-1)%len(r.buf)] = v
	return true
}

// Slice returns a copy of the contents, oldest first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Reset empties the ring without releasing its storage.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.count = 0
}

// Len returns the current number of elements.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Full reports whether the next Push will evict.
func (r *Ring[T]) Full() bool { return r.count == len(r.buf) }

// Evicted returns the total number of elements pushed out by Push.
func (r *Ring[T]) Evicted() uint64 { return r.evicted }
