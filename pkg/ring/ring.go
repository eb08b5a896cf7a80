// Package ring provides a capacity-bounded deque with oldest-first
// eviction. It backs the change tracker's undo and redo stacks and the
// rewind engine's preview cache, which all need "keep the most recent N"
// semantics without unbounded growth.
package ring

// Deque is a bounded double-ended queue. When full, PushBack evicts the
// oldest (front) element. The zero value is not usable; construct with New.
type Deque[T any] struct {
	buf   []T
	head  int // index of the oldest element
	count int
}

// New creates a Deque with the given capacity. Capacities below 1 are
// raised to 1.
func New[T any](capacity int) *Deque[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Deque[T]{buf: make([]T, capacity)}
}

// Len returns the number of elements currently held.
func (d *Deque[T]) Len() int { return d.count }

// Cap returns the fixed capacity.
func (d *Deque[T]) Cap() int { return len(d.buf) }

// PushBack appends v as the newest element. If the deque is full the
// oldest element is evicted and returned with evicted=true.
func (d *Deque[T]) PushBack(v T) (old T, evicted bool) {
	if d.count == len(d.buf) {
		old = d.buf[d.head]
		evicted = true
		d.buf[d.head] = v
		d.head = (d.head + 1) % len(d.buf)
		return old, true
	}
	d.buf[(d.head+d.count)%len(d.buf)] = v
	d.count++
	return old, false
}

// PopBack removes and returns the newest element.
func (d *Deque[T]) PopBack() (T, bool) {
	var zero T
	if d.count == 0 {
		return zero, false
	}
	idx := (d.head + d.count - 1) % len(d.buf)
	v := d.buf[idx]
	d.buf[idx] = zero
	d.count--
	return v, true
}

// PopFront removes and returns the oldest element.
func (d *Deque[T]) PopFront() (T, bool) {
	var zero T
	if d.count == 0 {
		return zero, false
	}
	v := d.buf[d.head]
	d.buf[d.head] = zero
	d.head = (d.head + 1) % len(d.buf)
	d.count--
	return v, true
}

// PeekBack returns the newest element without removing it.
func (d *Deque[T]) PeekBack() (T, bool) {
	var zero T
	if d.count == 0 {
		return zero, false
	}
	return d.buf[(d.head+d.count-1)%len(d.buf)], true
}

// Clear removes all elements, releasing references for GC.
func (d *Deque[T]) Clear() {
	var zero T
	for i := 0; i < d.count; i++ {
		d.buf[(d.head+i)%len(d.buf)] = zero
	}
	d.head = 0
	d.count = 0
}

// Items returns the elements oldest-first as a new slice.
func (d *Deque[T]) Items() []T {
	out := make([]T, 0, d.count)
	for i := 0; i < d.count; i++ {
		out = append(out, d.buf[(d.head+i)%len(d.buf)])
	}
	return out
}
