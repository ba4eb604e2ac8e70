// Package queue provides the FIFO containers used by the chunker and driver.
package queue

// SliceQueue is a slice backed FIFO queue. It is not goroutine-safe; the
// owner serializes access.
type SliceQueue[T any] struct {
	items []T
}

// NewSliceQueue creates a new SliceQueue with room for prealloc items.
func NewSliceQueue[T any](prealloc int) *SliceQueue[T] {
	return &SliceQueue[T]{items: make([]T, 0, prealloc)}
}

// Enqueue adds an item to the tail of the queue.
func (q *SliceQueue[T]) Enqueue(item T) {
	q.items = append(q.items, item)
}

// Dequeue removes and returns the item at the head of the queue.
func (q *SliceQueue[T]) Dequeue() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]

	return item, true
}

// Peek returns the item at the head of the queue without removing it.
func (q *SliceQueue[T]) Peek() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	return q.items[0], true
}

// Reset empties the queue, reusing the underlying array.
func (q *SliceQueue[T]) Reset() {
	clear(q.items)
	q.items = q.items[:0]
}

// IsEmpty returns true if the queue is empty, false otherwise.
func (q *SliceQueue[T]) IsEmpty() bool {
	return len(q.items) == 0
}

// Length returns the number of items in the queue.
func (q *SliceQueue[T]) Length() int {
	return len(q.items)
}
