package queue

// sliceQueue is a queue backed by a slice. It is not safe for concurrent use.
// With a limit it keeps only the newest limit items.
type sliceQueue[T any] struct {
	items []T
	limit int
}

// NewSliceQueue creates a slice backed queue. A positive limit bounds the
// queue by discarding the oldest item on overflow.
func NewSliceQueue[T any](prealloc, limit int) Queue[T] {
	return &sliceQueue[T]{items: make([]T, 0, prealloc), limit: limit}
}

// Enqueue adds an item to the tail of the queue.
func (q *sliceQueue[T]) Enqueue(item T) {
	if q.limit > 0 && len(q.items) == q.limit {
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
	}
	q.items = append(q.items, item)
}

// Dequeue removes and returns the item at the head of the queue.
func (q *sliceQueue[T]) Dequeue() (T, bool) {
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
func (q *sliceQueue[T]) Peek() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	return q.items[0], true
}

// Items returns a copy of the queued items.
func (q *sliceQueue[T]) Items() []T {
	return append([]T(nil), q.items...)
}

// Reset resets the queue to an empty state.
func (q *sliceQueue[T]) Reset() {
	clear(q.items)
	q.items = q.items[:0]
}

// IsEmpty returns true if the queue is empty, false otherwise.
func (q *sliceQueue[T]) IsEmpty() bool {
	return len(q.items) == 0
}

// Length returns the number of items in the queue.
func (q *sliceQueue[T]) Length() int {
	return len(q.items)
}
