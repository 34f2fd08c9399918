package queue

import "sync/atomic"

// node represents a node in the lock free queue.
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// lockFreeQueue is a lock-free, concurrent Michael-Scott queue.
//
// Enqueue order is linearizable: if one Enqueue returns before another starts,
// its item is dequeued first.
type lockFreeQueue[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	length atomic.Int32
}

// NewLockFreeQueue creates a new lock-free queue and returns it as a Queue interface.
func NewLockFreeQueue[T any]() Queue[T] {
	q := &lockFreeQueue[T]{}
	sentinel := &node[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	return q
}

// Enqueue adds an item to the tail of the queue.
func (q *lockFreeQueue[T]) Enqueue(item T) {
	n := &node[T]{value: item}

	for {
		tail := q.tail.Load()
		next := tail.next.Load()

		// Are tail and next consistent?
		if tail != q.tail.Load() {
			continue
		}

		if next != nil {
			// tail was not pointing to the last node, try to swing it.
			q.tail.CompareAndSwap(tail, next)
			continue
		}

		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			q.length.Add(1)

			return
		}
	}
}

// Dequeue removes and returns the item at the head of the queue.
func (q *lockFreeQueue[T]) Dequeue() (T, bool) {
	var zero T

	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()

		if head != q.head.Load() {
			continue
		}

		if head == tail {
			if next == nil {
				return zero, false
			}
			// tail is falling behind, try to advance it.
			q.tail.CompareAndSwap(tail, next)

			continue
		}

		// Read value before CAS, otherwise another dequeue might release the next node.
		value := next.value
		if q.head.CompareAndSwap(head, next) {
			q.length.Add(-1)

			return value, true
		}
	}
}

// Length returns the number of items in the queue.
func (q *lockFreeQueue[T]) Length() int {
	return int(q.length.Load())
}
