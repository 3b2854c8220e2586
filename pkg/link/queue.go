// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "sync"

// DefaultQueueCapacity is the capacity used when a Transport creates its own
// queues.
const DefaultQueueCapacity = 256

// Queue is a FIFO safe for any number of producers and consumers.
//
// A bounded queue drops its oldest entry to make room for a new one, so a
// long disconnect keeps the most recent messages.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	dropped  uint64
}

// NewQueue creates a queue holding at most capacity entries. A capacity of
// zero or less means unbounded.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{capacity: capacity}
}

// Put appends v. It reports whether an older entry was discarded to make
// room.
func (q *Queue[T]) Put(v T) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.items) >= q.capacity {
		var zero T
		copy(q.items, q.items[1:])
		q.items[len(q.items)-1] = zero
		q.items = q.items[:len(q.items)-1]
		q.dropped++
		dropped = true
	}
	q.items = append(q.items, v)
	return dropped
}

// Get removes and returns the oldest entry without blocking.
func (q *Queue[T]) Get() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return v, true
}

// Drain removes and returns every queued entry in order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued entries.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the capacity, 0 for unbounded queues.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Dropped returns how many entries were discarded because the queue was
// full.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
