// Package task implements the per-request-type FIFO queues and the
// SLO-weighted selection across them.
//
// TypeQueue is a slice-backed ring buffer, not a container/list: it
// reuses a fixed backing slice instead of allocating per item, since
// the dispatch path runs once per worker completion and must not
// allocate.
package task

import (
	"time"

	"github.com/corelane/usched/internal/coroutine"
	"github.com/corelane/usched/internal/pool"
	"github.com/corelane/usched/internal/wire"
)

// Category distinguishes a freshly-arrived request from one resuming a
// preempted continuation.
type Category = wire.Category

// Task is a continuation handle, a request handle, the request's type,
// its category, and the request's original admission timestamp, which
// a preempted task keeps when it is re-enqueued.
type Task struct {
	ContHandle coroutine.Handle
	ReqHandle pool.Handle
	Type wire.RequestType
	Cat Category
	ArrivalNanos int64
}

// TypeQueue is a fixed-capacity ring-buffer FIFO for one request type.
type TypeQueue struct {
	buf []Task
	head, size int
}

// NewTypeQueue preallocates a ring of the given capacity. Capacity
// should be sized to the worst case of in-flight tasks of this type
// (bounded by the request pool size, since every task holds a request
// handle).
func NewTypeQueue(capacity int) *TypeQueue {
	return &TypeQueue{buf: make([]Task, capacity)}
}

// Len reports the number of queued tasks.
func (q *TypeQueue) Len() int { return q.size }

// Full reports whether the queue has reached its preallocated capacity.
func (q *TypeQueue) Full() bool { return q.size == len(q.buf) }

// EnqueueTail appends a task, retaining its arrival timestamp. O(1).
// Returns false if the queue is at capacity — this is a resource
// exhaustion condition the caller (dispatcher) must handle by logging
// and dropping the request.
func (q *TypeQueue) EnqueueTail(t Task) bool {
	if q.Full() {
		return false
	}
	idx := (q.head + q.size) % len(q.buf)
	q.buf[idx] = t
	q.size++
	return true
}

// Dequeue removes and returns the head task. O(1).
func (q *TypeQueue) Dequeue() (Task, bool) {
	if q.size == 0 {
		return Task{}, false
	}
	t := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return t, true
}

// DequeueOfCategory performs an O(n) linear search from the head,
// removing the first task matching cat and shifting the remainder of
// the ring down to close the gap. Used only by the optional
// dispatcher-local work path, never on the hot completion/dispatch steps.
func (q *TypeQueue) DequeueOfCategory(cat Category) (Task, bool) {
	for i := 0; i < q.size; i++ {
		idx := (q.head + i) % len(q.buf)
		if q.buf[idx].Cat != cat {
			continue
		}
		found := q.buf[idx]
		for j := i; j < q.size-1; j++ {
			from := (q.head + j + 1) % len(q.buf)
			to := (q.head + j) % len(q.buf)
			q.buf[to] = q.buf[from]
		}
		q.size--
		return found, true
	}
	return Task{}, false
}

// PeekHeadTimestamp returns the arrival timestamp of the head task,
// used by SLO-weighted selection to compute age(q). O(1).
func (q *TypeQueue) PeekHeadTimestamp() (int64, bool) {
	if q.size == 0 {
		return 0, false
	}
	return q.buf[q.head].ArrivalNanos, true
}

// SelectType implements SLO-weighted selection: for each non-empty
// queue, priority = age / SLO, and the queue with the greatest priority
// wins. Ties go to the lowest index (the loop keeps the first
// strictly-greater value).
//
// now is the caller's current time in nanoseconds (injectable for
// tests). slos must have one entry per index of queues, in the same
// order. Returns (-1, false) if every queue is empty.
func SelectType(queues []*TypeQueue, slos []time.Duration, now int64) (int, bool) {
	best := -1
	var bestPriority float64

	for i, q := range queues {
		headTS, ok := q.PeekHeadTimestamp()
		if !ok {
			continue
		}
		age := now - headTS
		slo := slos[i]
		if slo <= 0 {
			slo = time.Nanosecond
		}
		priority := float64(age) / float64(slo)
		if best == -1 || priority > bestPriority {
			best = i
			bestPriority = priority
		}
	}
	return best, best != -1
}
