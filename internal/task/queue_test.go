package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corelane/usched/internal/wire"
)

func TestTypeQueueFIFOOrder(t *testing.T) {
	q := NewTypeQueue(4)
	require.True(t, q.EnqueueTail(Task{ArrivalNanos: 1}))
	require.True(t, q.EnqueueTail(Task{ArrivalNanos: 2}))
	require.True(t, q.EnqueueTail(Task{ArrivalNanos: 3}))

	first, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, int64(1), first.ArrivalNanos)

	second, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, int64(2), second.ArrivalNanos)

	require.Equal(t, 1, q.Len())
}

func TestTypeQueueFullRejectsEnqueue(t *testing.T) {
	q := NewTypeQueue(2)
	require.True(t, q.EnqueueTail(Task{ArrivalNanos: 1}))
	require.True(t, q.EnqueueTail(Task{ArrivalNanos: 2}))
	require.True(t, q.Full())
	require.False(t, q.EnqueueTail(Task{ArrivalNanos: 3}))
}

func TestTypeQueueWrapsAroundRingBoundary(t *testing.T) {
	q := NewTypeQueue(2)
	q.EnqueueTail(Task{ArrivalNanos: 1})
	q.EnqueueTail(Task{ArrivalNanos: 2})
	q.Dequeue()
	require.True(t, q.EnqueueTail(Task{ArrivalNanos: 3}))

	v, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, int64(2), v.ArrivalNanos)
	v, ok = q.Dequeue()
	require.True(t, ok)
	require.Equal(t, int64(3), v.ArrivalNanos)
}

func TestTypeQueueDequeueOfCategory(t *testing.T) {
	q := NewTypeQueue(4)
	q.EnqueueTail(Task{ArrivalNanos: 1, Cat: wire.Packet})
	q.EnqueueTail(Task{ArrivalNanos: 2, Cat: wire.Context})
	q.EnqueueTail(Task{ArrivalNanos: 3, Cat: wire.Packet})

	found, ok := q.DequeueOfCategory(wire.Context)
	require.True(t, ok)
	require.Equal(t, int64(2), found.ArrivalNanos)
	require.Equal(t, 2, q.Len())

	// Remaining order preserved after the gap is closed.
	v, _ := q.Dequeue()
	require.Equal(t, int64(1), v.ArrivalNanos)
	v, _ = q.Dequeue()
	require.Equal(t, int64(3), v.ArrivalNanos)

	_, ok = q.DequeueOfCategory(wire.Context)
	require.False(t, ok)
}

func TestTypeQueuePeekHeadTimestampEmpty(t *testing.T) {
	q := NewTypeQueue(1)
	_, ok := q.PeekHeadTimestamp()
	require.False(t, ok)
}

func TestSelectTypeAllEmptyReportsNoWork(t *testing.T) {
	queues := []*TypeQueue{NewTypeQueue(1), NewTypeQueue(1)}
	slos := []time.Duration{time.Microsecond, time.Microsecond}
	_, ok := SelectType(queues, slos, 1000)
	require.False(t, ok)
}

func TestSelectTypeStrictlyGreaterBreaksTieLow(t *testing.T) {
	q0 := NewTypeQueue(1)
	q0.EnqueueTail(Task{ArrivalNanos: 0}) // age = 1000, SLO = 100 -> priority 10
	q1 := NewTypeQueue(1)
	q1.EnqueueTail(Task{ArrivalNanos: 900}) // age = 100, SLO = 10 -> priority 10: an exact tie

	queues := []*TypeQueue{q0, q1}
	slos := []time.Duration{100 * time.Nanosecond, 10 * time.Nanosecond}

	idx, ok := SelectType(queues, slos, 1000)
	require.True(t, ok)
	require.Equal(t, 0, idx) // exact tie -> lowest index wins
}

func TestSelectTypePicksGreatestPriority(t *testing.T) {
	q0 := NewTypeQueue(1)
	q0.EnqueueTail(Task{ArrivalNanos: 500})
	q1 := NewTypeQueue(1)
	q1.EnqueueTail(Task{ArrivalNanos: 900})

	queues := []*TypeQueue{q0, q1}
	slos := []time.Duration{1 * time.Nanosecond, 1 * time.Nanosecond}

	// q0 age=500 priority=500, q1 age=100 priority=100: q0 wins outright.
	idx, ok := SelectType(queues, slos, 1000)
	require.True(t, ok)
	require.Equal(t, 0, idx)
}

func TestSelectTypeSkipsEmptyQueues(t *testing.T) {
	q0 := NewTypeQueue(1)
	q1 := NewTypeQueue(1)
	q1.EnqueueTail(Task{ArrivalNanos: 100})

	queues := []*TypeQueue{q0, q1}
	slos := []time.Duration{time.Nanosecond, time.Nanosecond}

	idx, ok := SelectType(queues, slos, 1000)
	require.True(t, ok)
	require.Equal(t, 1, idx)
}
