package ingress

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corelane/usched/internal/pool"
	"github.com/corelane/usched/internal/wire"
)

func TestHandoffPublishAndConsume(t *testing.T) {
	h := NewHandoff(4)
	require.True(t, h.Idle())

	n := h.Publish([]pool.Handle{1, 2, 3}, []wire.RequestType{wire.Get, wire.Put, wire.Delete})
	require.Equal(t, 3, n)
	require.False(t, h.Idle())
	require.True(t, h.HasWork())
	require.Equal(t, 3, h.Count())

	reqs, types := h.Consume()
	require.Equal(t, []pool.Handle{1, 2, 3}, reqs)
	require.Equal(t, []wire.RequestType{wire.Get, wire.Put, wire.Delete}, types)
}

func TestHandoffCompleteHandsBackToNetworker(t *testing.T) {
	h := NewHandoff(4)
	h.Publish([]pool.Handle{1}, []wire.RequestType{wire.Get})
	h.Complete([]pool.Handle{9, 10})

	require.True(t, h.Idle())
	freed := h.ReclaimFreed()
	require.Equal(t, []pool.Handle{9, 10}, freed)
	// a second reclaim without another Complete sees nothing new
	require.Nil(t, h.ReclaimFreed())
}

func TestHandoffPublishTruncatesToCapacity(t *testing.T) {
	h := NewHandoff(2)
	n := h.Publish([]pool.Handle{1, 2, 3}, []wire.RequestType{wire.Get, wire.Get, wire.Get})
	require.Equal(t, 2, n)
}

func TestConstantSourceExhausts(t *testing.T) {
	src := NewConstantSource(wire.Get, 2, func(seq int) []byte { return []byte{byte(seq)} }, nil)
	_, ok := src.Next()
	require.True(t, ok)
	_, ok = src.Next()
	require.True(t, ok)
	_, ok = src.Next()
	require.False(t, ok)
}

func TestScriptedSourceReplaysInOrder(t *testing.T) {
	src := NewScriptedSource([]Arrival{
		{Type: wire.Get, Key: []byte("a")},
		{Type: wire.Put, Key: []byte("b"), Value: []byte("v")},
	})
	a, ok := src.Next()
	require.True(t, ok)
	require.Equal(t, wire.Get, a.Type)

	a, ok = src.Next()
	require.True(t, ok)
	require.Equal(t, wire.Put, a.Type)

	_, ok = src.Next()
	require.False(t, ok)
}

func TestSimulatedTickPublishesAndReclaims(t *testing.T) {
	h := NewHandoff(4)
	reqs := pool.NewRequestPool(4)
	src := NewConstantSource(wire.Get, 2, func(seq int) []byte { return []byte{byte(seq)} }, nil)
	sim := NewSimulated(h, reqs, src, 4)

	n := sim.Tick(1000)
	require.Equal(t, 2, n)
	require.True(t, h.HasWork())

	handles, types := h.Consume()
	require.Len(t, handles, 2)
	require.Equal(t, wire.Get, types[0])
	require.Equal(t, int64(1000), reqs.Get(handles[0]).ArrivalNanos)

	// Dispatcher finishes and returns the handles; networker reclaims them.
	h.Complete(handles)
	require.Zero(t, sim.Tick(2000)) // source exhausted, but reclaim still happens
}

func TestSimulatedTickNoopWhileHandoffBusy(t *testing.T) {
	h := NewHandoff(4)
	reqs := pool.NewRequestPool(4)
	src := NewConstantSource(wire.Get, 5, func(seq int) []byte { return []byte{byte(seq)} }, nil)
	sim := NewSimulated(h, reqs, src, 2)

	require.Equal(t, 2, sim.Tick(0))
	require.Equal(t, 0, sim.Tick(1)) // handoff still full, dispatcher hasn't consumed
}

func TestSimulatedTickTracksDroppedOnPoolExhaustion(t *testing.T) {
	h := NewHandoff(4)
	reqs := pool.NewRequestPool(1)
	src := NewConstantSource(wire.Get, 3, func(seq int) []byte { return []byte{byte(seq)} }, nil)
	sim := NewSimulated(h, reqs, src, 4)

	n := sim.Tick(0)
	require.Equal(t, 1, n)
	require.Equal(t, 1, sim.Dropped())
}
