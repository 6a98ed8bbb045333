// Package ingress implements the fixed-size ingress handoff array
// between the networker and dispatcher cores and a simulated
// reference networker for tests and the benchmark harness, since a
// real NIC driver is out of scope here.
package ingress

import (
	"sync/atomic"

	"github.com/corelane/usched/internal/pool"
	"github.com/corelane/usched/internal/wire"
)

// Handoff is a two-phase array: `reqs[0..B-1]` plus `types[0..B-1]`
// plus the `cnt`/`free_cnt` handshake on a single pair of fields. The
// same backing arrays are reused in both
// directions — the networker writes new arrivals into them while
// cnt==0, the dispatcher reads them while cnt>0 and then overwrites
// them with handles it is returning to the free pool before clearing
// cnt back to 0.
type Handoff struct {
	capacity int
	reqs []pool.Handle
	types []wire.RequestType

	cnt atomic.Int32
	freeCnt atomic.Int32
}

// NewHandoff preallocates a handoff array of the given capacity.
func NewHandoff(capacity int) *Handoff {
	return &Handoff{
		capacity: capacity,
		reqs: make([]pool.Handle, capacity),
		types: make([]wire.RequestType, capacity),
	}
}

// Capacity is B, the fixed batch size.
func (h *Handoff) Capacity() int { return h.capacity }

// --- networker side ---

// Idle reports cnt == 0: the dispatcher has drained the previous batch
// and it is the networker's turn to reclaim and refill.
func (h *Handoff) Idle() bool {
	return h.cnt.Load() == 0
}

// ReclaimFreed returns up to free_cnt handles the dispatcher returned
// to the free pool on its last pass, and resets free_cnt to 0. Must
// only be called while Idle.
func (h *Handoff) ReclaimFreed() []pool.Handle {
	n := int(h.freeCnt.Load())
	if n == 0 {
		return nil
	}
	out := make([]pool.Handle, n)
	copy(out, h.reqs[:n])
	h.freeCnt.Store(0)
	return out
}

// Publish writes up to Capacity() new arrivals and sets cnt to the
// number actually written, handing the batch to the dispatcher. Must
// only be called while Idle, after ReclaimFreed. Returns the count
// published.
func (h *Handoff) Publish(handles []pool.Handle, types []wire.RequestType) int {
	n := len(handles)
	if n > h.capacity {
		n = h.capacity
	}
	copy(h.reqs[:n], handles[:n])
	copy(h.types[:n], types[:n])
	h.cnt.Store(int32(n))
	return n
}

// --- dispatcher side ---

// HasWork reports cnt > 0: there is a batch of arrivals waiting.
func (h *Handoff) HasWork() bool {
	return h.cnt.Load() > 0
}

// Count is the number of arrivals in the current batch.
func (h *Handoff) Count() int {
	return int(h.cnt.Load())
}

// Consume copies out the current batch's handles and types. Must only
// be called while HasWork.
func (h *Handoff) Consume() ([]pool.Handle, []wire.RequestType) {
	n := int(h.cnt.Load())
	reqs := make([]pool.Handle, n)
	types := make([]wire.RequestType, n)
	copy(reqs, h.reqs[:n])
	copy(types, h.types[:n])
	return reqs, types
}

// Complete writes freed request handles back into the array for the
// networker to reclaim, sets free_cnt, and clears cnt to 0 — handing
// control back to the networker. freed may be empty.
func (h *Handoff) Complete(freed []pool.Handle) {
	n := len(freed)
	if n > h.capacity {
		n = h.capacity
	}
	copy(h.reqs[:n], freed[:n])
	h.freeCnt.Store(int32(n))
	h.cnt.Store(0)
}
