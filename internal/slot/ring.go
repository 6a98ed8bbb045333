// Package slot implements the JBSQ request/response slot rings: the
// cache-line-aligned SPSC cells dispatcher and worker use to hand a
// request off and report its outcome without locks.
//
// Dispatcher and worker goroutines play producer/consumer roles across
// a shared cell, and a single atomic flag word per cell is the
// acquire/release boundary for everything else written alongside it in
// the same cell.
package slot

import (
	"sync/atomic"

	"github.com/corelane/usched/internal/pool"
	"github.com/corelane/usched/internal/wire"
)

// cacheLineSize is sized so a Cell with a handful of small fields still
// occupies a full cache line, preventing false sharing between adjacent
// ring slots accessed by different goroutines.
const cacheLineSize = 64

// RequestCell is written by the dispatcher, read by the worker.
type RequestCell struct {
	flag atomic.Uint32 // wire.RequestSlotFlag

	ContHandle uint32
	ReqHandle pool.Handle
	Type wire.RequestType
	Category wire.Category
	ArrivalNanos int64

	_ [cacheLineSize]byte
}

// ResponseCell is written by the worker, read by the dispatcher.
type ResponseCell struct {
	flag atomic.Uint32 // wire.ResponseSlotFlag

	ContHandle uint32
	ReqHandle pool.Handle
	Type wire.RequestType
	Category wire.Category
	ArrivalNanos int64
	Preempted bool

	_ [cacheLineSize]byte
}

// Ring is one worker's pair of JBSQ rings, depth Len (1 or 2).
type Ring struct {
	Len int
	req [2]RequestCell
	resp [2]ResponseCell
}

// NewRing constructs a ring of the given depth. depth must already be
// validated against constants.JBSQLenValid by the caller.
func NewRing(depth int) *Ring {
	r := &Ring{Len: depth}
	for i := 0; i < depth; i++ {
		r.req[i].flag.Store(uint32(wire.SlotInactive))
		r.resp[i].flag.Store(uint32(wire.SlotProcessed))
	}
	return r
}

// Advance steps a circular ring index. For Len==2 this is a simple XOR;
// for Len==1 it is a no-op. No general modular path is provided for
// Len>2.
func (r *Ring) Advance(idx int) int {
	if r.Len == 1 {
		return 0
	}
	return idx ^ 1
}

// --- dispatcher side: request cell ---

// RequestFlag is an acquire load of slot idx's request-side flag.
func (r *Ring) RequestFlag(idx int) wire.RequestSlotFlag {
	return wire.RequestSlotFlag(r.req[idx].flag.Load())
}

// PublishRequest fills slot idx's payload and releases it to the
// worker by transitioning the flag to READY. Caller must have already
// confirmed the slot is DONE or INACTIVE.
func (r *Ring) PublishRequest(idx int, contHandle uint32, reqHandle pool.Handle, typ wire.RequestType, cat wire.Category, arrivalNanos int64) {
	c := &r.req[idx]
	c.ContHandle = contHandle
	c.ReqHandle = reqHandle
	c.Type = typ
	c.Category = cat
	c.ArrivalNanos = arrivalNanos
	c.flag.Store(uint32(wire.SlotReady))
}

// ReadRequest is an acquire-ordered snapshot of slot idx's request
// fields, taken by the worker after observing READY.
func (r *Ring) ReadRequest(idx int) (contHandle uint32, reqHandle pool.Handle, typ wire.RequestType, cat wire.Category, arrivalNanos int64) {
	c := &r.req[idx]
	return c.ContHandle, c.ReqHandle, c.Type, c.Category, c.ArrivalNanos
}

// ReleaseRequestSlot transitions slot idx's request flag back to
// INACTIVE. Called by the dispatcher once it has reaped the matching
// response cell — the request-side half of that release.
func (r *Ring) ReleaseRequestSlot(idx int) {
	r.req[idx].flag.Store(uint32(wire.SlotInactive))
}

// --- worker side: response cell ---

// ResponseFlag is an acquire load of slot idx's response-side flag.
func (r *Ring) ResponseFlag(idx int) wire.ResponseSlotFlag {
	return wire.ResponseSlotFlag(r.resp[idx].flag.Load())
}

// Claim transitions slot idx's response flag to RUNNING and records the
// fields the dispatcher will eventually need to reap it, without
// touching the request cell again.
func (r *Ring) Claim(idx int, contHandle uint32, reqHandle pool.Handle, typ wire.RequestType, cat wire.Category, arrivalNanos int64) {
	c := &r.resp[idx]
	c.ContHandle = contHandle
	c.ReqHandle = reqHandle
	c.Type = typ
	c.Category = cat
	c.ArrivalNanos = arrivalNanos
	c.Preempted = false
	c.flag.Store(uint32(wire.SlotRunning))
}

// Finish publishes the worker's outcome (FINISHED or PREEMPTED) and
// marks the request slot DONE. Both writes are on the worker's side of
// the protocol.
func (r *Ring) Finish(idx int, preempted bool) {
	c := &r.resp[idx]
	c.Preempted = preempted
	if preempted {
		c.flag.Store(uint32(wire.SlotPreempted))
	} else {
		c.flag.Store(uint32(wire.SlotFinished))
	}
	r.req[idx].flag.Store(uint32(wire.SlotDone))
}

// ReadResponse is an acquire-ordered snapshot of slot idx's response
// fields, taken by the dispatcher after observing FINISHED/PREEMPTED.
func (r *Ring) ReadResponse(idx int) (contHandle uint32, reqHandle pool.Handle, typ wire.RequestType, cat wire.Category, arrivalNanos int64, preempted bool) {
	c := &r.resp[idx]
	return c.ContHandle, c.ReqHandle, c.Type, c.Category, c.ArrivalNanos, c.Preempted
}

// Reap releases the response cell back to PROCESSED once the dispatcher
// has acted on a FINISHED/PREEMPTED outcome.
func (r *Ring) Reap(idx int) {
	r.resp[idx].flag.Store(uint32(wire.SlotProcessed))
}
