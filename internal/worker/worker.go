// Package worker implements the per-worker main loop: busy-wait for a
// READY request slot, arm the preempt-check entry, bootstrap-or-resume
// a continuation, publish the outcome, and advance. The slot lifecycle
// is a RUNNING -> {FINISHED, PREEMPTED} machine driven through
// internal/slot.
package worker

import (
	"fmt"

	"github.com/corelane/usched/internal/coroutine"
	"github.com/corelane/usched/internal/handlers"
	"github.com/corelane/usched/internal/interfaces"
	"github.com/corelane/usched/internal/pool"
	"github.com/corelane/usched/internal/preempt"
	"github.com/corelane/usched/internal/preemptcheck"
	"github.com/corelane/usched/internal/slot"
	"github.com/corelane/usched/internal/wire"
)

// Worker drives one worker core's request/response ring.
type Worker struct {
	ID int

	ring *slot.Ring
	reqPool *pool.RequestPool
	contPool *coroutine.Pool
	table *handlers.Table
	state *preempt.WorkerState
	check *preemptcheck.Entry

	logger interfaces.Logger
	observer interfaces.Observer

	active int
}

// New builds a Worker. ring and check must be the same instances the
// owning dispatcher was given for this worker id — they are the only
// state shared between the two goroutines.
func New(id int, ring *slot.Ring, reqPool *pool.RequestPool, contPool *coroutine.Pool, table *handlers.Table, state *preempt.WorkerState, check *preemptcheck.Entry, logger interfaces.Logger, observer interfaces.Observer) *Worker {
	return &Worker{
		ID: id,
		ring: ring,
		reqPool: reqPool,
		contPool: contPool,
		table: table,
		state: state,
		check: check,
		logger: logger,
		observer: observer,
	}
}

// Step performs one pass of the worker loop. It
// returns (false, nil) immediately if the active slot isn't READY yet
// (the busy-wait step observing nothing), and a non-nil error only for
// the fatal context-switch-failure case — callers (the
// production Run loop, or a test harness) are responsible for treating
// a non-nil error as fatal.
func (w *Worker) Step(now int64) (bool, error) {
	if w.ring.RequestFlag(w.active) != wire.SlotReady {
		return false, nil
	}

	contHandle, reqHandle, typ, cat, arrival := w.ring.ReadRequest(w.active)
	w.check.Arm(now)
	w.ring.Claim(w.active, contHandle, reqHandle, typ, cat, arrival)

	if reqHandle == pool.NoHandle {
		if w.logger != nil {
			w.logger.Warnf("worker %d: null request handle in slot %d", w.ID, w.active)
		}
		w.finish(typ, arrival, now, false)
		return true, nil
	}

	req := w.reqPool.Get(reqHandle)
	cont := w.contPool.Get(coroutine.Handle(contHandle))

	if cat == wire.Packet {
		cont.Bootstrap(w.table.Resolve(typ))
	}

	finished := cont.Resume(req, w.state)

	if panicVal, ok := cont.Panic(); ok {
		return true, fmt.Errorf("worker %d: context-switch failure in slot %d: %v", w.ID, w.active, panicVal)
	}

	if req.Err != nil && w.logger != nil {
		w.logger.Warnf("worker %d: handler error for %s: %v", w.ID, typ, req.Err)
	}

	w.finish(typ, arrival, now, !finished)
	return true, nil
}

// Ring exposes the worker's ring for tests and for a dispatcher wired
// against the same instance.
func (w *Worker) Ring() *slot.Ring { return w.ring }

// RingFlag reports the request-side flag of the worker's active slot.
func (w *Worker) RingFlag() wire.RequestSlotFlag { return w.ring.RequestFlag(w.active) }

func (w *Worker) finish(typ wire.RequestType, arrivalNanos, now int64, preempted bool) {
	w.ring.Finish(w.active, preempted)
	w.check.Disarm()

	if w.observer != nil {
		if preempted {
			w.observer.ObservePreempt(w.ID)
		} else {
			w.observer.ObserveCompletion(typ, uint64(now-arrivalNanos), 0, true)
		}
	}

	w.active = w.ring.Advance(w.active)
}
