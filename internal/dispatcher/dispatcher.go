// Package dispatcher implements the dispatcher main loop:
// per-worker completion handling, draining the ingress handoff,
// SLO-weighted assignment of queued tasks to idle workers, and
// optional dispatcher-local execution of spare cycles. One driver loop,
// per-slot dispatch via a small state-machine method, and a single
// batched "flush" step per iteration (here: assigning newly-selected
// tasks into request slots).
package dispatcher

import (
	"fmt"
	"time"

	"github.com/corelane/usched/internal/clock"
	"github.com/corelane/usched/internal/coroutine"
	"github.com/corelane/usched/internal/handlers"
	"github.com/corelane/usched/internal/ingress"
	"github.com/corelane/usched/internal/interfaces"
	"github.com/corelane/usched/internal/pool"
	"github.com/corelane/usched/internal/preempt"
	"github.com/corelane/usched/internal/preemptcheck"
	"github.com/corelane/usched/internal/slot"
	"github.com/corelane/usched/internal/task"
	"github.com/corelane/usched/internal/wire"
)

// workerSlot is a dispatcher's bookkeeping for one worker: its ring,
// its position in the ring, and its current occupancy.
type workerSlot struct {
	ring *slot.Ring
	check *preemptcheck.Entry
	occupancy int
	nextPush int
	nextPop int
}

// Config carries the tunables a Dispatcher needs beyond the shared
// infrastructure (pools, rings, transport) it is handed directly.
type Config struct {
	JBSQLen int
	TimeSlice time.Duration
	DispatcherWorkThreshold time.Duration
	SLOs [wire.NumRequestTypes]time.Duration
	// EnableDispatcherWork permits step 6 (optional dispatcher-local
	// work). Schedule methods that forbid it should leave this false.
	EnableDispatcherWork bool
}

// Dispatcher is the single-core dispatch loop. One instance serves all
// workers.
type Dispatcher struct {
	cfg Config

	workers []*workerSlot
	idle *IdleList
	typeQueue [wire.NumRequestTypes]*task.TypeQueue
	slos [wire.NumRequestTypes]time.Duration

	reqPool *pool.RequestPool
	contPool *coroutine.Pool
	handoff *ingress.Handoff
	table *handlers.Table
	transport preempt.Transport

	logger interfaces.Logger
	observer interfaces.Observer
	clk clock.Source

	// Dispatcher-local execution state.
	selfCont *coroutine.Continuation
	selfContHandle coroutine.Handle
	selfActive bool
	selfReq pool.Handle
	selfType wire.RequestType
	selfArrival int64
}

// New constructs a Dispatcher. rings and checks must have length
// workerCount and be shared with the corresponding internal/worker.Worker
// instances. queueCapacity sizes each per-type task queue.
func New(cfg Config, rings []*slot.Ring, checks []*preemptcheck.Entry, reqPool *pool.RequestPool, contPool *coroutine.Pool, handoff *ingress.Handoff, table *handlers.Table, transport preempt.Transport, queueCapacity int, logger interfaces.Logger, observer interfaces.Observer) *Dispatcher {
	d := &Dispatcher{
		cfg: cfg,
		idle: NewIdleList(cfg.JBSQLen),
		reqPool: reqPool,
		contPool: contPool,
		handoff: handoff,
		table: table,
		transport: transport,
		logger: logger,
		observer: observer,
		clk: clock.Real{},
	}
	for i := range rings {
		d.workers = append(d.workers, &workerSlot{ring: rings[i], check: checks[i]})
	}
	for t := 0; t < wire.NumRequestTypes; t++ {
		d.typeQueue[t] = task.NewTypeQueue(queueCapacity)
		d.slos[t] = cfg.SLOs[t]
		if d.slos[t] <= 0 {
			d.slos[t] = time.Microsecond
		}
	}
	return d
}

// SetClock overrides the clock dispatcher-local work uses to bound its
// cooperative-yield budget. Tests substitute a clock.Fake; production
// callers can leave the clock.Real default in place.
func (d *Dispatcher) SetClock(c clock.Source) {
	d.clk = c
}

// Step runs one full dispatcher iteration. now is
// the caller's current time in nanoseconds. A non-nil error means a
// continuation suffered a context-switch failure during dispatcher-local
// work and is fatal — callers must treat it like a Worker.Step
// error.
func (d *Dispatcher) Step(now int64) error {
	epochSlack := d.cfg.TimeSlice

	for i := range d.workers {
		d.handleWorker(i, now, &epochSlack)
	}
	d.handleNetworker()
	d.dispatchRequests(now)

	if d.cfg.EnableDispatcherWork && epochSlack > d.cfg.DispatcherWorkThreshold {
		return d.dispatchLocalWork(now, epochSlack)
	}
	return nil
}

// handleWorker checks a worker's preempt-check entry for a time-slice
// overrun and fires a preempt if so, then drains a FINISHED/PREEMPTED
// response slot if one is waiting.
func (d *Dispatcher) handleWorker(i int, now int64, epochSlack *time.Duration) {
	w := d.workers[i]

	if armed, dispatchTS := w.check.Snapshot(); armed {
		elapsed := time.Duration(now - dispatchTS)
		if elapsed > d.cfg.TimeSlice {
			w.check.ClearOnFire()
			if err := d.transport.Fire(i); err != nil && d.logger != nil {
				d.logger.Warnf("dispatcher: preempt fire failed for worker %d: %v", i, err)
			}
		} else if remaining := d.cfg.TimeSlice - elapsed; remaining < *epochSlack {
			*epochSlack = remaining
		}
	}

	switch w.ring.ResponseFlag(w.nextPop) {
	case wire.SlotFinished:
		d.reapSlot(w, false)
	case wire.SlotPreempted:
		d.reapSlot(w, true)
	}
}

func (d *Dispatcher) reapSlot(w *workerSlot, preempted bool) {
	contHandle, reqHandle, typ, _, arrival, _ := w.ring.ReadResponse(w.nextPop)

	if preempted {
		t := task.Task{
			ContHandle: coroutine.Handle(contHandle),
			ReqHandle: reqHandle,
			Type: typ,
			Cat: wire.Context,
			ArrivalNanos: arrival,
		}
		if !d.typeQueue[typ].EnqueueTail(t) && d.logger != nil {
			d.logger.Warnf("dispatcher: type queue %s full, dropping preempted task", typ)
		}
	} else {
		d.contPool.Release(coroutine.Handle(contHandle))
		d.reqPool.Free(reqHandle)
	}

	w.ring.Reap(w.nextPop)
	w.ring.ReleaseRequestSlot(w.nextPop)
	w.nextPop = w.ring.Advance(w.nextPop)
	w.occupancy--
}

// handleNetworker drains the ingress handoff, allocates a continuation
// per arrival, and enqueues a PACKET task per type.
func (d *Dispatcher) handleNetworker() {
	if !d.handoff.HasWork() {
		return
	}
	reqHandles, types := d.handoff.Consume()

	freed := make([]pool.Handle, 0, len(reqHandles))
	for i, reqHandle := range reqHandles {
		typ := types[i]
		contHandle, ok := d.contPool.Acquire()
		if !ok {
			if d.logger != nil {
				d.logger.Warnf("dispatcher: continuation pool exhausted, dropping request")
			}
			freed = append(freed, reqHandle)
			continue
		}

		t := task.Task{
			ContHandle: contHandle,
			ReqHandle: reqHandle,
			Type: typ,
			Cat: wire.Packet,
			ArrivalNanos: d.reqPool.Get(reqHandle).ArrivalNanos,
		}
		if !d.typeQueue[typ].EnqueueTail(t) {
			if d.logger != nil {
				d.logger.Warnf("dispatcher: type queue %s full, dropping request", typ)
			}
			d.contPool.Release(contHandle)
			freed = append(freed, reqHandle)
		}
	}
	d.handoff.Complete(freed)
}

// dispatchRequests runs while a schedulable worker exists: SLO-dequeue
// a task and publish it into that worker's next request slot. Worker
// selection follows the JBSQ policy (IdleList.Select), so occupancy
// changes made here are visible to the next iteration's selection
// without any separate bookkeeping to keep in sync.
func (d *Dispatcher) dispatchRequests(now int64) {
	for {
		workerIdx, ok := d.idle.Select(d.workers)
		if !ok {
			break
		}

		typeIdx, ok := d.selectType(now)
		if !ok {
			break
		}

		t, _ := d.typeQueue[typeIdx].Dequeue()
		w := d.workers[workerIdx]
		w.ring.PublishRequest(w.nextPush, uint32(t.ContHandle), t.ReqHandle, t.Type, t.Cat, t.ArrivalNanos)
		w.nextPush = w.ring.Advance(w.nextPush)
		w.occupancy++
		if d.observer != nil {
			d.observer.ObserveQueueDepth(workerIdx, w.occupancy)
		}
	}
}

// selectType picks the request type to dequeue next by SLO-weighted
// selection across non-empty type queues.
func (d *Dispatcher) selectType(now int64) (int, bool) {
	queues := make([]*task.TypeQueue, wire.NumRequestTypes)
	slos := make([]time.Duration, wire.NumRequestTypes)
	for i := 0; i < wire.NumRequestTypes; i++ {
		queues[i] = d.typeQueue[i]
		slos[i] = d.slos[i]
	}
	return task.SelectType(queues, slos, now)
}

// dispatchLocalWork runs one PACKET task on the dispatcher's own saved
// continuation, cooperatively yielding once its budget (epochSlack)
// elapses.
func (d *Dispatcher) dispatchLocalWork(now int64, budget time.Duration) error {
	if d.selfActive {
		// A previous local task is still suspended; resume it instead
		// of starting a new one.
		return d.resumeSelf(now, budget)
	}

	for typ := 0; typ < wire.NumRequestTypes; typ++ {
		t, ok := d.typeQueue[typ].DequeueOfCategory(wire.Packet)
		if !ok {
			continue
		}
		d.selfCont = d.contPool.Get(t.ContHandle)
		d.selfContHandle = t.ContHandle
		d.selfCont.Bootstrap(d.table.Resolve(t.Type))
		d.selfActive = true
		d.selfReq = t.ReqHandle
		d.selfType = t.Type
		d.selfArrival = t.ArrivalNanos
		return d.resumeSelf(now, budget)
	}
	return nil
}

func (d *Dispatcher) resumeSelf(now int64, budget time.Duration) error {
	checker := deadlineChecker{clk: d.clk, deadline: now + int64(budget)}
	req := d.reqPool.Get(d.selfReq)
	finished := d.selfCont.Resume(req, checker)

	if panicVal, ok := d.selfCont.Panic(); ok {
		d.contPool.Release(d.selfContHandle)
		d.reqPool.Free(d.selfReq)
		d.selfActive = false
		return fmt.Errorf("dispatcher: local work context-switch failure: %v", panicVal)
	}

	if !finished {
		return nil // stays suspended; resumed again on a future iteration
	}

	if d.observer != nil {
		d.observer.ObserveCompletion(d.selfType, uint64(now-d.selfArrival), 0, true)
	}
	d.contPool.Release(d.selfContHandle)
	d.reqPool.Free(d.selfReq)
	d.selfActive = false
	return nil
}

// deadlineChecker is the Checkpointer dispatcher-local work uses: it
// yields once the wall-clock deadline for this call has passed, rather
// than in response to an external Fire.
type deadlineChecker struct {
	clk clock.Source
	deadline int64
}

func (c deadlineChecker) ShouldYield() bool {
	return c.clk.NowNanos() >= c.deadline
}
