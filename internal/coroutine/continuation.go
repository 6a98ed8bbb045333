// Package coroutine implements a suspendable task primitive as a Go
// stand-in for ucontext-style stack swaps: create(entry) -> Task,
// resume(Task) (returns on suspend), suspend() (from within a task).
// Rather than saved register files, each continuation is a goroutine
// blocked on a channel handoff, which is a dedicated "stack" in every
// sense that matters to the scheduler above it — it survives across
// suspend/resume and is cheap to park.
//
// The lifecycle is (not started) -> running -> {suspended, finished}.
package coroutine

import (
	"github.com/corelane/usched/internal/pool"
)

// Handle addresses a Continuation within a Pool's arena.
type Handle uint32

// NoHandle is the null continuation handle — used on a PACKET task
// before a continuation has been bootstrapped for it.
const NoHandle Handle = 0

// Checkpointer is consulted at each cooperative yield point.
// Implementations live in internal/preempt, one per worker;
// ShouldYield must clear whatever armed it before returning true, so a
// single preempt request is honored exactly once.
type Checkpointer interface {
	ShouldYield() bool
}

// CriticalSection is implemented by Checkpointers that track a
// lock-counter style critical section (preempt.WorkerState does;
// dispatcher-local work's deadlineChecker does not, since it has no
// shard lock to protect). Yield.EnterCritical/ExitCritical are no-ops
// against a Checkpointer that doesn't implement this.
type CriticalSection interface {
	EnterCritical()
	ExitCritical()
}

// HandlerFunc is the body of a continuation: application code that runs
// on the continuation's own goroutine and calls y.Checkpoint()
// periodically to give a pending preempt somewhere to land.
type HandlerFunc func(req *pool.Request, y *Yield)

// Yield is handed to a running HandlerFunc. Checkpoint stands in for a
// compiler-inserted back-edge check; here it is an explicit call the
// handler table makes at natural iteration boundaries.
type Yield struct {
	checkpointFn func()
	enterFn func()
	exitFn func()
}

// Checkpoint yields control back to the worker's main context if a
// preempt is pending and no critical section (lock_counter) is held.
// It returns normally (the handler resumes exactly where it left off)
// once the worker resumes this continuation again.
func (y *Yield) Checkpoint() {
	if y.checkpointFn != nil {
		y.checkpointFn()
	}
}

// EnterCritical opens a region the handler must not be preempted in,
// for the duration of a backend mutation. Pairs with ExitCritical;
// callers must not return from the handler with a region still open.
func (y *Yield) EnterCritical() {
	if y.enterFn != nil {
		y.enterFn()
	}
}

// ExitCritical closes a region opened by EnterCritical.
func (y *Yield) ExitCritical() {
	if y.exitFn != nil {
		y.exitFn()
	}
}

type resumeMsg struct {
	req *pool.Request
	checker Checkpointer
}

// Continuation is one request's saved execution context. Zero value is
// not usable; obtain one from a Pool and call Bootstrap before the
// first Resume.
type Continuation struct {
	resumeCh chan resumeMsg
	doneCh chan bool
	panicVal interface{}
	bound bool
}

// Bootstrap starts the continuation's goroutine with entry as its
// body. The goroutine blocks immediately waiting for the first Resume
//.
func (c *Continuation) Bootstrap(entry HandlerFunc) {
	c.resumeCh = make(chan resumeMsg)
	c.doneCh = make(chan bool)
	c.panicVal = nil
	c.bound = true

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.panicVal = r
				c.doneCh <- true
				return
			}
		}()

		cur := <-c.resumeCh
		y := &Yield{}
		y.checkpointFn = func() {
			if cur.checker != nil && cur.checker.ShouldYield() {
				c.doneCh <- false
				cur = <-c.resumeCh
			}
		}
		y.enterFn = func() {
			if cs, ok := cur.checker.(CriticalSection); ok {
				cs.EnterCritical()
			}
		}
		y.exitFn = func() {
			if cs, ok := cur.checker.(CriticalSection); ok {
				cs.ExitCritical()
			}
		}
		entry(cur.req, y)
		c.doneCh <- true
	}()
}

// Resume transfers control into the continuation (first dispatch) or
// back into it at its last Checkpoint (after a preempt). It blocks
// until the continuation finishes or suspends, returning true iff it
// finished. Resume must not be called concurrently with itself for the
// same Continuation: only one worker drives a given continuation at a
// time.
func (c *Continuation) Resume(req *pool.Request, checker Checkpointer) bool {
	if !c.bound {
		// A context-switch failure: nothing to resume into. Fatal —
		// the caller (worker loop) is responsible for escalating this
		// to process exit.
		panic("coroutine: Resume called on an unbootstrapped Continuation")
	}
	c.resumeCh <- resumeMsg{req: req, checker: checker}
	return <-c.doneCh
}

// Panic reports a panic captured from the continuation's own
// goroutine, if the handler body panicked instead of returning
// normally. The worker loop treats this as the context-switch-failure
// fatal case.
func (c *Continuation) Panic() (interface{}, bool) {
	return c.panicVal, c.panicVal != nil
}

// reset clears a continuation for return to its Pool. The goroutine
// spawned by Bootstrap has always already returned by this point
// (Resume only returns after doneCh fires, and both its send paths are
// followed by the goroutine exiting or blocking on a fresh resumeCh
// that will never arrive once dereferenced).
func (c *Continuation) reset() {
	c.resumeCh = nil
	c.doneCh = nil
	c.panicVal = nil
	c.bound = false
}
