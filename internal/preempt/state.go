// Package preempt implements two preemption transports: a posted-signal
// (hardware posted-IPI stand-in) transport and a cooperative-yield
// transport. Both converge on the same primitive — an atomic flag a
// worker's coroutine checkpoints consult — because true sub-instruction
// forcible preemption has no portable Go equivalent. Both set the flag
// synchronously in Fire; the posted-signal transport additionally sends
// SIGURG to the worker's registered OS thread.
package preempt

import "sync/atomic"

// WorkerState is one worker's preemption bookkeeping: an armed flag and
// a critical-section depth counter. It is owned by exactly one worker
// goroutine at a time and implements coroutine.Checkpointer.
type WorkerState struct {
	flag atomic.Uint32
	lockCounter int
}

// NewWorkerState returns a disarmed state with no open critical
// sections.
func NewWorkerState() *WorkerState {
	return &WorkerState{}
}

// RequestPreempt arms the flag. Safe to call from any goroutine — this
// is the write side a Transport.Fire uses.
func (w *WorkerState) RequestPreempt() {
	w.flag.Store(1)
}

// ShouldYield implements coroutine.Checkpointer: it reports (and
// clears) a pending preempt request, but only once the critical-section
// depth is back to zero. Must only be called from the worker that owns
// this state.
func (w *WorkerState) ShouldYield() bool {
	if w.lockCounter != 0 {
		return false
	}
	if w.flag.Load() == 0 {
		return false
	}
	w.flag.Store(0)
	return true
}

// EnterCritical marks the start of a region the handler must not be
// preempted in (e.g. while holding a shard lock in backend/kv).
// Reentrant: nested Enter/Exit pairs compose.
func (w *WorkerState) EnterCritical() {
	w.lockCounter++
}

// ExitCritical closes a region opened by EnterCritical.
func (w *WorkerState) ExitCritical() {
	w.lockCounter--
}

// Armed reports whether a preempt request is currently pending,
// without consuming it. Used by tests and metrics only.
func (w *WorkerState) Armed() bool {
	return w.flag.Load() != 0
}
