// Package preemptcheck holds one piece of per-worker state: written by
// the worker (armed + dispatch_ts, recorded when it starts running a
// request) and read by the dispatcher (to decide whether a worker has
// overrun its time slice). It is its own tiny package, rather than
// living in internal/worker or internal/dispatcher, because both of
// those packages need to share the same entry for a given worker
// without importing each other.
package preemptcheck

import "sync/atomic"

// Entry is one worker's preempt-check record.
type Entry struct {
	armed atomic.Bool
	dispatchTS atomic.Int64
}

// Arm records that worker started running a request at now. Called by
// the worker at the start of its per-request loop.
func (e *Entry) Arm(now int64) {
	e.dispatchTS.Store(now)
	e.armed.Store(true)
}

// Disarm clears the armed flag. Called by the worker once it has
// published the request's outcome.
func (e *Entry) Disarm() {
	e.armed.Store(false)
}

// ClearOnFire clears the armed flag from the dispatcher side, at the
// moment a preempt is issued for this entry. It is distinct from
// Disarm: the dispatcher must not re-fire a second preempt for the
// same running request before the worker reaches its own Disarm, so
// this clears the flag immediately on Fire rather than waiting for
// completion. The worker re-arms the entry on its next dispatch
// regardless of which side last cleared it.
func (e *Entry) ClearOnFire() {
	e.armed.Store(false)
}

// Snapshot returns whether the entry is armed and, if so, when its
// request was dispatched. Called by the dispatcher.
func (e *Entry) Snapshot() (armed bool, dispatchTS int64) {
	return e.armed.Load(), e.dispatchTS.Load()
}

// Table is one Entry per worker.
type Table []*Entry

// NewTable preallocates n disarmed entries.
func NewTable(n int) Table {
	t := make(Table, n)
	for i := range t {
		t[i] = &Entry{}
	}
	return t
}
