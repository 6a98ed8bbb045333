package preempt

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// PostedSignalTransport is the Go-idiomatic stand-in for a hardware
// posted interrupt: Fire arms the target worker's
// WorkerState exactly like CooperativeTransport, then additionally
// sends SIGURG to the worker's OS thread via tgkill, the same signal
// and delivery path the Go runtime itself uses for asynchronous
// goroutine preemption. A worker loop that has pinned itself to an OS
// thread with runtime.LockOSThread must call RegisterThread once it
// has done so, so Fire has a target tid; until then Fire still arms
// the flag, which the next cooperative checkpoint will observe anyway
// — the signal only shortens the delivery latency, it is never the
// only path to a yield.
type PostedSignalTransport struct {
	states []*WorkerState

	mu sync.Mutex
	tids []int32

	pid int
	sigCh chan os.Signal
}

// NewPostedSignalTransport wires one WorkerState per worker and starts
// listening for SIGURG so the process doesn't terminate on receipt
// (the default disposition for SIGURG is to terminate the process).
func NewPostedSignalTransport(states []*WorkerState) *PostedSignalTransport {
	t := &PostedSignalTransport{
		states: states,
		tids: make([]int32, len(states)),
		pid: unix.Getpid(),
		sigCh: make(chan os.Signal, 32),
	}
	signal.Notify(t.sigCh, syscall.SIGURG)
	go t.drain()
	return t
}

// drain discards delivered signals. The signal's only job is to
// interrupt whatever syscall or spin the target thread is in; the
// actual preempt state transition already happened synchronously in
// Fire.
func (t *PostedSignalTransport) drain() {
	for range t.sigCh {
	}
}

// RegisterThread records the calling goroutine's OS thread id as the
// tgkill target for worker. Must be called from the worker's own
// goroutine after runtime.LockOSThread, before the first Fire that
// should reach it promptly.
func (t *PostedSignalTransport) RegisterThread(worker int) {
	tid := int32(unix.Gettid())
	t.mu.Lock()
	t.tids[worker] = tid
	t.mu.Unlock()
}

// Arm is a no-op here too: the dispatcher's epoch_slack bookkeeping
// decides when a worker has overrun its time slice and calls Fire;
// this transport keeps no deadline state of its own.
func (t *PostedSignalTransport) Arm(worker int, deadlineNanos int64) {}

// Fire arms worker's preempt flag and, if its OS thread is known,
// signals it directly so a thread parked in a blocking call notices
// sooner than it would from flag polling alone.
func (t *PostedSignalTransport) Fire(worker int) error {
	t.states[worker].RequestPreempt()

	t.mu.Lock()
	tid := t.tids[worker]
	t.mu.Unlock()
	if tid == 0 {
		return nil
	}
	return unix.Tgkill(t.pid, int(tid), syscall.SIGURG)
}

// InstallHandler is a no-op: there is nothing per-worker to register
// beyond RegisterThread — delivery fans in through the single
// process-wide SIGURG channel drained by drain.
func (t *PostedSignalTransport) InstallHandler(worker int, yield func()) {}
