package preempt

// Transport is the scheduling-method-agnostic face the dispatcher
// drives: arm a worker's deadline, fire a preempt request
// against it, and install whatever delivery mechanism the transport
// needs. Exactly one Transport backs a running scheduler, selected by
// wire.ScheduleMethod.
type Transport interface {
	// Arm records that worker should be preempted no later than
	// deadlineNanos. Transports that have no delivery timer of their
	// own (cooperative, none) treat this as a no-op; the dispatcher's
	// own epoch_slack tracking is what actually calls Fire when a
	// worker overruns its time slice.
	Arm(worker int, deadlineNanos int64)

	// Fire requests that worker's running continuation yield at its
	// next checkpoint. It never blocks waiting for the yield to
	// happen — delivery is asynchronous by construction.
	Fire(worker int) error

	// InstallHandler registers the callback a transport's delivery
	// mechanism should invoke for worker, if it has one of its own
	// (signal handler, timer callback). yield is never required to be
	// called — workers only actually yield at coroutine.Yield.Checkpoint.
	InstallHandler(worker int, yield func())
}
