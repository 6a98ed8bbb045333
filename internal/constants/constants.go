// Package constants holds build-time defaults for the scheduler core.
package constants

import "time"

// Default configuration constants.
const (
	// DefaultJBSQLen is the default depth of the per-worker request and
	// response slot rings.
	DefaultJBSQLen = 2

	// DefaultTimeSliceMicros is the target preemption threshold, in
	// microseconds, before a running request is forcibly yielded.
	DefaultTimeSliceMicros = 5

	// DefaultWorkerCount is a nominal worker count. Params does not read
	// it: a zero WorkerCount resolves to runtime.NumCPU()-2, floored at 1.
	DefaultWorkerCount = 4

	// MaxWorkers is a static upper bound on an explicitly configured
	// worker count; NewScheduler rejects a larger Params.WorkerCount.
	MaxWorkers = 256

	// DefaultIngressCapacity is the size of the fixed-size ingress
	// handoff array between the networker and the dispatcher.
	DefaultIngressCapacity = 256

	// DefaultDispatcherWorkThresholdMicros is the minimum epoch_slack,
	// in microseconds, required before the dispatcher will execute a
	// PACKET-category task locally on its own core instead of leaving
	// it queued for a worker.
	DefaultDispatcherWorkThresholdMicros = 2

	// DefaultRequestPoolSize and DefaultContinuationPoolSize bound the
	// fixed-size arenas backing in-flight requests and continuations.
	DefaultRequestPoolSize = 4096
	DefaultContinuationPoolSize = 4096
)

// DefaultSLO is applied to any request type without an explicit
// configured SLO.
const DefaultSLO = 100 * time.Microsecond

// JBSQLenValid reports whether depth is a supported JBSQ ring depth.
// Depths above 2 are rejected rather than supported through a
// generalized modular-index path.
func JBSQLenValid(depth int) bool {
	return depth == 1 || depth == 2
}
