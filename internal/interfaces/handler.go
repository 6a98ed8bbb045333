// Package interfaces provides internal interface definitions for usched.
// These are separate from the public interfaces to avoid circular imports
// between the root package and the scheduler internals.
package interfaces

import "github.com/corelane/usched/internal/wire"

// KVPair is a single result row from a Scan.
type KVPair struct {
	Key []byte
	Value []byte
}

// Handler defines the opaque, blocking backend call a request handler
// ultimately makes: Get/Put/Scan/Delete/Seek against whatever storage
// backs the scheduler.
//
// Scan is the one operation expected to run long enough to need
// cooperative checkpoints; it is passed a checkpoint function that the
// implementation must call periodically so the coroutine's yield points
// have somewhere to observe a pending preempt.
type Handler interface {
	Get(key []byte) (value []byte, found bool, err error)
	Put(key, value []byte) error
	Delete(key []byte) (found bool, err error)
	Seek(key []byte) (nextKey []byte, found bool, err error)
	Scan(prefix []byte, limit int, checkpoint func()) ([]KVPair, error)
	Close() error
}

// Logger is the minimal logging contract the scheduler core depends on,
// satisfied by internal/logging.Logger.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Observer is the metrics collection contract. Implementations must be
// thread-safe: ObserveCompletion is called from worker goroutines,
// ObserveQueueDepth from the dispatcher goroutine.
type Observer interface {
	ObserveCompletion(reqType wire.RequestType, latencyNs uint64, preemptions int, success bool)
	ObserveQueueDepth(workerID int, depth int)
	ObservePreempt(workerID int)
}
