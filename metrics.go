package usched

import (
	"sync/atomic"
	"time"

	"github.com/corelane/usched/internal/interfaces"
	"github.com/corelane/usched/internal/wire"
)

// LatencyBuckets defines the completion-latency histogram buckets in
// nanoseconds. Buckets cover from 1us (a single-shard Get) to 10s
// (a pathologically stalled Scan) with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000, // 1us
	10_000, // 10us
	100_000, // 100us
	1_000_000, // 1ms
	10_000_000, // 10ms
	100_000_000, // 100ms
	1_000_000_000, // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// typeCounters is the per-RequestType slice of a Metrics instance:
// completions, errors, and preemptions observed for one wire.RequestType.
type typeCounters struct {
	Ops atomic.Uint64
	Errors atomic.Uint64
	Preemptions atomic.Uint64
}

// Metrics tracks completion counts, latency distribution, queue depth,
// and preemption activity for a running Scheduler.
type Metrics struct {
	byType [wire.NumRequestTypes]typeCounters

	QueueDepthTotal atomic.Uint64 // cumulative queue depth samples
	QueueDepthCount atomic.Uint64 // number of queue depth measurements
	MaxQueueDepth atomic.Uint32 // maximum observed queue depth

	TotalLatencyNs atomic.Uint64 // cumulative completion latency
	OpCount atomic.Uint64 // total completions (for average latency)

	// LatencyBuckets holds cumulative counts: bucket[i] is the count of
	// completions with latency <= LatencyBuckets[i].
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	PreemptCount atomic.Uint64 // total preempt-check firings observed

	StartTime atomic.Int64 // scheduler start timestamp (UnixNano)
	StopTime atomic.Int64 // scheduler stop timestamp (UnixNano), 0 if running
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordCompletion records one request's terminal outcome: reqType is
// the wire.RequestType, latencyNs is the arrival-to-completion time,
// preemptions counts how many times it was preempted before finishing.
func (m *Metrics) RecordCompletion(reqType wire.RequestType, latencyNs uint64, preemptions int, success bool) {
	if !reqType.Valid() {
		return
	}
	c := &m.byType[reqType]
	c.Ops.Add(1)
	if !success {
		c.Errors.Add(1)
	}
	if preemptions > 0 {
		c.Preemptions.Add(uint64(preemptions))
	}
	m.recordLatency(latencyNs)
}

// RecordQueueDepth records one worker's occupancy sample.
func (m *Metrics) RecordQueueDepth(depth int) {
	d := uint64(depth)
	m.QueueDepthTotal.Add(d)
	m.QueueDepthCount.Add(1)

	for {
		current := m.MaxQueueDepth.Load()
		if uint32(depth) <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, uint32(depth)) {
			break
		}
	}
}

// RecordPreempt records one preempt-check firing against a worker.
func (m *Metrics) RecordPreempt() {
	m.PreemptCount.Add(1)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the scheduler as stopped, freezing uptime calculations.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// TypeSnapshot is a per-RequestType slice of MetricsSnapshot.
type TypeSnapshot struct {
	Type wire.RequestType
	Ops uint64
	Errors uint64
	Preemptions uint64
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to format or
// marshal without racing the live counters.
type MetricsSnapshot struct {
	ByType [wire.NumRequestTypes]TypeSnapshot

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgLatencyNs uint64
	UptimeNs uint64

	LatencyP50Ns uint64
	LatencyP99Ns uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalOps uint64
	TotalErrors uint64
	TotalPreempts uint64
	ErrorRate float64 // percentage of completions that errored
	IOPS float64 // completions per second
}

// Snapshot creates a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var snap MetricsSnapshot

	for i := 0; i < wire.NumRequestTypes; i++ {
		c := &m.byType[i]
		snap.ByType[i] = TypeSnapshot{
			Type: wire.RequestType(i),
			Ops: c.Ops.Load(),
			Errors: c.Errors.Load(),
			Preemptions: c.Preemptions.Load(),
		}
		snap.TotalOps += snap.ByType[i].Ops
		snap.TotalErrors += snap.ByType[i].Errors
		snap.TotalPreempts += snap.ByType[i].Preemptions
	}

	snap.MaxQueueDepth = m.MaxQueueDepth.Load()
	if count := m.QueueDepthCount.Load(); count > 0 {
		snap.AvgQueueDepth = float64(m.QueueDepthTotal.Load()) / float64(count)
	}

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		snap.IOPS = float64(snap.TotalOps) / (float64(snap.UptimeNs) / 1e9)
	}

	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(snap.TotalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) by linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, useful between benchmark runs.
func (m *Metrics) Reset() {
	for i := range m.byType {
		m.byType[i].Ops.Store(0)
		m.byType[i].Errors.Store(0)
		m.byType[i].Preemptions.Store(0)
	}
	m.QueueDepthTotal.Store(0)
	m.QueueDepthCount.Store(0)
	m.MaxQueueDepth.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.PreemptCount.Store(0)
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer is the metrics-collection contract the dispatcher and
// workers call into. It is an alias of internal/interfaces.Observer so
// callers never need to import the internal package directly.
type Observer = interfaces.Observer

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveCompletion(wire.RequestType, uint64, int, bool) {}
func (NoOpObserver) ObserveQueueDepth(int, int) {}
func (NoOpObserver) ObservePreempt(int) {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveCompletion(reqType wire.RequestType, latencyNs uint64, preemptions int, success bool) {
	o.metrics.RecordCompletion(reqType, latencyNs, preemptions, success)
}

func (o *MetricsObserver) ObserveQueueDepth(_ int, depth int) {
	o.metrics.RecordQueueDepth(depth)
}

func (o *MetricsObserver) ObservePreempt(_ int) {
	o.metrics.RecordPreempt()
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
