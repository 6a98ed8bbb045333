package ingress

import (
	"github.com/corelane/usched/internal/pool"
	"github.com/corelane/usched/internal/wire"
)

// Arrival describes one synthetic request a Source produces.
type Arrival struct {
	Type wire.RequestType
	Key []byte
	Value []byte
	Prefix []byte
	Limit int
}

// Source generates a sequence of arrivals. Next returns (_, false) once
// the pattern is exhausted.
type Source interface {
	Next() (Arrival, bool)
}

// ConstantSource emits a fixed count of same-type requests, deriving
// each key from a caller-supplied sequence function — a uniform
// arrival pattern useful for steady-state load tests.
type ConstantSource struct {
	typ wire.RequestType
	remaining int
	seq int
	keyFn func(seq int) []byte
	valueFn func(seq int) []byte
}

// NewConstantSource builds a source of count requests of typ. valueFn
// may be nil for request types that don't carry a value (Get/Delete/
// Seek/Scan).
func NewConstantSource(typ wire.RequestType, count int, keyFn, valueFn func(seq int) []byte) *ConstantSource {
	return &ConstantSource{typ: typ, remaining: count, keyFn: keyFn, valueFn: valueFn}
}

// Next implements Source.
func (s *ConstantSource) Next() (Arrival, bool) {
	if s.remaining <= 0 {
		return Arrival{}, false
	}
	s.remaining--
	a := Arrival{Type: s.typ, Key: s.keyFn(s.seq)}
	if s.valueFn != nil {
		a.Value = s.valueFn(s.seq)
	}
	s.seq++
	return a, true
}

// ScriptedSource replays a fixed, caller-provided slice of arrivals in
// order — used where a test needs an exact type mix rather than a
// uniform one.
type ScriptedSource struct {
	arrivals []Arrival
	idx int
}

// NewScriptedSource wraps arrivals for sequential replay.
func NewScriptedSource(arrivals []Arrival) *ScriptedSource {
	return &ScriptedSource{arrivals: arrivals}
}

// Next implements Source.
func (s *ScriptedSource) Next() (Arrival, bool) {
	if s.idx >= len(s.arrivals) {
		return Arrival{}, false
	}
	a := s.arrivals[s.idx]
	s.idx++
	return a, true
}

// Simulated is the reference Networker. It pulls from a Source, allocates requests from a shared
// pool.RequestPool, and drives a Handoff's networker side.
type Simulated struct {
	handoff *Handoff
	reqs *pool.RequestPool
	src Source
	batchSize int

	dropped int
}

// NewSimulated wires a Simulated networker. batchSize should not
// exceed handoff.Capacity().
func NewSimulated(handoff *Handoff, reqs *pool.RequestPool, src Source, batchSize int) *Simulated {
	if batchSize > handoff.Capacity() {
		batchSize = handoff.Capacity()
	}
	return &Simulated{handoff: handoff, reqs: reqs, src: src, batchSize: batchSize}
}

// Tick runs one networker pass: if the handoff is idle, reclaim freed
// handles, pull up to batchSize arrivals from the source, allocate and
// populate a request per arrival, and publish the batch. nowNanos
// stamps each allocated request's ArrivalNanos. Returns the number of
// requests published; it is 0 whenever the handoff still has an
// unconsumed batch (dispatcher hasn't drained yet) or the source is
// exhausted.
func (s *Simulated) Tick(nowNanos int64) int {
	if !s.handoff.Idle() {
		return 0
	}
	for _, h := range s.handoff.ReclaimFreed() {
		s.reqs.Free(h)
	}

	handles := make([]pool.Handle, 0, s.batchSize)
	types := make([]wire.RequestType, 0, s.batchSize)
	for len(handles) < s.batchSize {
		arrival, ok := s.src.Next()
		if !ok {
			break
		}
		h, ok := s.reqs.Alloc()
		if !ok {
			// Transient resource exhaustion: drop this
			// arrival silently, count it, and stop trying for this
			// tick — the pool will free up as the dispatcher finishes
			// in-flight work.
			s.dropped++
			break
		}
		req := s.reqs.Get(h)
		req.Key = arrival.Key
		req.Value = arrival.Value
		req.Prefix = arrival.Prefix
		req.Limit = arrival.Limit
		req.ArrivalNanos = nowNanos
		handles = append(handles, h)
		types = append(types, arrival.Type)
	}
	if len(handles) == 0 {
		return 0
	}
	return s.handoff.Publish(handles, types)
}

// Dropped reports how many arrivals were lost to pool exhaustion.
func (s *Simulated) Dropped() int { return s.dropped }
