// Package handlers resolves each wire.RequestType to a concrete
// coroutine.HandlerFunc backed by an interfaces.Handler: the dispatch
// table a worker's continuation runs against to execute a request's
// handler body, calling checkpoint() along the way.
package handlers

import (
	"github.com/corelane/usched/internal/coroutine"
	"github.com/corelane/usched/internal/interfaces"
	"github.com/corelane/usched/internal/pool"
	"github.com/corelane/usched/internal/wire"
)

// Table maps each RequestType to the HandlerFunc a continuation runs.
type Table struct {
	funcs [wire.NumRequestTypes]coroutine.HandlerFunc
}

// Build resolves a Table against backend, one entry per RequestType.
// Only Scan's body calls y.Checkpoint() on its own — the other four
// operations are short enough to be non-preemptible in practice (they
// still receive a Yield and could checkpoint, but a correctly-sized
// backend makes that unnecessary). Put wraps its backend call in
// EnterCritical/ExitCritical instead: it never checkpoints, and a
// preempt request that arrives mid-mutation is not honored inside the
// critical section. Since Put has no checkpoint of its own, such a
// request stays pending until the next checkpoint the worker reaches.
func Build(backend interfaces.Handler) *Table {
	t := &Table{}
	t.funcs[wire.Get] = func(req *pool.Request, y *coroutine.Yield) {
		v, found, err := backend.Get(req.Key)
		req.Err = err
		req.Result = found
		if found {
			req.Value = v
		}
	}
	t.funcs[wire.Put] = func(req *pool.Request, y *coroutine.Yield) {
		y.EnterCritical()
		req.Err = backend.Put(req.Key, req.Value)
		y.ExitCritical()
	}
	t.funcs[wire.Delete] = func(req *pool.Request, y *coroutine.Yield) {
		found, err := backend.Delete(req.Key)
		req.Err = err
		req.Result = found
	}
	t.funcs[wire.Seek] = func(req *pool.Request, y *coroutine.Yield) {
		next, found, err := backend.Seek(req.Key)
		req.Err = err
		req.Result = found
		if found {
			req.Value = next
		}
	}
	t.funcs[wire.Scan] = func(req *pool.Request, y *coroutine.Yield) {
		rows, err := backend.Scan(req.Prefix, req.Limit, y.Checkpoint)
		req.Err = err
		req.Result = rows
	}
	return t
}

// Resolve returns the HandlerFunc for typ. Callers pass typ.Valid()
// values only — the dispatcher never admits an invalid type past
// ingress.
func (t *Table) Resolve(typ wire.RequestType) coroutine.HandlerFunc {
	return t.funcs[typ]
}
