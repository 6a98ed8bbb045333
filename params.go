// Package usched provides the main API for running the μs-scale
// dispatcher/worker scheduling core: Params configures a Scheduler,
// NewScheduler wires a dispatcher and N workers against a caller-
// supplied Handler, and Run/Stop drive the pinned-goroutine main loops.
package usched

import (
	"context"
	"runtime"
	"time"

	"github.com/corelane/usched/internal/constants"
	"github.com/corelane/usched/internal/coroutine"
	"github.com/corelane/usched/internal/dispatcher"
	"github.com/corelane/usched/internal/handlers"
	"github.com/corelane/usched/internal/ingress"
	"github.com/corelane/usched/internal/interfaces"
	"github.com/corelane/usched/internal/logging"
	"github.com/corelane/usched/internal/pool"
	"github.com/corelane/usched/internal/preempt"
	"github.com/corelane/usched/internal/preemptcheck"
	"github.com/corelane/usched/internal/slot"
	"github.com/corelane/usched/internal/wire"
	"github.com/corelane/usched/internal/worker"
)

// Params configures a Scheduler: a flat struct of runtime-tunable
// fields with a DefaultParams constructor filling in sensible defaults.
type Params struct {
	// Handler is the backend every worker's continuation ultimately
	// calls into (Get/Put/Delete/Seek/Scan).
	Handler interfaces.Handler

	// WorkerCount is the number of worker goroutines. 0 means
	// runtime.NumCPU()-2 (reserving a CPU each for networker and
	// dispatcher), floored at 1.
	WorkerCount int

	// JBSQLen is the request/response ring depth, validated to {1, 2}.
	JBSQLen int

	// TimeSliceMicros is the preemption threshold: a running request
	// held longer than this is fired on at the next dispatcher pass.
	TimeSliceMicros int

	// DispatcherWorkThresholdMicros is the minimum epoch_slack, in
	// microseconds, before the dispatcher executes a queued PACKET task
	// on its own core. Zero disables dispatcher-local
	// work entirely.
	DispatcherWorkThresholdMicros int

	// ScheduleMethod selects the preemption transport.
	ScheduleMethod wire.ScheduleMethod

	// SLOs overrides the per-type latency target used by SLO-weighted
	// dispatch. Types not present default to constants.DefaultSLO.
	SLOs map[wire.RequestType]time.Duration

	// RequestPoolSize and ContinuationPoolSize bound the fixed-size
	// arenas shared across all workers.
	RequestPoolSize int
	ContinuationPoolSize int

	// QueueCapacity sizes each per-type task queue in the dispatcher.
	QueueCapacity int

	// IngressCapacity sizes the networker/dispatcher handoff array.
	IngressCapacity int

	Logger interfaces.Logger
	Observer interfaces.Observer
}

// DefaultParams returns Params with every field defaulted except
// Handler, which the caller must still supply.
func DefaultParams(handler interfaces.Handler) Params {
	return Params{
		Handler: handler,
		WorkerCount: 0,
		JBSQLen: constants.DefaultJBSQLen,
		TimeSliceMicros: constants.DefaultTimeSliceMicros,
		DispatcherWorkThresholdMicros: constants.DefaultDispatcherWorkThresholdMicros,
		ScheduleMethod: wire.PostedSignal,
		SLOs: nil,
		RequestPoolSize: constants.DefaultRequestPoolSize,
		ContinuationPoolSize: constants.DefaultContinuationPoolSize,
		QueueCapacity: constants.DefaultRequestPoolSize,
		IngressCapacity: constants.DefaultIngressCapacity,
	}
}

func (p Params) resolvedWorkerCount() int {
	if p.WorkerCount > 0 {
		return p.WorkerCount
	}
	if n := runtime.NumCPU() - 2; n > 0 {
		return n
	}
	return 1
}

// validate mirrors CreateAndServe's upfront parameter checks: a bad JBSQLen or missing Handler is rejected before
// any goroutine is started.
func (p Params) validate() error {
	if p.Handler == nil {
		return NewError("NewScheduler", ErrCodeInvalidParameters, "Handler must not be nil")
	}
	if !constants.JBSQLenValid(p.JBSQLen) {
		return NewError("NewScheduler", ErrCodeInvalidParameters, "JBSQLen must be 1 or 2")
	}
	if p.WorkerCount > constants.MaxWorkers {
		return NewError("NewScheduler", ErrCodeInvalidParameters, "WorkerCount exceeds MaxWorkers")
	}
	return nil
}

// Scheduler owns the dispatcher, the per-worker rings, and the
// goroutines that drive them: one struct representing the whole
// running pipeline.
type Scheduler struct {
	params Params

	rings []*slot.Ring
	checks []*preemptcheck.Entry

	reqPool *pool.RequestPool
	contPool *coroutine.Pool
	handoff *ingress.Handoff
	table *handlers.Table

	transport preempt.Transport
	states []*preempt.WorkerState

	dispatcher *dispatcher.Dispatcher
	workers []*worker.Worker

	metrics *Metrics
	observer interfaces.Observer
	logger interfaces.Logger

	ctx context.Context
	cancel context.CancelFunc

	started bool
}

// NewScheduler validates params and wires a dispatcher and its workers,
// but does not start any goroutines — call Run for that.
func NewScheduler(params Params) (*Scheduler, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	workerCount := params.resolvedWorkerCount()

	logger := params.Logger
	if logger == nil {
		logger = logging.Default()
	}

	metrics := NewMetrics()
	observer := params.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	rings := make([]*slot.Ring, workerCount)
	checks := make([]*preemptcheck.Entry, workerCount)
	states := make([]*preempt.WorkerState, workerCount)
	for i := 0; i < workerCount; i++ {
		rings[i] = slot.NewRing(params.JBSQLen)
		checks[i] = &preemptcheck.Entry{}
		states[i] = preempt.NewWorkerState()
	}

	var transport preempt.Transport
	switch params.ScheduleMethod {
	case wire.CooperativeYield:
		transport = preempt.NewCooperativeTransport(states)
	case wire.None:
		transport = preempt.NewNoneTransport()
	default:
		transport = preempt.NewPostedSignalTransport(states)
	}

	reqPool := pool.NewRequestPool(params.RequestPoolSize)
	contPool := coroutine.NewPool(params.ContinuationPoolSize)
	handoff := ingress.NewHandoff(params.IngressCapacity)
	table := handlers.Build(params.Handler)

	var slos [wire.NumRequestTypes]time.Duration
	for t := 0; t < wire.NumRequestTypes; t++ {
		slos[t] = constants.DefaultSLO
	}
	for typ, d := range params.SLOs {
		if typ.Valid() {
			slos[typ] = d
		}
	}

	dcfg := dispatcher.Config{
		JBSQLen: params.JBSQLen,
		TimeSlice: time.Duration(params.TimeSliceMicros) * time.Microsecond,
		DispatcherWorkThreshold: time.Duration(params.DispatcherWorkThresholdMicros) * time.Microsecond,
		SLOs: slos,
		EnableDispatcherWork: params.DispatcherWorkThresholdMicros > 0,
	}

	d := dispatcher.New(dcfg, rings, checks, reqPool, contPool, handoff, table, transport, params.QueueCapacity, logger, observer)

	workers := make([]*worker.Worker, workerCount)
	for i := 0; i < workerCount; i++ {
		workers[i] = worker.New(i, rings[i], reqPool, contPool, table, states[i], checks[i], logger, observer)
	}

	return &Scheduler{
		params: params,
		rings: rings,
		checks: checks,
		reqPool: reqPool,
		contPool: contPool,
		handoff: handoff,
		table: table,
		transport: transport,
		states: states,
		dispatcher: d,
		workers: workers,
		metrics: metrics,
		observer: observer,
		logger: logger,
	}, nil
}

// Handoff exposes the networker-facing side of the ingress handoff, for
// a caller (a real networker, or internal/ingress.Simulated) to publish
// arrivals into.
func (s *Scheduler) Handoff() *ingress.Handoff { return s.handoff }

// RequestPool exposes the shared request arena, for a networker to
// allocate handles from before publishing them into the Handoff.
func (s *Scheduler) RequestPool() *pool.RequestPool { return s.reqPool }

// Metrics returns the Scheduler's built-in metrics instance. It is only
// populated if Params.Observer was left nil (NewScheduler then installs
// a MetricsObserver backed by it).
func (s *Scheduler) Metrics() *Metrics { return s.metrics }

// WorkerCount reports the number of worker goroutines this scheduler
// was built with.
func (s *Scheduler) WorkerCount() int { return len(s.workers) }

// Run starts the dispatcher and worker main loops as pinned goroutines
// and blocks until ctx is cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.metrics.StartTime.Store(time.Now().UnixNano())

	done := make(chan struct{})
	for i, w := range s.workers {
		go s.runWorker(i, w, done)
	}
	go s.runDispatcher(done)

	<-s.ctx.Done()
	return nil
}

// Stop cancels the running Scheduler's context, causing Run's
// goroutines to exit at their next loop check.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.metrics.Stop()
}

// IsRunning reports whether Run has been called and its context has
// not yet been cancelled.
func (s *Scheduler) IsRunning() bool {
	if !s.started || s.ctx == nil {
		return false
	}
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}

func (s *Scheduler) runWorker(id int, w *worker.Worker, done chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if pst, ok := s.transport.(*preempt.PostedSignalTransport); ok {
		pst.RegisterThread(id)
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		if _, err := w.Step(time.Now().UnixNano()); err != nil {
			s.fatal(WrapError("worker.Step", err))
			return
		}
	}
}

func (s *Scheduler) runDispatcher(done chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		if err := s.dispatcher.Step(time.Now().UnixNano()); err != nil {
			s.fatal(WrapError("dispatcher.Step", err))
			return
		}
	}
}

// fatal handles an unrecoverable context-switch failure: log a warning
// and terminate the process. There is no recovery.
func (s *Scheduler) fatal(err error) {
	s.logger.Warnf("usched: fatal context-switch failure: %v", err)
	panic(err)
}

// Info reports a point-in-time snapshot of the Scheduler's
// configuration and metrics.
type Info struct {
	WorkerCount int
	JBSQLen int
	ScheduleMethod wire.ScheduleMethod
	Running bool
	Metrics MetricsSnapshot
}

// Info returns the Scheduler's current Info snapshot.
func (s *Scheduler) Info() Info {
	return Info{
		WorkerCount: len(s.workers),
		JBSQLen: s.params.JBSQLen,
		ScheduleMethod: s.params.ScheduleMethod,
		Running: s.IsRunning(),
		Metrics: s.metrics.Snapshot(),
	}
}
