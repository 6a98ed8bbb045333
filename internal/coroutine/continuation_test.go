package coroutine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corelane/usched/internal/pool"
)

// flagChecker is a test Checkpointer that yields exactly once, the
// first time ShouldYield is polled after armed is set true.
type flagChecker struct {
	armed bool
}

func (f *flagChecker) ShouldYield() bool {
	if !f.armed {
		return false
	}
	f.armed = false
	return true
}

func TestContinuationRunsToCompletionWithoutSuspend(t *testing.T) {
	var c Continuation
	ran := false
	c.Bootstrap(func(req *pool.Request, y *Yield) {
		ran = true
		req.Result = "done"
	})

	req := &pool.Request{}
	finished := c.Resume(req, &flagChecker{})

	require.True(t, finished)
	require.True(t, ran)
	require.Equal(t, "done", req.Result)
}

func TestContinuationSuspendsAtCheckpointThenFinishes(t *testing.T) {
	var c Continuation
	steps := 0
	c.Bootstrap(func(req *pool.Request, y *Yield) {
		steps++
		y.Checkpoint() // should suspend here, since checker starts armed
		steps++
	})

	req := &pool.Request{}
	checker := &flagChecker{armed: true}

	finished := c.Resume(req, checker)
	require.False(t, finished)
	require.Equal(t, 1, steps)

	// Resuming again with a non-armed checker lets it run to completion.
	finished = c.Resume(req, &flagChecker{})
	require.True(t, finished)
	require.Equal(t, 2, steps)
}

func TestContinuationCanBeResumedByADifferentChecker(t *testing.T) {
	var c Continuation
	c.Bootstrap(func(req *pool.Request, y *Yield) {
		y.Checkpoint()
		y.Checkpoint()
	})

	req := &pool.Request{}
	require.False(t, c.Resume(req, &flagChecker{armed: true}))
	require.False(t, c.Resume(req, &flagChecker{armed: true}))
	require.True(t, c.Resume(req, &flagChecker{}))
}

func TestContinuationCapturesPanic(t *testing.T) {
	var c Continuation
	c.Bootstrap(func(req *pool.Request, y *Yield) {
		panic(errors.New("handler exploded"))
	})

	finished := c.Resume(&pool.Request{}, &flagChecker{})
	require.True(t, finished)

	val, ok := c.Panic()
	require.True(t, ok)
	require.EqualError(t, val.(error), "handler exploded")
}

func TestPoolAcquireReleaseExhaustion(t *testing.T) {
	p := NewPool(2)
	require.Equal(t, 3, p.Len())

	h1, ok := p.Acquire()
	require.True(t, ok)
	require.NotEqual(t, NoHandle, h1)

	h2, ok := p.Acquire()
	require.True(t, ok)

	_, ok = p.Acquire()
	require.False(t, ok)

	p.Release(h1)
	h3, ok := p.Acquire()
	require.True(t, ok)
	require.Equal(t, h1, h3)

	_ = h2
}

func TestPoolReleaseNoHandleIsNoop(t *testing.T) {
	p := NewPool(1)
	p.Release(NoHandle)
	h, ok := p.Acquire()
	require.True(t, ok)
	require.NotEqual(t, NoHandle, h)
}
