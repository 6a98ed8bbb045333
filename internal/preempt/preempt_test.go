package preempt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkerStateShouldYieldOnceThenClears(t *testing.T) {
	w := NewWorkerState()
	require.False(t, w.ShouldYield())

	w.RequestPreempt()
	require.True(t, w.Armed())
	require.True(t, w.ShouldYield())
	require.False(t, w.Armed())
	require.False(t, w.ShouldYield())
}

func TestWorkerStateHonorsCriticalSection(t *testing.T) {
	w := NewWorkerState()
	w.EnterCritical()
	w.RequestPreempt()
	require.False(t, w.ShouldYield())

	w.ExitCritical()
	require.True(t, w.ShouldYield())
}

func TestWorkerStateNestedCriticalSections(t *testing.T) {
	w := NewWorkerState()
	w.EnterCritical()
	w.EnterCritical()
	w.RequestPreempt()
	w.ExitCritical()
	require.False(t, w.ShouldYield(), "still one critical section deep")

	w.ExitCritical()
	require.True(t, w.ShouldYield())
}

func TestCooperativeTransportFireArmsTargetWorkerOnly(t *testing.T) {
	states := []*WorkerState{NewWorkerState(), NewWorkerState()}
	tr := NewCooperativeTransport(states)

	require.NoError(t, tr.Fire(0))
	require.True(t, states[0].Armed())
	require.False(t, states[1].Armed())
}

func TestNoneTransportNeverArms(t *testing.T) {
	tr := NewNoneTransport()
	require.NoError(t, tr.Fire(0))
	tr.Arm(0, 123)
	tr.InstallHandler(0, func() {})
}

func TestPostedSignalTransportFireArmsWithoutRegisteredThread(t *testing.T) {
	states := []*WorkerState{NewWorkerState()}
	tr := NewPostedSignalTransport(states)

	require.NoError(t, tr.Fire(0))
	require.True(t, states[0].Armed())
}
