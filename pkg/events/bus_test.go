package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmitStartedCallsAllHandlers(t *testing.T) {
	b := New()
	var calls int
	b.OnStarted(func() { calls++ })
	b.OnStarted(func() { calls++ })
	b.EmitStarted()
	require.Equal(t, 2, calls)
}

func TestEmitTaskAddedDeliversPayload(t *testing.T) {
	b := New()
	var got TaskInfo
	b.OnTaskAdded(func(info TaskInfo) { got = info })
	b.EmitTaskAdded(TaskInfo{TaskID: "t1", Mode: "coder", Priority: "high"})
	require.Equal(t, "t1", got.TaskID)
	require.Equal(t, "coder", got.Mode)
}

func TestEmitAgentFailedDeliversWrappedError(t *testing.T) {
	b := New()
	var got AgentFailure
	b.OnAgentFailed(func(f AgentFailure) { got = f })
	b.EmitAgentFailed(AgentFailure{AgentID: "a1", TaskID: "t1", Err: errors.New("boom")})
	require.EqualError(t, got.Err, "boom")
}

func TestEmitWithNoSubscribersDoesNotPanic(t *testing.T) {
	b := New()
	require.NotPanics(t, func() {
		b.EmitStarted()
		b.EmitStopped()
		b.EmitTaskAdded(TaskInfo{})
		b.EmitAgentSpawned(AgentInfo{})
		b.EmitAgentCompleted(AgentInfo{})
		b.EmitAgentFailed(AgentFailure{})
		b.EmitTaskCompleted("t1")
	})
}

func TestHandlersRunInRegistrationOrder(t *testing.T) {
	b := New()
	var order []int
	b.OnStarted(func() { order = append(order, 1) })
	b.OnStarted(func() { order = append(order, 2) })
	b.OnStarted(func() { order = append(order, 3) })
	b.EmitStarted()
	require.Equal(t, []int{1, 2, 3}, order)
}
