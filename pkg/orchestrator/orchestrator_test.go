package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"conclave/pkg/events"
	"conclave/pkg/llm"
	"conclave/pkg/memory"
	"conclave/pkg/metrics"
	"conclave/pkg/queue"
	"conclave/pkg/ratelimit"
)

// fakeBackend is a configurable llm.Backend: every call waits for delay (if
// set), then returns err if set and response otherwise, and is counted in
// calls.
type fakeBackend struct {
	mu       sync.Mutex
	response string
	err      error
	delay    time.Duration
	calls    int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Complete(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return llm.CompletionResponse{}, ctx.Err()
		}
	}
	if f.err != nil {
		return llm.CompletionResponse{}, f.err
	}
	return llm.CompletionResponse{Content: f.response}, nil
}

func (f *fakeBackend) Stream(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func generousPair() *ratelimit.Pair {
	return ratelimit.NewPair(
		ratelimit.Config{MaxRequests: 10_000, Window: time.Minute},
		ratelimit.Config{MaxRequests: 10_000, Window: 24 * time.Hour},
		nil,
	)
}

func newTestOrchestrator(t *testing.T, backend *fakeBackend, maxAgents int) *Orchestrator {
	t.Helper()
	adapter := llm.NewAdapter(backend, generousPair(), nil)
	store := memory.New(memory.DefaultConfig(filepath.Join(t.TempDir(), "memory.json")), nil)
	store.Initialize()

	o := New(Config{
		MaxAgents:       maxAgents,
		AgentGrace:      50 * time.Millisecond,
		ShutdownTimeout: time.Second,
	}, queue.New(), store, adapter, events.New(), nil, nil, nil)
	return o
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestAddTaskBeforeStartRefused(t *testing.T) {
	backend := &fakeBackend{response: "done"}
	o := newTestOrchestrator(t, backend, 2)

	_, err := o.AddTask(TaskSpec{Description: "do a thing", Mode: "coder"})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	status := o.GetStatus()
	require.Equal(t, 0, status.ActiveAgents)
	require.Equal(t, 0, status.PendingTasks)
}

func TestAddTaskAfterStopRefused(t *testing.T) {
	backend := &fakeBackend{response: "done"}
	o := newTestOrchestrator(t, backend, 2)
	require.NoError(t, o.Start())
	require.NoError(t, o.Stop())

	_, err := o.AddTask(TaskSpec{Description: "do a thing", Mode: "coder"})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestStartDrainsQueuedTasks(t *testing.T) {
	backend := &fakeBackend{response: "done"}
	o := newTestOrchestrator(t, backend, 2)
	require.NoError(t, o.Start())
	defer o.Stop()

	_, err := o.AddTask(TaskSpec{Description: "do a thing", Mode: "coder"})
	require.NoError(t, err)

	waitForCondition(t, time.Second, func() bool {
		return o.GetStatus().PendingTasks == 0
	})
}

func TestActiveAgentsNeverExceedsMaxAgents(t *testing.T) {
	backend := &fakeBackend{response: "done", delay: 30 * time.Millisecond}
	o := newTestOrchestrator(t, backend, 2)
	require.NoError(t, o.Start())
	defer o.Stop()

	for i := 0; i < 10; i++ {
		_, err := o.AddTask(TaskSpec{Description: "work item", Mode: "coder"})
		require.NoError(t, err)
		require.LessOrEqual(t, o.GetStatus().ActiveAgents, 2)
	}

	waitForCondition(t, 2*time.Second, func() bool {
		s := o.GetStatus()
		return s.ActiveAgents == 0 && s.PendingTasks == 0
	})
}

func TestAgentFailureEmitsAgentFailedNotAgentCompleted(t *testing.T) {
	backend := &fakeBackend{err: errors.New("boom")}
	o := newTestOrchestrator(t, backend, 1)

	var failed, completed int32
	o.bus.OnAgentFailed(func(events.AgentFailure) { failed++ })
	o.bus.OnAgentCompleted(func(events.AgentInfo) { completed++ })

	require.NoError(t, o.Start())
	defer o.Stop()

	_, err := o.AddTask(TaskSpec{Description: "fails every time", Mode: "coder"})
	require.NoError(t, err)

	waitForCondition(t, time.Second, func() bool { return failed == 1 })
	require.Equal(t, int32(0), completed)
}

func TestOrderingAgentCompletedBeforeTaskCompleted(t *testing.T) {
	backend := &fakeBackend{response: "ok"}
	o := newTestOrchestrator(t, backend, 1)

	var mu sync.Mutex
	var order []string
	o.bus.OnAgentCompleted(func(events.AgentInfo) {
		mu.Lock()
		order = append(order, "agentCompleted")
		mu.Unlock()
	})
	o.bus.OnTaskCompleted(func(string) {
		mu.Lock()
		order = append(order, "taskCompleted")
		mu.Unlock()
	})

	require.NoError(t, o.Start())
	defer o.Stop()

	_, err := o.AddTask(TaskSpec{Description: "succeeds", Mode: "coder"})
	require.NoError(t, err)

	waitForCondition(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})
	require.Equal(t, []string{"agentCompleted", "taskCompleted"}, order)
}

func TestOrderingAgentSpawnedBeforeAgentCompleted(t *testing.T) {
	backend := &fakeBackend{response: "ok"}
	o := newTestOrchestrator(t, backend, 1)

	var mu sync.Mutex
	var order []string
	o.bus.OnAgentSpawned(func(events.AgentInfo) {
		mu.Lock()
		order = append(order, "agentSpawned")
		mu.Unlock()
	})
	o.bus.OnAgentCompleted(func(events.AgentInfo) {
		mu.Lock()
		order = append(order, "agentCompleted")
		mu.Unlock()
	})

	require.NoError(t, o.Start())
	defer o.Stop()

	_, err := o.AddTask(TaskSpec{Description: "succeeds", Mode: "coder"})
	require.NoError(t, err)

	waitForCondition(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})
	require.Equal(t, []string{"agentSpawned", "agentCompleted"}, order)
}

func TestTerminalAgentHasEndTimeAfterStartTimeAndExactlyOneOutcome(t *testing.T) {
	backend := &fakeBackend{response: "ok"}
	o := newTestOrchestrator(t, backend, 1)
	require.NoError(t, o.Start())
	defer o.Stop()

	_, err := o.AddTask(TaskSpec{Description: "succeeds", Mode: "coder"})
	require.NoError(t, err)

	waitForCondition(t, time.Second, func() bool {
		s := o.GetStatus()
		return len(s.Agents) == 1 && s.Agents[0].Status == AgentCompleted
	})

	agent := o.GetStatus().Agents[0]
	require.NotNil(t, agent.EndTime)
	require.False(t, agent.EndTime.Before(agent.StartTime))
	require.NotNil(t, agent.Result)
	require.Nil(t, agent.Error)
}

func TestStopFromStoppedIsNoOp(t *testing.T) {
	backend := &fakeBackend{response: "ok"}
	o := newTestOrchestrator(t, backend, 1)

	var stopped int
	o.bus.OnStopped(func() { stopped++ })

	require.NoError(t, o.Stop())
	require.Equal(t, 0, stopped)
}

func TestStopWaitsForInFlightAgent(t *testing.T) {
	backend := &fakeBackend{response: "ok", delay: 20 * time.Millisecond}
	o := newTestOrchestrator(t, backend, 1)
	require.NoError(t, o.Start())

	_, err := o.AddTask(TaskSpec{Description: "slow task", Mode: "coder"})
	require.NoError(t, err)

	require.NoError(t, o.Stop())
	require.Equal(t, 0, o.GetStatus().ActiveAgents)
}

func TestAddTaskRejectsInvalidMode(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{}, 1)
	require.NoError(t, o.Start())
	defer o.Stop()
	_, err := o.AddTask(TaskSpec{Description: "valid description", Mode: "not-a-mode"})
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestAddTaskRejectsEmptyDescription(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{}, 1)
	require.NoError(t, o.Start())
	defer o.Stop()
	_, err := o.AddTask(TaskSpec{Description: "   ", Mode: "coder"})
	require.Error(t, err)
}

func TestAddTaskRejectsOversizedDescription(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{}, 1)
	require.NoError(t, o.Start())
	defer o.Stop()
	_, err := o.AddTask(TaskSpec{Description: string(make([]byte, maxDescriptionChars+1)), Mode: "coder"})
	require.Error(t, err)
}

func TestAddTaskAcceptsDescriptionAtExactCeiling(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{}, 1)
	require.NoError(t, o.Start())
	defer o.Stop()
	desc := make([]byte, maxDescriptionChars)
	for i := range desc {
		desc[i] = 'a'
	}
	_, err := o.AddTask(TaskSpec{Description: string(desc), Mode: "coder"})
	require.NoError(t, err)
}

func TestAddTaskRejectsScriptInjectionPatterns(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{}, 1)
	require.NoError(t, o.Start())
	defer o.Stop()
	for _, desc := range []string{
		`<script>alert(1)</script>`,
		`javascript:alert(1)`,
		`data:text/html,<h1>hi</h1>`,
		`eval(something)`,
		`function(){}`,
	} {
		_, err := o.AddTask(TaskSpec{Description: desc, Mode: "coder"})
		require.Error(t, err, "expected rejection for %q", desc)
	}
}

func TestCleanupSweepRemovesAgentAfterGraceWindow(t *testing.T) {
	backend := &fakeBackend{response: "ok"}
	o := newTestOrchestrator(t, backend, 1)
	require.NoError(t, o.Start())
	defer o.Stop()

	_, err := o.AddTask(TaskSpec{Description: "succeeds", Mode: "coder"})
	require.NoError(t, err)

	waitForCondition(t, time.Second, func() bool {
		return len(o.GetStatus().Agents) == 0
	})
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRunAgentPublishesRateLimitWindowMetrics(t *testing.T) {
	backend := &fakeBackend{response: "ok"}
	adapter := llm.NewAdapter(backend, generousPair(), nil)
	store := memory.New(memory.DefaultConfig(filepath.Join(t.TempDir(), "memory.json")), nil)
	store.Initialize()

	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)

	o := New(Config{
		MaxAgents:       1,
		AgentGrace:      50 * time.Millisecond,
		ShutdownTimeout: time.Second,
	}, queue.New(), store, adapter, events.New(), nil, rec, nil)

	require.NoError(t, o.Start())
	defer o.Stop()

	_, err := o.AddTask(TaskSpec{Description: "succeeds", Mode: "coder"})
	require.NoError(t, err)

	waitForCondition(t, time.Second, func() bool {
		return gaugeValue(t, reg, "conclave_rate_limit_window_count", "window", "minute") > 0
	})
	require.Greater(t, gaugeValue(t, reg, "conclave_rate_limit_window_count", "window", "day"), 0.0)
}
