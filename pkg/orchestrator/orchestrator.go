// Package orchestrator implements the single-threaded cooperative scheduler
// described in spec.md §4.E/§4.F: it owns the task queue and the set of live
// agents, spawns an agent per eligible task up to a concurrency ceiling, and
// retires agent records after a grace window once they reach a terminal
// state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"conclave/pkg/events"
	"conclave/pkg/eventlog"
	"conclave/pkg/llm"
	"conclave/pkg/llmerrors"
	"conclave/pkg/logx"
	"conclave/pkg/memory"
	"conclave/pkg/metrics"
	"conclave/pkg/queue"
	"conclave/pkg/utils"
)

// Config carries the orchestrator's own tunables (spec.md §6 orchestrator
// defaults); vendor, rate-limit, and memory tunables belong to their own
// packages and are wired in as already-constructed dependencies.
type Config struct {
	MaxAgents       int
	AgentGrace      time.Duration
	ShutdownTimeout time.Duration
	// TaskRetention bounds how long a completed (and, if TaskRetentionIncludesFailed
	// is set, failed) task record is kept in the queue before the cleanup sweep
	// removes it. Defaults to 24h when zero.
	TaskRetention               time.Duration
	TaskRetentionIncludesFailed bool
}

// TaskSpec is a task submission as presented at the external interface,
// before validation.
type TaskSpec struct {
	Description  string
	Mode         string
	Priority     string
	Dependencies []string
}

// Status is a point-in-time snapshot returned by GetStatus.
type Status struct {
	Running      bool
	ActiveAgents int
	PendingTasks int
	Agents       []Agent
}

// Orchestrator owns the queue and the live agent set and runs the
// cooperative scheduling loop over them. The zero value is not usable; use
// New.
type Orchestrator struct {
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	wg        sync.WaitGroup // in-flight agent goroutines
	cleanupWg sync.WaitGroup // the cleanup sweep goroutine

	queue    *queue.Queue
	memory   *memory.Store
	adapter  *llm.Adapter
	bus      *events.Bus
	eventlog *eventlog.Writer
	metrics  *metrics.Recorder
	logger   *logx.Logger

	maxAgents                   int
	agentGrace                  time.Duration
	shutdownTimeout             time.Duration
	taskRetention               time.Duration
	taskRetentionIncludesFailed bool

	agents       map[string]*Agent
	activeAgents int

	now func() time.Time
}

// defaultTaskRetention is used when Config.TaskRetention is zero.
const defaultTaskRetention = 24 * time.Hour

// New wires an Orchestrator to its dependencies. bus defaults to a fresh
// events.Bus and logger to a component-scoped logx.Logger if either is nil;
// eventlog and metrics recorder are optional (nil disables that concern).
func New(cfg Config, q *queue.Queue, mem *memory.Store, adapter *llm.Adapter, bus *events.Bus, elog *eventlog.Writer, rec *metrics.Recorder, logger *logx.Logger) *Orchestrator {
	if bus == nil {
		bus = events.New()
	}
	if logger == nil {
		logger = logx.NewLogger("orchestrator")
	}
	retention := cfg.TaskRetention
	if retention <= 0 {
		retention = defaultTaskRetention
	}
	return &Orchestrator{
		queue:                       q,
		memory:                      mem,
		adapter:                     adapter,
		bus:                         bus,
		eventlog:                    elog,
		metrics:                     rec,
		logger:                      logger,
		maxAgents:                   cfg.MaxAgents,
		agentGrace:                  cfg.AgentGrace,
		shutdownTimeout:             cfg.ShutdownTimeout,
		taskRetention:               retention,
		taskRetentionIncludesFailed: cfg.TaskRetentionIncludesFailed,
		agents:                      make(map[string]*Agent),
		now:                         time.Now,
	}
}

// Start transitions the orchestrator to running, emits started, and runs an
// initial scheduling tick. It returns an error if already running.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("orchestrator: already running")
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	if healthy := o.adapter.CheckHealth(context.Background()); !healthy {
		o.logger.Warn("orchestrator: adapter health check failed at startup, continuing anyway")
	}

	o.bus.EmitStarted()
	o.logEvent("started", nil)

	o.cleanupWg.Add(1)
	go o.cleanupLoop()

	o.tick()
	return nil
}

// Stop transitions the orchestrator out of running and waits, up to
// shutdownTimeout, for in-flight agents and the cleanup sweep to finish. It
// is a no-op, emitting nothing, if the orchestrator is already stopped.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	close(o.stopCh)
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		o.cleanupWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.bus.EmitStopped()
		o.logEvent("stopped", map[string]any{"timedOut": false})
		return nil
	case <-time.After(o.shutdownTimeout):
		o.logger.Warn("orchestrator: stop timed out after %s with agents still in flight", o.shutdownTimeout)
		o.bus.EmitStopped()
		o.logEvent("stopped", map[string]any{"timedOut": true})
		return fmt.Errorf("orchestrator: stop timed out after %s", o.shutdownTimeout)
	}
}

// AddTask refuses with a ValidationError if the orchestrator is not running.
// Otherwise it validates spec, inserts it into the queue, emits taskAdded,
// and runs a scheduling tick. It returns the assigned task id.
func (o *Orchestrator) AddTask(spec TaskSpec) (string, error) {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()
	if !running {
		return "", &ValidationError{Reason: "not running"}
	}

	desc, err := validateDescription(spec.Description)
	if err != nil {
		return "", err
	}
	m, err := validateMode(spec.Mode)
	if err != nil {
		return "", err
	}
	priority, err := validatePriority(spec.Priority)
	if err != nil {
		return "", err
	}

	now := o.now()
	task := queue.Task{
		ID:           uuid.NewString(),
		Description:  desc,
		Mode:         m,
		Priority:     priority,
		Dependencies: append([]string(nil), spec.Dependencies...),
		Status:       queue.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	o.queue.Add(task)

	o.bus.EmitTaskAdded(events.TaskInfo{TaskID: task.ID, Mode: string(m), Priority: string(priority)})
	o.logEvent("taskAdded", map[string]any{"taskId": task.ID, "mode": string(m), "priority": string(priority)})
	if o.metrics != nil {
		o.metrics.SetPendingTasks(o.queue.Size())
	}

	o.tick()
	return task.ID, nil
}

// GetStatus returns a snapshot of the orchestrator's running state, active
// agent count, pending task count, and every live agent record.
func (o *Orchestrator) GetStatus() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	agents := make([]Agent, 0, len(o.agents))
	for _, a := range o.agents {
		agents = append(agents, *a)
	}
	return Status{
		Running:      o.running,
		ActiveAgents: o.activeAgents,
		PendingTasks: o.queue.Size(),
		Agents:       agents,
	}
}

// tick is the scheduling loop body: while capacity remains and an eligible
// task exists, spawn an agent for it. Ticks are triggered by Start, AddTask,
// and every agent terminal transition; there is no polling timer here.
func (o *Orchestrator) tick() {
	for {
		agent, task, ok := o.trySpawnLocked()
		if !ok {
			return
		}
		o.bus.EmitAgentSpawned(events.AgentInfo{AgentID: agent.ID, TaskID: task.ID, Mode: string(task.Mode)})
		o.logEvent("agentSpawned", map[string]any{"agentId": agent.ID, "taskId": task.ID, "mode": string(task.Mode)})
		o.wg.Add(1)
		go o.runAgent(agent, task)
	}
}

// trySpawnLocked claims the next eligible task and creates its agent record
// under the orchestrator's lock, returning ok=false if no capacity or no
// eligible task exists. Events are emitted by the caller, outside the lock.
func (o *Orchestrator) trySpawnLocked() (*Agent, queue.Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running || o.activeAgents >= o.maxAgents {
		return nil, queue.Task{}, false
	}
	taskPtr := o.queue.GetNext()
	if taskPtr == nil {
		return nil, queue.Task{}, false
	}
	task := *taskPtr

	agent := &Agent{
		ID:        uuid.NewString(),
		Mode:      task.Mode,
		TaskID:    task.ID,
		Task:      task.Description,
		Status:    AgentRunning,
		StartTime: o.now(),
	}
	o.agents[agent.ID] = agent
	o.activeAgents++
	if o.metrics != nil {
		o.metrics.SetActiveAgents(o.activeAgents)
		o.metrics.SetPendingTasks(o.queue.Size())
	}
	return agent, task, true
}

// runAgent executes one agent's LLM call to completion and records the
// outcome. It runs on its own goroutine, outside any orchestrator lock.
func (o *Orchestrator) runAgent(agent *Agent, task queue.Task) {
	defer o.wg.Done()

	ctx := context.Background()
	sysPrompt := systemPromptForMode(agent.Mode)
	recalled := o.memory.GetContext(string(agent.Mode))
	userPrompt := buildUserPrompt(task.Description, recalled)
	promptTokens := utils.CountTokensSimple(sysPrompt + "\n" + userPrompt)

	result, err := o.adapter.Execute(ctx, sysPrompt, userPrompt, agent.Mode)

	if o.metrics != nil {
		perMinute, perDay := o.adapter.RateLimitStatus()
		o.metrics.SetRateLimitWindow("minute", perMinute.Count)
		o.metrics.SetRateLimitWindow("day", perDay.Count)
	}

	o.completeAgent(agent, task, result, err, promptTokens)
}

// completeAgent records an agent's terminal transition, updates the matching
// task's status, persists the outcome to memory, emits the completion
// event pair, and triggers another scheduling tick. promptTokens is the
// estimated size of the prompt sent to the backend, surfaced for audit only.
func (o *Orchestrator) completeAgent(agent *Agent, task queue.Task, result string, err error, promptTokens int) {
	end := o.now()

	o.mu.Lock()
	agent.EndTime = &end
	failed := err != nil
	var redactedErr string
	if failed {
		redactedErr = llmerrors.Redact(err.Error())
		agent.Status = AgentFailed
		agent.Error = &redactedErr
		o.queue.SetStatus(task.ID, queue.StatusFailed)
	} else {
		agent.Status = AgentCompleted
		agent.Result = &result
		o.queue.SetStatus(task.ID, queue.StatusCompleted)
	}
	o.activeAgents--
	if o.metrics != nil {
		o.metrics.SetActiveAgents(o.activeAgents)
		o.metrics.ObserveAgentDuration(end.Sub(agent.StartTime).Seconds())
		if failed {
			o.metrics.IncFailedAgents()
		} else {
			o.metrics.IncCompletedAgents()
		}
	}
	o.mu.Unlock()

	if failed {
		o.memory.Store(agent.ID, memory.TypeError, redactedErr, []string{string(agent.Mode), "failed"})
		o.bus.EmitAgentFailed(events.AgentFailure{AgentID: agent.ID, TaskID: task.ID, Mode: string(agent.Mode), Err: errors.New(redactedErr)})
		o.logEvent("agentFailed", map[string]any{"agentId": agent.ID, "taskId": task.ID, "error": redactedErr, "promptTokens": promptTokens})
	} else {
		o.memory.Store(agent.ID, memory.TypeResult, result, []string{string(agent.Mode), "completed"})
		o.bus.EmitAgentCompleted(events.AgentInfo{AgentID: agent.ID, TaskID: task.ID, Mode: string(agent.Mode)})
		o.logEvent("agentCompleted", map[string]any{"agentId": agent.ID, "taskId": task.ID, "promptTokens": promptTokens})
		o.bus.EmitTaskCompleted(task.ID)
		o.logEvent("taskCompleted", map[string]any{"taskId": task.ID})
	}

	o.tick()
}

// cleanupLoop periodically sweeps terminal agent records older than the
// grace window. It is the single periodic timer in the orchestrator; there
// is no per-agent timer.
func (o *Orchestrator) cleanupLoop() {
	defer o.cleanupWg.Done()

	interval := o.agentGrace / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.cleanupAgents()
		case <-o.stopCh:
			return
		}
	}
}

func (o *Orchestrator) cleanupAgents() {
	o.mu.Lock()
	cutoff := o.now().Add(-o.agentGrace)
	for id, a := range o.agents {
		if a.EndTime != nil && a.EndTime.Before(cutoff) {
			delete(o.agents, id)
		}
	}
	o.mu.Unlock()

	o.queue.Cleanup(o.taskRetention, o.taskRetentionIncludesFailed)
}

func (o *Orchestrator) logEvent(kind string, payload map[string]any) {
	if o.eventlog == nil {
		return
	}
	if err := o.eventlog.Write(kind, payload); err != nil {
		o.logger.Warn("orchestrator: failed to write event log record: %v", err)
	}
}
