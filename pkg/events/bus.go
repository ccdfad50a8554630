// Package events implements the orchestrator's typed, in-process event bus
// described in spec.md §5 ("expose a typed subscription API rather than
// stringly-typed channels, since the event set is closed").
package events

import "sync"

// TaskInfo is the payload carried by TaskAdded.
type TaskInfo struct {
	TaskID   string
	Mode     string
	Priority string
}

// AgentInfo is the payload carried by AgentSpawned and AgentCompleted.
type AgentInfo struct {
	AgentID string
	TaskID  string
	Mode    string
}

// AgentFailure is the payload carried by AgentFailed. Err has already been
// redacted of probable secrets by the caller before it reaches the bus.
type AgentFailure struct {
	AgentID string
	TaskID  string
	Mode    string
	Err     error
}

// Bus is the closed set of seven orchestrator lifecycle events. Subscribers
// must attach before Start to guarantee delivery of every event; handlers
// run synchronously, in registration order, on the emitting goroutine.
type Bus struct {
	mu sync.RWMutex

	onStarted       []func()
	onStopped       []func()
	onTaskAdded     []func(TaskInfo)
	onAgentSpawned  []func(AgentInfo)
	onAgentComplete []func(AgentInfo)
	onAgentFailed   []func(AgentFailure)
	onTaskComplete  []func(taskID string)
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{}
}

func (b *Bus) OnStarted(fn func())                    { b.mu.Lock(); b.onStarted = append(b.onStarted, fn); b.mu.Unlock() }
func (b *Bus) OnStopped(fn func())                    { b.mu.Lock(); b.onStopped = append(b.onStopped, fn); b.mu.Unlock() }
func (b *Bus) OnTaskAdded(fn func(TaskInfo))           { b.mu.Lock(); b.onTaskAdded = append(b.onTaskAdded, fn); b.mu.Unlock() }
func (b *Bus) OnAgentSpawned(fn func(AgentInfo))       { b.mu.Lock(); b.onAgentSpawned = append(b.onAgentSpawned, fn); b.mu.Unlock() }
func (b *Bus) OnAgentCompleted(fn func(AgentInfo))     { b.mu.Lock(); b.onAgentComplete = append(b.onAgentComplete, fn); b.mu.Unlock() }
func (b *Bus) OnAgentFailed(fn func(AgentFailure))     { b.mu.Lock(); b.onAgentFailed = append(b.onAgentFailed, fn); b.mu.Unlock() }
func (b *Bus) OnTaskCompleted(fn func(taskID string))  { b.mu.Lock(); b.onTaskComplete = append(b.onTaskComplete, fn); b.mu.Unlock() }

func (b *Bus) EmitStarted() {
	b.mu.RLock()
	handlers := append([]func(){}, b.onStarted...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (b *Bus) EmitStopped() {
	b.mu.RLock()
	handlers := append([]func(){}, b.onStopped...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (b *Bus) EmitTaskAdded(info TaskInfo) {
	b.mu.RLock()
	handlers := append([]func(TaskInfo){}, b.onTaskAdded...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(info)
	}
}

func (b *Bus) EmitAgentSpawned(info AgentInfo) {
	b.mu.RLock()
	handlers := append([]func(AgentInfo){}, b.onAgentSpawned...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(info)
	}
}

func (b *Bus) EmitAgentCompleted(info AgentInfo) {
	b.mu.RLock()
	handlers := append([]func(AgentInfo){}, b.onAgentComplete...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(info)
	}
}

func (b *Bus) EmitAgentFailed(failure AgentFailure) {
	b.mu.RLock()
	handlers := append([]func(AgentFailure){}, b.onAgentFailed...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(failure)
	}
}

func (b *Bus) EmitTaskCompleted(taskID string) {
	b.mu.RLock()
	handlers := append([]func(string){}, b.onTaskComplete...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(taskID)
	}
}
