package orchestrator

import (
	"time"

	"conclave/pkg/mode"
)

// AgentStatus is the lifecycle state of an Agent.
type AgentStatus string

const (
	AgentPending   AgentStatus = "pending"
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
)

// Agent is an ephemeral execution record coupling one task to one LLM
// invocation. Agents are values observed within the orchestrator; they have
// no public contract beyond what the orchestrator does to them. An agent is
// created directly in AgentRunning, attached to exactly one task. EndTime is
// set iff Status is terminal, and exactly one of Result/Error is populated
// on that transition.
type Agent struct {
	ID        string
	Mode      mode.Mode
	TaskID    string
	Task      string // task description, for prompt assembly
	Status    AgentStatus
	StartTime time.Time
	EndTime   *time.Time
	Result    *string
	Error     *string
}
