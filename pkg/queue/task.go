// Package queue implements the priority-ordered, dependency-gated task queue
// described in spec.md §4.C.
package queue

import (
	"time"

	"conclave/pkg/mode"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is a user-submitted work item with a mode, priority, and optional
// predecessors. Id never changes after creation; Dependencies is immutable
// after insertion; UpdatedAt is always >= CreatedAt.
type Task struct {
	ID           string
	Description  string
	Mode         mode.Mode
	Priority     mode.Priority
	Dependencies []string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
