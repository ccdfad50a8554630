package queue

import (
	"sort"
	"sync"
	"time"
)

// Queue stores tasks by id and serves the next runnable one honoring
// priority ordering and dependency gating. It never errors on a dependency
// cycle: two tasks that depend on each other are both perpetually
// ineligible and GetNext returns nil until the cycle is broken externally.
type Queue struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{tasks: make(map[string]*Task)}
}

// Add inserts task, or overwrites the existing entry with the same id
// (last write wins). No validation happens here; the caller validates
// mode and description before calling Add.
func (q *Queue) Add(task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored := task
	q.tasks[task.ID] = &stored
}

// Size returns the count of tasks currently in pending status.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, t := range q.tasks {
		if t.Status == StatusPending {
			n++
		}
	}
	return n
}

// GetNext selects among pending tasks whose dependency set is satisfied,
// returning the one with the highest priority rank, ties broken by
// earliest CreatedAt. The chosen task atomically transitions to running.
// Returns nil if no eligible task exists.
func (q *Queue) GetNext() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var eligible []*Task
	for _, t := range q.tasks {
		if t.Status != StatusPending {
			continue
		}
		if q.dependenciesSatisfied(t) {
			eligible = append(eligible, t)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.Slice(eligible, func(i, j int) bool {
		ri, rj := eligible[i].Priority.Rank(), eligible[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	chosen := eligible[0]
	chosen.Status = StatusRunning
	chosen.UpdatedAt = time.Now()
	result := *chosen
	return &result
}

// dependenciesSatisfied reports whether every id in t.Dependencies resolves
// within the queue to a completed task. Must be called with q.mu held.
func (q *Queue) dependenciesSatisfied(t *Task) bool {
	for _, depID := range t.Dependencies {
		dep, exists := q.tasks[depID]
		if !exists || dep.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// GetByID looks up a task by id regardless of status.
func (q *Queue) GetByID(id string) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// GetAllTasks returns a snapshot of every task regardless of status.
func (q *Queue) GetAllTasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := make([]Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

// SetStatus transitions the task identified by id to status, bumping
// UpdatedAt. It is a no-op if the task does not exist.
func (q *Queue) SetStatus(id string, status Status) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return
	}
	t.Status = status
	t.UpdatedAt = time.Now()
}

// Cleanup removes tasks whose CreatedAt is older than now-maxAge. It always
// removes completed tasks; it additionally removes failed tasks when
// includeFailed is true. Pending and running tasks are never removed.
func (q *Queue) Cleanup(maxAge time.Duration, includeFailed bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, t := range q.tasks {
		eligible := t.Status == StatusCompleted || (includeFailed && t.Status == StatusFailed)
		if eligible && t.CreatedAt.Before(cutoff) {
			delete(q.tasks, id)
			removed++
		}
	}
	return removed
}
