package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"conclave/pkg/mode"
)

func baseTask(id string, priority mode.Priority, createdAt time.Time, deps ...string) Task {
	return Task{
		ID:           id,
		Description:  "do " + id,
		Mode:         mode.Coder,
		Priority:     priority,
		Dependencies: deps,
		Status:       StatusPending,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func TestGetNextOrdersByPriorityRank(t *testing.T) {
	q := New()
	now := time.Now()
	q.Add(baseTask("L", mode.Low, now))
	q.Add(baseTask("H", mode.High, now.Add(time.Second)))
	q.Add(baseTask("M", mode.Medium, now.Add(2*time.Second)))

	first := q.GetNext()
	require.NotNil(t, first)
	require.Equal(t, "H", first.ID)
	require.Equal(t, StatusRunning, first.Status)

	second := q.GetNext()
	require.Equal(t, "M", second.ID)

	third := q.GetNext()
	require.Equal(t, "L", third.ID)

	require.Nil(t, q.GetNext())
}

func TestGetNextTiesBrokenByCreatedAt(t *testing.T) {
	q := New()
	now := time.Now()
	q.Add(baseTask("second", mode.High, now.Add(time.Second)))
	q.Add(baseTask("first", mode.High, now))

	next := q.GetNext()
	require.Equal(t, "first", next.ID)
}

func TestDependencyGatingBlocksUntilPredecessorCompletes(t *testing.T) {
	q := New()
	now := time.Now()
	q.Add(baseTask("a", mode.Medium, now))
	q.Add(baseTask("b", mode.High, now.Add(time.Second), "a"))

	first := q.GetNext()
	require.Equal(t, "a", first.ID)

	require.Nil(t, q.GetNext())

	q.SetStatus("a", StatusCompleted)
	q.Add(baseTask("b", mode.High, now.Add(time.Second), "a"))

	second := q.GetNext()
	require.NotNil(t, second)
	require.Equal(t, "b", second.ID)
}

func TestMissingDependencyRendersTaskIneligible(t *testing.T) {
	q := New()
	q.Add(baseTask("orphan", mode.High, time.Now(), "does-not-exist"))
	require.Nil(t, q.GetNext())
}

func TestCycleNeverErrorsAndStaysIneligible(t *testing.T) {
	q := New()
	now := time.Now()
	q.Add(baseTask("x", mode.High, now, "y"))
	q.Add(baseTask("y", mode.High, now, "x"))

	require.Nil(t, q.GetNext())
	require.Nil(t, q.GetNext())
	require.Nil(t, q.GetNext())
}

func TestAddOverwritesByIDLastWriteWins(t *testing.T) {
	q := New()
	now := time.Now()
	q.Add(baseTask("a", mode.Low, now))
	q.Add(baseTask("a", mode.High, now))

	task, ok := q.GetByID("a")
	require.True(t, ok)
	require.Equal(t, mode.High, task.Priority)
}

func TestSizeCountsOnlyPendingTasks(t *testing.T) {
	q := New()
	now := time.Now()
	q.Add(baseTask("a", mode.Low, now))
	q.Add(baseTask("b", mode.Low, now))
	require.Equal(t, 2, q.Size())

	q.GetNext()
	require.Equal(t, 1, q.Size())
}

func TestGetAllTasksReturnsEveryStatus(t *testing.T) {
	q := New()
	now := time.Now()
	q.Add(baseTask("a", mode.Low, now))
	q.GetNext()
	q.SetStatus("a", StatusFailed)

	all := q.GetAllTasks()
	require.Len(t, all, 1)
	require.Equal(t, StatusFailed, all[0].Status)
}

func TestCleanupRemovesOnlyOldCompletedTasks(t *testing.T) {
	q := New()
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()

	q.Add(baseTask("old-completed", mode.Low, old))
	q.SetStatus("old-completed", StatusCompleted)
	q.tasks["old-completed"].CreatedAt = old

	q.Add(baseTask("recent-completed", mode.Low, recent))
	q.SetStatus("recent-completed", StatusCompleted)

	q.Add(baseTask("old-pending", mode.Low, old))

	q.Add(baseTask("old-failed", mode.Low, old))
	q.SetStatus("old-failed", StatusFailed)
	q.tasks["old-failed"].CreatedAt = old

	removed := q.Cleanup(24*time.Hour, false)
	require.Equal(t, 1, removed)

	_, ok := q.GetByID("old-completed")
	require.False(t, ok)

	_, ok = q.GetByID("recent-completed")
	require.True(t, ok)

	_, ok = q.GetByID("old-pending")
	require.True(t, ok)

	_, ok = q.GetByID("old-failed")
	require.True(t, ok, "failed tasks must survive cleanup unless includeFailed is set")
}

func TestCleanupWithIncludeFailedAlsoRemovesOldFailedTasks(t *testing.T) {
	q := New()
	old := time.Now().Add(-48 * time.Hour)

	q.Add(baseTask("old-failed", mode.Low, old))
	q.SetStatus("old-failed", StatusFailed)
	q.tasks["old-failed"].CreatedAt = old

	removed := q.Cleanup(24*time.Hour, true)
	require.Equal(t, 1, removed)

	_, ok := q.GetByID("old-failed")
	require.False(t, ok)
}
