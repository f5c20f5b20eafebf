package asyncronaut

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func terminalCount[I, O any](q *Queue[I, O]) int {
	s := q.Stats()
	return s.Succeeded + s.Failed + s.Cancelled
}

func TestQueueRetainsMostRecentTerminalTasks(t *testing.T) {
	q := NewQueue(func(ctx context.Context, task *Task[int, int]) (int, error) {
		return task.Input, nil
	}, WithMaxCompletedTaskMemory(3))

	var tasks []*Task[int, int]
	for i := range 10 {
		task, err := q.Enqueue(i)
		require.NoError(t, err)
		tasks = append(tasks, task)
	}
	require.NoError(t, q.Start())
	require.NoError(t, q.WaitForCompletion(context.Background()))

	assert.Equal(t, 3, terminalCount(q), "retention should be bounded")

	diag := q.Diagnostics()
	var retained []int
	for _, task := range diag.Tasks[TaskSucceeded] {
		retained = append(retained, task.Input)
	}
	assert.Equal(t, []int{7, 8, 9}, retained, "the most recently completed tasks should win")

	// Evicted tasks are still valid records for their holders.
	assert.Equal(t, TaskSucceeded, tasks[0].State())
	assert.Equal(t, 0, tasks[0].Output())
}

func TestQueueEvictionDetachesProgressListeners(t *testing.T) {
	q := NewQueue(func(ctx context.Context, task *Task[int, struct{}]) (struct{}, error) {
		return struct{}{}, nil
	}, WithMaxCompletedTaskMemory(1))

	first, err := q.Enqueue(1)
	require.NoError(t, err)
	first.Progress().On(func(ProgressUpdate) {})
	require.Equal(t, 1, first.Progress().ListenerCount())

	_, err = q.Enqueue(2)
	require.NoError(t, err)

	require.NoError(t, q.Start())
	require.NoError(t, q.WaitForCompletion(context.Background()))

	assert.Equal(t, 0, first.Progress().ListenerCount(),
		"eviction should detach progress listeners")
}

func TestQueueCancelledTasksCountAgainstRetention(t *testing.T) {
	q := NewQueue(func(ctx context.Context, task *Task[int, struct{}]) (struct{}, error) {
		return struct{}{}, nil
	}, WithMaxCompletedTaskMemory(2))

	for i := range 4 {
		task, err := q.Enqueue(i)
		require.NoError(t, err)
		task.Abort(nil)
	}

	assert.Equal(t, 2, terminalCount(q),
		"retention spans succeeded, failed, and cancelled buckets")
}

func TestQueueRetentionUnderLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	const taskCount = 10_000

	q := NewQueue(func(ctx context.Context, task *Task[int, struct{}]) (struct{}, error) {
		return struct{}{}, nil
	}, WithMaxConcurrentTasks(16))

	require.NoError(t, q.Start())
	var tasks []*Task[int, struct{}]
	for i := range taskCount {
		task, err := q.Enqueue(i)
		require.NoError(t, err)
		task.Progress().On(func(ProgressUpdate) {})
		tasks = append(tasks, task)
	}
	require.NoError(t, q.WaitForCompletion(context.Background()))

	assert.Equal(t, defaultMaxCompletedTaskMemory, terminalCount(q),
		"retention must stay bounded at scale")

	detached := 0
	for _, task := range tasks {
		if task.Progress().ListenerCount() == 0 {
			detached++
		}
	}
	assert.GreaterOrEqual(t, detached, taskCount-defaultMaxCompletedTaskMemory,
		"evicted tasks must not keep listeners alive")
}
