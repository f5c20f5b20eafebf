package asyncronaut

import "time"

const (
	defaultTaskTimeout            = 60 * time.Second
	defaultMaxCompletedTaskMemory = 100
)

type queueConfig struct {
	maxConcurrentTasks     int
	maxQueuedTasks         int
	maxCompletedTaskMemory int
	taskTimeout            time.Duration
	clock                  Clock
	onTaskDone             func(TaskInfo, TaskState, time.Duration)
}

// QueueOption configures a [Queue].
type QueueOption func(*queueConfig)

func defaultQueueConfig() queueConfig {
	return queueConfig{
		maxConcurrentTasks:     1,
		maxCompletedTaskMemory: defaultMaxCompletedTaskMemory,
		taskTimeout:            defaultTaskTimeout,
		clock:                  time.Now,
	}
}

// WithMaxConcurrentTasks sets the number of tasks that may be active at
// once. Default is 1. Panics if n <= 0.
func WithMaxConcurrentTasks(n int) QueueOption {
	if n <= 0 {
		panic("asyncronaut: WithMaxConcurrentTasks requires n > 0")
	}
	return func(c *queueConfig) {
		c.maxConcurrentTasks = n
	}
}

// WithMaxQueuedTasks bounds the admission buffer; [Queue.Enqueue] rejects
// once the buffer is full. Zero (the default) means unbounded.
// Panics if n is negative.
func WithMaxQueuedTasks(n int) QueueOption {
	if n < 0 {
		panic("asyncronaut: WithMaxQueuedTasks requires n >= 0")
	}
	return func(c *queueConfig) {
		c.maxQueuedTasks = n
	}
}

// WithMaxCompletedTaskMemory bounds how many terminal tasks the queue
// retains for diagnostics; the most recent by completion time win. Default
// is 100. A negative n retains everything. Zero retains none.
func WithMaxCompletedTaskMemory(n int) QueueOption {
	return func(c *queueConfig) {
		c.maxCompletedTaskMemory = n
	}
}

// WithTaskTimeout sets the per-task deadline enforced on every handler
// invocation. Default is 60 seconds. Zero disables the deadline.
// Panics if d is negative.
func WithTaskTimeout(d time.Duration) QueueOption {
	if d < 0 {
		panic("asyncronaut: WithTaskTimeout requires d >= 0")
	}
	return func(c *queueConfig) {
		c.taskTimeout = d
	}
}

// WithQueueClock injects the clock used for task timestamps.
func WithQueueClock(clock Clock) QueueOption {
	if clock == nil {
		panic("asyncronaut: WithQueueClock requires non-nil clock")
	}
	return func(c *queueConfig) {
		c.clock = clock
	}
}

// WithOnTaskDone registers a hook invoked after every terminal transition
// with the task's identity, final state, and queue-to-completion duration.
// The hook runs outside the queue lock.
func WithOnTaskDone(fn func(TaskInfo, TaskState, time.Duration)) QueueOption {
	if fn == nil {
		panic("asyncronaut: WithOnTaskDone requires non-nil callback")
	}
	return func(c *queueConfig) {
		c.onTaskDone = fn
	}
}

type enqueueOptions struct {
	signal *Signal
}

// EnqueueOption configures a single [Queue.Enqueue] call.
type EnqueueOption func(*enqueueOptions)

// WithSignal subscribes the task to an external cancellation signal;
// aborting the signal aborts the task.
func WithSignal(sig *Signal) EnqueueOption {
	return func(o *enqueueOptions) {
		o.signal = sig
	}
}
