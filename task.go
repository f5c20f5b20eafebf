package asyncronaut

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskState is the user-visible lifecycle state of a [Task].
type TaskState int

const (
	// TaskQueued means the task is admitted but not yet running.
	TaskQueued TaskState = iota

	// TaskActive means the task's handler is running.
	TaskActive

	// TaskCancelled means the task was aborted before or during execution.
	TaskCancelled

	// TaskSucceeded means the handler returned a result.
	TaskSucceeded

	// TaskFailed means the handler returned an error or timed out.
	TaskFailed
)

// String returns the state name.
func (s TaskState) String() string {
	switch s {
	case TaskQueued:
		return "queued"
	case TaskActive:
		return "active"
	case TaskCancelled:
		return "cancelled"
	case TaskSucceeded:
		return "succeeded"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// terminal reports whether s is a final state.
func (s TaskState) terminal() bool {
	return s == TaskCancelled || s == TaskSucceeded || s == TaskFailed
}

// ProgressUpdate is the recommended payload for task progress events.
type ProgressUpdate struct {
	CompletedItems int
	TotalItems     int
}

// Task is a queue entry. It is handed to the queue's handler and returned
// to the caller of [Queue.Enqueue]; both observe the same record. Callers
// must not retain it past queue drain if they need live state.
type Task[I, O any] struct {
	// ID uniquely identifies the task.
	ID string

	// Input is the value passed to [Queue.Enqueue].
	Input I

	q *Queue[I, O]

	// Guarded by q.mu.
	state       TaskState
	output      O
	err         *TaskError
	queuedAt    time.Time
	completedAt time.Time
	unsubscribe func()

	completed *Future[struct{}]
	ctrl      *Controller
	progress  *Emitter[ProgressUpdate]
}

func newTask[I, O any](q *Queue[I, O], input I) *Task[I, O] {
	return &Task[I, O]{
		ID:        uuid.NewString(),
		Input:     input,
		q:         q,
		state:     TaskQueued,
		completed: NewFuture[struct{}](),
		ctrl:      NewController(),
		progress:  NewEmitter[ProgressUpdate](),
	}
}

// State returns the task's current lifecycle state.
func (t *Task[I, O]) State() TaskState {
	t.q.mu.Lock()
	defer t.q.mu.Unlock()
	return t.state
}

// Output returns the handler's result. It is the zero value unless the
// task succeeded.
func (t *Task[I, O]) Output() O {
	t.q.mu.Lock()
	defer t.q.mu.Unlock()
	return t.output
}

// Err returns the task's terminal error: a [*TaskError] when the task was
// cancelled or failed, nil otherwise.
func (t *Task[I, O]) Err() error {
	t.q.mu.Lock()
	defer t.q.mu.Unlock()
	if t.err == nil {
		return nil
	}
	return t.err
}

// QueuedAt returns the admission timestamp.
func (t *Task[I, O]) QueuedAt() time.Time {
	t.q.mu.Lock()
	defer t.q.mu.Unlock()
	return t.queuedAt
}

// CompletedAt returns the terminal-transition timestamp, zero while the
// task is still queued or active.
func (t *Task[I, O]) CompletedAt() time.Time {
	t.q.mu.Lock()
	defer t.q.mu.Unlock()
	return t.completedAt
}

// Completed returns a channel that is closed when the task reaches a
// terminal state.
func (t *Task[I, O]) Completed() <-chan struct{} {
	return t.completed.Done()
}

// Wait blocks until the task reaches a terminal state or ctx is done.
// It returns nil on terminal transition regardless of the task's outcome;
// inspect [Task.Err] for the result.
func (t *Task[I, O]) Wait(ctx context.Context) error {
	_, err := t.completed.Wait(ctx)
	return err
}

// Signal returns the cancellation signal observed by the task's handler.
func (t *Task[I, O]) Signal() *Signal {
	return t.ctrl.Signal()
}

// Abort requests cancellation of the task. A queued task transitions to
// cancelled immediately. An active task's handler observes its signal; with
// a task deadline configured the queue records the cancellation as soon as
// the signal fires and discards the handler's later result, and with the
// deadline disabled it records the cancellation when the handler returns.
func (t *Task[I, O]) Abort(reason error) {
	if reason == nil {
		reason = &AbortError{Message: "task aborted"}
	}
	t.ctrl.Abort(reason)
	t.q.taskAborted(t)
}

// Progress returns the task's progress event channel. Handlers emit on it;
// callers subscribe with [Emitter.On]. Listeners are detached when the
// task is evicted from the queue's terminal-task memory.
func (t *Task[I, O]) Progress() *Emitter[ProgressUpdate] {
	return t.progress
}
