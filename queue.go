package asyncronaut

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrQueueDrained is returned by queue operations once draining has begun.
var ErrQueueDrained = errors.New("asyncronaut: queue is drained")

// ErrQueueFull is returned by [Queue.Enqueue] when the admission buffer is
// at its configured max queue size.
var ErrQueueFull = errors.New("asyncronaut: max task queue size reached")

// QueueState is the lifecycle state of a [Queue].
type QueueState int

const (
	// QueuePaused admits tasks but starts none.
	QueuePaused QueueState = iota

	// QueueRunning admits tasks and starts them under the concurrency
	// budget.
	QueueRunning

	// QueueDraining aborts in-flight work and rejects new tasks.
	QueueDraining

	// QueueDrained is terminal; every known task has settled.
	QueueDrained
)

// String returns the state name.
func (s QueueState) String() string {
	switch s {
	case QueuePaused:
		return "paused"
	case QueueRunning:
		return "running"
	case QueueDraining:
		return "draining"
	case QueueDrained:
		return "drained"
	default:
		return "unknown"
	}
}

// Handler processes one task. It receives a context cancelled when the
// task's signal fires and the task itself, for progress emission and
// cooperative cancellation checks.
type Handler[I, O any] func(ctx context.Context, task *Task[I, O]) (O, error)

// Queue is a bounded-concurrency FIFO task queue. Tasks are admitted with
// [Queue.Enqueue] and started, oldest first, while the queue is running and
// under its concurrency budget. A new queue starts paused.
type Queue[I, O any] struct {
	cfg    queueConfig
	onTask Handler[I, O]

	mu        sync.Mutex
	state     QueueState
	queued    []*Task[I, O]
	active    []*Task[I, O]
	succeeded []*Task[I, O]
	failed    []*Task[I, O]
	cancelled []*Task[I, O]
	drainDone *Future[struct{}]

	errEvents *Emitter[*TaskError]
}

// NewQueue creates a paused queue that processes tasks with onTask.
// Panics if onTask is nil.
func NewQueue[I, O any](onTask Handler[I, O], opts ...QueueOption) *Queue[I, O] {
	if onTask == nil {
		panic("asyncronaut: NewQueue requires non-nil handler")
	}

	cfg := defaultQueueConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Queue[I, O]{
		cfg:       cfg,
		onTask:    onTask,
		state:     QueuePaused,
		errEvents: NewEmitter[*TaskError](),
	}
}

// Enqueue admits a task. It returns [ErrQueueDrained] once draining has
// begun and [ErrQueueFull] when the admission buffer is at capacity. If the
// queue is running with a spare worker slot, the task is active before
// Enqueue returns.
func (q *Queue[I, O]) Enqueue(input I, opts ...EnqueueOption) (*Task[I, O], error) {
	var eo enqueueOptions
	for _, opt := range opts {
		opt(&eo)
	}

	t := newTask(q, input)

	q.mu.Lock()
	if q.state == QueueDraining || q.state == QueueDrained {
		q.mu.Unlock()
		return nil, ErrQueueDrained
	}
	if q.cfg.maxQueuedTasks > 0 && len(q.queued) >= q.cfg.maxQueuedTasks {
		q.mu.Unlock()
		return nil, ErrQueueFull
	}

	t.queuedAt = q.cfg.clock()
	q.queued = append(q.queued, t)
	q.tryStartNextLocked()
	q.mu.Unlock()

	if eo.signal != nil {
		// Subscribe outside the lock: an already-aborted signal invokes
		// the callback synchronously, which re-enters the queue.
		remove := eo.signal.OnAbort(func(reason error) {
			t.Abort(reason)
		})
		q.mu.Lock()
		if t.state.terminal() {
			q.mu.Unlock()
			remove()
		} else {
			t.unsubscribe = remove
			q.mu.Unlock()
		}
	}

	return t, nil
}

// Start moves the queue from paused to running and begins eligible tasks.
// Idempotent while running; errors once draining has begun.
func (q *Queue[I, O]) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch q.state {
	case QueueDraining, QueueDrained:
		return ErrQueueDrained
	case QueueRunning:
		return nil
	}

	q.state = QueueRunning
	q.tryStartNextLocked()
	return nil
}

// Pause stops starting new tasks; active tasks continue to completion.
// Idempotent while paused; errors once draining has begun.
func (q *Queue[I, O]) Pause() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch q.state {
	case QueueDraining, QueueDrained:
		return ErrQueueDrained
	}

	q.state = QueuePaused
	return nil
}

// Drain aborts every queued and active task, waits for all of them to
// settle, then marks the queue drained. It is idempotent: concurrent and
// repeated calls await the same completion.
func (q *Queue[I, O]) Drain(ctx context.Context) error {
	q.mu.Lock()
	if q.drainDone == nil {
		q.drainDone = NewFuture[struct{}]()
		q.state = QueueDraining

		pending := make([]*Task[I, O], 0, len(q.queued)+len(q.active))
		pending = append(pending, q.queued...)
		pending = append(pending, q.active...)
		go q.runDrain(pending)
	}
	done := q.drainDone
	q.mu.Unlock()

	_, err := done.Wait(ctx)
	return err
}

func (q *Queue[I, O]) runDrain(pending []*Task[I, O]) {
	for _, t := range pending {
		t.Abort(&AbortError{Message: "queue drained"})
	}
	for _, t := range pending {
		<-t.Completed()
	}

	q.mu.Lock()
	q.state = QueueDrained
	q.mu.Unlock()
	q.drainDone.Resolve(struct{}{})
}

// WaitForCompletion blocks until the queue holds no queued or active
// tasks. Tasks enqueued while waiting are waited on as well.
func (q *Queue[I, O]) WaitForCompletion(ctx context.Context) error {
	for {
		q.mu.Lock()
		var next *Task[I, O]
		if len(q.active) > 0 {
			next = q.active[0]
		} else if len(q.queued) > 0 {
			next = q.queued[0]
		}
		q.mu.Unlock()

		if next == nil {
			return nil
		}
		if err := next.Wait(ctx); err != nil {
			return err
		}
	}
}

// OnError subscribes fn to failure events. It fires for every task that
// reaches the failed state, carrying the task's [*TaskError]; cancellations
// are an expected outcome and are not published. The returned function
// removes the subscription.
func (q *Queue[I, O]) OnError(fn func(*TaskError)) (off func()) {
	return q.errEvents.On(fn)
}

// QueueDiagnostics is a point-in-time snapshot of a queue.
type QueueDiagnostics[I, O any] struct {
	State QueueState
	Tasks map[TaskState][]*Task[I, O]
}

// Diagnostics returns the queue state and a shallow copy of every task
// bucket, including retained terminal tasks.
func (q *Queue[I, O]) Diagnostics() QueueDiagnostics[I, O] {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := func(tasks []*Task[I, O]) []*Task[I, O] {
		out := make([]*Task[I, O], len(tasks))
		copy(out, tasks)
		return out
	}

	return QueueDiagnostics[I, O]{
		State: q.state,
		Tasks: map[TaskState][]*Task[I, O]{
			TaskQueued:    snapshot(q.queued),
			TaskActive:    snapshot(q.active),
			TaskSucceeded: snapshot(q.succeeded),
			TaskFailed:    snapshot(q.failed),
			TaskCancelled: snapshot(q.cancelled),
		},
	}
}

// QueueStats is a counter snapshot suitable for metrics export.
type QueueStats struct {
	State     QueueState
	Queued    int
	Active    int
	Succeeded int
	Failed    int
	Cancelled int
}

// Stats returns a point-in-time counter snapshot.
func (q *Queue[I, O]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return QueueStats{
		State:     q.state,
		Queued:    len(q.queued),
		Active:    len(q.active),
		Succeeded: len(q.succeeded),
		Failed:    len(q.failed),
		Cancelled: len(q.cancelled),
	}
}

// tryStartNextLocked starts queued tasks while the queue is running and
// under its concurrency budget. Callers must hold q.mu.
func (q *Queue[I, O]) tryStartNextLocked() {
	for q.state == QueueRunning &&
		len(q.active) < q.cfg.maxConcurrentTasks &&
		len(q.queued) > 0 {

		t := q.queued[0]
		q.queued = q.queued[1:]
		t.state = TaskActive
		q.active = append(q.active, t)
		q.startTask(t)
	}
}

// startTask launches the handler for an already-active task. Callers must
// hold q.mu; the handler itself runs on fresh goroutines.
func (q *Queue[I, O]) startTask(t *Task[I, O]) {
	src := NewFuture[O]()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				src.Reject(newPanicError(r))
			}
		}()

		v, err := q.onTask(t.Signal().Context(), t)
		if err != nil {
			src.Reject(err)
		} else {
			src.Resolve(v)
		}
	}()

	wrapped := WithTimeout(src, TimeoutOptions[O]{
		Timeout:        q.cfg.taskTimeout,
		TimeoutMessage: fmt.Sprintf("task %s timed out", t.ID),
		Cancel:         t.ctrl,
	})

	go func() {
		v, err := wrapped.Wait(context.Background())
		if err != nil {
			q.taskFailed(t, err)
		} else {
			q.taskSucceeded(t, v)
		}
	}()
}

// taskAborted handles an abort request for a task that may not have
// started yet. Active tasks are settled through their timeout wrapper
// instead.
func (q *Queue[I, O]) taskAborted(t *Task[I, O]) {
	q.mu.Lock()
	if t.state != TaskQueued {
		q.mu.Unlock()
		return
	}

	reason := t.ctrl.Signal().Reason()
	q.queued = removeTask(q.queued, t)
	hook := q.completeLocked(t, TaskCancelled, newTaskError(t.ID, t, reason))
	q.mu.Unlock()

	hook()
}

func (q *Queue[I, O]) taskSucceeded(t *Task[I, O], output O) {
	q.mu.Lock()
	if t.state != TaskActive {
		// The task settled some other way first (cancellation); the
		// handler's result is discarded.
		q.mu.Unlock()
		return
	}

	q.active = removeTask(q.active, t)

	if t.ctrl.Signal().Aborted() {
		// The task was aborted while running; a success that raced the
		// abort is discarded and the cancellation stands.
		reason := &AbortError{Message: "task aborted", Reason: t.ctrl.Signal().Reason()}
		hook := q.completeLocked(t, TaskCancelled, newTaskError(t.ID, t, reason))
		q.mu.Unlock()
		hook()
		return
	}

	t.output = output
	hook := q.completeLocked(t, TaskSucceeded, nil)
	q.mu.Unlock()

	hook()
}

func (q *Queue[I, O]) taskFailed(t *Task[I, O], err error) {
	q.mu.Lock()
	if t.state != TaskActive {
		// Already terminal; a late rejection never overwrites the
		// recorded outcome.
		q.mu.Unlock()
		return
	}

	var timeoutErr *TimeoutError
	isTimeout := errors.As(err, &timeoutErr)
	var abortErr *AbortError
	isAbort := errors.As(err, &abortErr)
	sigAborted := t.ctrl.Signal().Aborted()

	// A timer win aborts the task's own signal, so a timeout outcome is a
	// failure even though the signal has fired.
	isCancellation := isAbort || (sigAborted && !isTimeout)

	q.active = removeTask(q.active, t)

	var hook func()
	if isCancellation {
		reason := err
		if !isAbort {
			reason = &AbortError{Message: "task aborted", Reason: t.ctrl.Signal().Reason()}
		}
		hook = q.completeLocked(t, TaskCancelled, newTaskError(t.ID, t, reason))
		q.mu.Unlock()
		hook()
		return
	}

	taskErr := newTaskError(t.ID, t, err)
	hook = q.completeLocked(t, TaskFailed, taskErr)
	q.mu.Unlock()

	q.errEvents.Emit(taskErr)
	hook()
}

// completeLocked finishes a terminal transition: it stamps the task,
// appends it to its terminal bucket, resolves its completion future, runs
// retention GC, and refills worker slots. The caller has already removed
// the task from its previous bucket and must hold q.mu. The returned hook
// must be invoked after unlocking.
func (q *Queue[I, O]) completeLocked(t *Task[I, O], state TaskState, terr *TaskError) func() {
	t.state = state
	t.err = terr
	t.completedAt = q.cfg.clock()

	switch state {
	case TaskSucceeded:
		q.succeeded = append(q.succeeded, t)
	case TaskFailed:
		q.failed = append(q.failed, t)
	case TaskCancelled:
		q.cancelled = append(q.cancelled, t)
	}

	if t.unsubscribe != nil {
		t.unsubscribe()
		t.unsubscribe = nil
	}

	t.completed.Resolve(struct{}{})
	q.collectGarbageLocked()
	q.tryStartNextLocked()

	if q.cfg.onTaskDone == nil {
		return func() {}
	}
	duration := t.completedAt.Sub(t.queuedAt)
	return func() {
		q.cfg.onTaskDone(TaskInfo{ID: t.ID}, state, duration)
	}
}

// collectGarbageLocked evicts the oldest terminal tasks beyond the
// retention bound and detaches their progress listeners. Each terminal
// bucket is completion-ordered, so only bucket heads need comparing.
func (q *Queue[I, O]) collectGarbageLocked() {
	limit := q.cfg.maxCompletedTaskMemory
	if limit < 0 {
		return
	}

	total := len(q.succeeded) + len(q.failed) + len(q.cancelled)
	for total > limit {
		buckets := []*[]*Task[I, O]{&q.succeeded, &q.failed, &q.cancelled}

		var oldest *[]*Task[I, O]
		for _, b := range buckets {
			if len(*b) == 0 {
				continue
			}
			if oldest == nil || (*b)[0].completedAt.Before((*oldest)[0].completedAt) {
				oldest = b
			}
		}

		evicted := (*oldest)[0]
		*oldest = (*oldest)[1:]
		evicted.progress.Close()
		total--
	}
}

func removeTask[I, O any](tasks []*Task[I, O], t *Task[I, O]) []*Task[I, O] {
	for i, cur := range tasks {
		if cur == t {
			return append(tasks[:i], tasks[i+1:]...)
		}
	}
	return tasks
}
