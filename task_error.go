package asyncronaut

import (
	"errors"
	"fmt"
)

// TaskInfo identifies the task that produced a [TaskError].
type TaskInfo struct {
	ID string
}

// TaskError wraps the underlying cause of any non-success terminal task
// outcome together with the task that produced it. The queue wraps every
// failure and cancellation in a TaskError so callers can attribute errors
// to specific tasks; it never wraps a TaskError in another TaskError.
type TaskError struct {
	Task TaskInfo

	// Ref is the *Task the error belongs to. It is typed any because
	// TaskError is shared across queue instantiations.
	Ref any

	Err error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q failed: %v", e.Task.ID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// newTaskError wraps err for the given task. An err that is already a
// *TaskError is returned as-is.
func newTaskError(id string, ref any, err error) *TaskError {
	var te *TaskError
	if errors.As(err, &te) {
		return te
	}
	return &TaskError{Task: TaskInfo{ID: id}, Ref: ref, Err: err}
}

// IsTaskError reports whether err (or any error in its chain) is a [*TaskError].
func IsTaskError(err error) bool {
	if err == nil {
		return false
	}
	var te *TaskError
	return errors.As(err, &te)
}

// TaskOf extracts the [TaskInfo] from the first [*TaskError] in err's chain.
// Returns false if no TaskError is found.
func TaskOf(err error) (TaskInfo, bool) {
	if err == nil {
		return TaskInfo{}, false
	}

	var te *TaskError
	if errors.As(err, &te) {
		return te.Task, true
	}
	return TaskInfo{}, false
}

// CauseOf unwraps the first [*TaskError] in err's chain and returns its
// underlying cause. If err is not a TaskError, it is returned as-is.
// Returns nil if err is nil.
func CauseOf(err error) error {
	if err == nil {
		return nil
	}

	var te *TaskError
	if errors.As(err, &te) {
		return te.Err
	}

	return err
}
