package asyncronaut

import "time"

// TimeoutOptions configures [WithTimeout].
type TimeoutOptions[T any] struct {
	// Timeout is the deadline for the source to settle. Zero or negative
	// means no deadline.
	Timeout time.Duration

	// TimeoutMessage overrides the [TimeoutError] message on a timer win.
	TimeoutMessage string

	// AbortMessage overrides the [AbortError] message on a cancel win.
	AbortMessage string

	// Cancel is an optional external cancellation controller. Its signal
	// races the source; on a timer win the controller is aborted with the
	// timeout error so downstream consumers observe cancellation.
	Cancel *Controller

	// OnLateResolve runs exactly once if the source resolves after losing
	// the race. Use it to free resources created during the abandoned
	// operation.
	OnLateResolve func(T)

	// OnLateReject runs exactly once if the source rejects after losing
	// the race.
	OnLateReject func(error)
}

// WithTimeout races src against a deadline and an optional external
// cancellation signal. The first to settle wins: a timer win rejects with a
// [*TimeoutError], a cancel win rejects with an [*AbortError], and a source
// win forwards the source's outcome.
//
// With no deadline configured, src is returned unchanged.
func WithTimeout[T any](src *Future[T], opts TimeoutOptions[T]) *Future[T] {
	if src == nil {
		panic("asyncronaut: WithTimeout requires non-nil source")
	}
	if opts.Timeout <= 0 {
		return src
	}

	out := NewFuture[T]()

	go func() {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()

		var sig *Signal
		var cancelCh <-chan struct{}
		if opts.Cancel != nil {
			sig = opts.Cancel.Signal()
			cancelCh = sig.Done()
		}

		select {
		case <-src.Done():
			v, err, _ := src.DebugValues()
			if err != nil {
				out.Reject(err)
			} else {
				out.Resolve(v)
			}
			return

		case <-timer.C:
			terr := &TimeoutError{Message: opts.TimeoutMessage, Timeout: opts.Timeout}
			out.Reject(terr)
			if opts.Cancel != nil {
				opts.Cancel.Abort(terr)
			}

		case <-cancelCh:
			out.Reject(&AbortError{Message: opts.AbortMessage, Reason: sig.Reason()})
		}

		// The race is lost but the source is still in flight; run the
		// matching cleanup hook when it eventually settles.
		<-src.Done()
		v, err, _ := src.DebugValues()
		if err != nil {
			if opts.OnLateReject != nil {
				opts.OnLateReject(err)
			}
		} else if opts.OnLateResolve != nil {
			opts.OnLateResolve(v)
		}
	}()

	return out
}
