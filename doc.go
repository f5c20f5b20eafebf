// Package asyncronaut provides concurrency primitives for async task
// processing: a bounded-concurrency task queue and a concurrent resource
// pool, built on a small substrate of settable futures, deadline wrappers,
// and cancellation signals.
//
// # Futures
//
// [Future] is a settable, inspectable promise of a typed value. Event-driven
// sources (timer fires, cancellation, external completion) settle it with
// [Future.Resolve] or [Future.Reject]; only the first settle takes effect.
// Consumers block with [Future.Wait], select on [Future.Done], or poll
// [Future.IsDone] and [Future.DebugValues].
//
// [WithTimeout] races a source future against a deadline and an optional
// external [Controller]. Losing sources are not abandoned blindly: the
// OnLateResolve and OnLateReject hooks fire when the source eventually
// settles, so callers can free resources created during the lost operation.
//
// [WithRetry] re-invokes an action a bounded number of times, running an
// optional cleanup after each failed attempt.
//
// # Cancellation
//
// [Controller] and [Signal] form a writer/reader pair modeled on the
// abort-controller pattern. The controller's owner calls [Controller.Abort];
// handlers observe [Signal.Aborted], [Signal.Err], [Signal.Done], or
// register callbacks with [Signal.OnAbort]. A signal also derives a
// [context.Context] via [Signal.Context] for handing to blocking calls.
//
// # Task queue
//
// [Queue] admits tasks in FIFO order and runs at most a configured number
// concurrently. Each [Task] carries a cancellation signal, a user-visible
// state, a completion future, and a progress event channel:
//
//	q := asyncronaut.NewQueue(func(ctx context.Context, t *asyncronaut.Task[string, int]) (int, error) {
//	    return len(t.Input), nil
//	}, asyncronaut.WithMaxConcurrentTasks(4))
//
//	task, _ := q.Enqueue("hello")
//	_ = q.Start()
//	_ = task.Wait(context.Background())
//
// Tasks move QUEUED → ACTIVE → {SUCCEEDED, FAILED, CANCELLED}; a queued task
// may be cancelled before it ever starts. Failures (but not cancellations)
// are published to subscribers registered via [Queue.OnError]. Terminal
// tasks are retained for diagnostics up to a configured bound; older ones
// are evicted and their progress listeners detached.
//
// # Resource pool
//
// [Pool] manages a set of asynchronously created resources and hands out
// leases against them, allowing multiple concurrent leases per resource:
//
//	p := asyncronaut.NewPool(createConn, destroyConn,
//	    asyncronaut.WithMaxResources[*Conn](4),
//	    asyncronaut.WithMaxLeasesPerResource[*Conn](2))
//
//	lease, err := p.Acquire(ctx)
//	defer p.Release(ctx, lease)
//
// Resources are retired by use count or age, destroyed once idle (or
// forcibly after a grace period), and replaced to maintain a configured
// floor. Acquire requests beyond current capacity park in a FIFO and are
// woken by the pool's revalidate step after every state change. See
// [WrapToSingleLease] for a resource-keyed adapter that forbids concurrent
// leases of the same resource.
//
// # Observability
//
// Both subsystems expose snapshot counters ([Queue.Stats], [Pool.Stats])
// and point-in-time diagnostics ([Queue.Diagnostics], [Pool.Diagnostics]).
// The observability/prometheus subpackage adapts the snapshots to
// Prometheus collectors.
package asyncronaut
