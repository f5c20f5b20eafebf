package asyncronaut

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPoolDrained is returned by pool operations once draining has begun.
var ErrPoolDrained = errors.New("asyncronaut: pool is drained")

// ErrAcquireQueueFull is returned by [Pool.Acquire] when the waiter queue
// is at its configured max queue size.
var ErrAcquireQueueFull = errors.New("asyncronaut: max acquire queue size reached")

// ErrUnknownLease is returned when a lease is released or retired twice,
// or never belonged to the pool.
var ErrUnknownLease = errors.New("asyncronaut: lease is not active")

// Lease is the public view of a granted lease: an identity plus the
// resolved resource. Hand it back with [Pool.Release] or [Pool.Retire].
type Lease[R any] struct {
	ID       int64
	Resource R
}

// lease is the pool's internal lease record.
type lease[R any] struct {
	id       int64
	leasedAt time.Time
	rec      *resourceRecord[R]

	// Guarded by the pool mutex.
	released bool
}

// resourceRecord tracks one resource from creation through destruction.
type resourceRecord[R any] struct {
	id        int64
	createdAt time.Time

	// ref settles with the user-created resource; it may still be
	// pending while leases are attached.
	ref *Future[R]

	// Guarded by the pool mutex.
	retiredAt time.Time
	active    []*lease[R]
	past      []*lease[R]

	// destroyed is set the instant destruction begins and settles when
	// it completes; it stays awaitable after the record leaves the pool.
	destroyed *Future[struct{}]
}

func (r *resourceRecord[R]) retired() bool {
	return !r.retiredAt.IsZero()
}

func (r *resourceRecord[R]) destroying() bool {
	return r.destroyed != nil
}

type poolWaiter[R any] struct {
	fut *Future[*lease[R]]
}

// Pool is a concurrent resource pool. Resources are created asynchronously,
// leased out up to a per-resource concurrency bound, retired by use count
// or age, and destroyed once idle. Acquire requests beyond current capacity
// park in a FIFO and are woken as capacity frees up.
//
// All scheduling decisions are consolidated in a single revalidate step
// that runs after every state change.
type Pool[R any] struct {
	cfg     poolConfig[R]
	create  CreateFunc[R]
	destroy DestroyFunc[R]

	mu             sync.Mutex
	drained        bool
	drainDone      *Future[struct{}]
	nextResourceID int64
	nextLeaseID    int64
	records        []*resourceRecord[R]
	destroying     map[int64]*resourceRecord[R]
	waiters        []*poolWaiter[R]
	leases         map[int64]*lease[R]
}

// NewPool creates a pool that builds resources with create and tears them
// down with destroy. Panics if either is nil, or if minResources exceeds a
// configured maxResources.
func NewPool[R any](create CreateFunc[R], destroy DestroyFunc[R], opts ...PoolOption[R]) *Pool[R] {
	if create == nil {
		panic("asyncronaut: NewPool requires non-nil create")
	}
	if destroy == nil {
		panic("asyncronaut: NewPool requires non-nil destroy")
	}

	cfg := defaultPoolConfig[R]()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxResources > 0 && cfg.minResources > cfg.maxResources {
		panic("asyncronaut: minResources must not exceed maxResources")
	}

	return &Pool[R]{
		cfg:        cfg,
		create:     create,
		destroy:    destroy,
		destroying: make(map[int64]*resourceRecord[R]),
		leases:     make(map[int64]*lease[R]),
	}
}

// Initialize brings the pool up to its resource floor and waits for every
// pending create to settle.
func (p *Pool[R]) Initialize(ctx context.Context) error {
	p.mu.Lock()
	if p.drained {
		p.mu.Unlock()
		return ErrPoolDrained
	}
	p.revalidateLocked()
	refs := make([]*Future[R], 0, len(p.records))
	for _, rec := range p.records {
		refs = append(refs, rec.ref)
	}
	p.mu.Unlock()

	var errs []error
	for _, ref := range refs {
		if _, err := ref.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Acquire obtains a lease. If no capacity is free it parks in the waiter
// FIFO until the revalidate step wakes it or the effective acquire
// deadline fires. The returned lease's resource is always resolved.
func (p *Pool[R]) Acquire(ctx context.Context, opts ...AcquireOption) (*Lease[R], error) {
	var ao acquireOptions
	for _, opt := range opts {
		opt(&ao)
	}
	timeout := p.cfg.acquireTimeout
	if ao.hasTimeout {
		timeout = ao.timeout
	}

	p.mu.Lock()
	if p.drained {
		p.mu.Unlock()
		return nil, ErrPoolDrained
	}
	p.revalidateLocked()

	il := p.allocateLocked()
	var w *poolWaiter[R]
	if il == nil {
		if p.cfg.maxQueuedAcquires > 0 && len(p.waiters) >= p.cfg.maxQueuedAcquires {
			p.mu.Unlock()
			return nil, ErrAcquireQueueFull
		}
		w = &poolWaiter[R]{fut: NewFuture[*lease[R]]()}
		p.waiters = append(p.waiters, w)
	}
	p.mu.Unlock()

	src := NewFuture[*Lease[R]]()
	ctrl := NewController()

	// Caller-side cancellation feeds the race below.
	go func() {
		select {
		case <-ctx.Done():
			ctrl.Abort(context.Cause(ctx))
		case <-src.Done():
		}
	}()

	go p.finishAcquire(ctx, src, w, il)

	wrapped := WithTimeout(src, TimeoutOptions[*Lease[R]]{
		Timeout:        timeout,
		TimeoutMessage: "acquire timed out waiting for resource",
		AbortMessage:   "acquire aborted",
		Cancel:         ctrl,
	})

	ext, err := wrapped.Wait(ctx)
	if err == nil {
		return ext, nil
	}

	// The acquire is abandoned: unpark the waiter so it does not consume
	// a capacity grant, and return any reservation that still completes.
	if w != nil {
		p.cancelWaiter(w, err)
	}
	go func() {
		if late, lateErr := src.Wait(context.Background()); lateErr == nil {
			_ = p.Release(context.Background(), late)
		}
	}()
	return nil, err
}

// finishAcquire carries an acquire from reservation to hand-off: wait for
// a waiter grant if parked, then the resource, then the acquire hook.
func (p *Pool[R]) finishAcquire(ctx context.Context, src *Future[*Lease[R]], w *poolWaiter[R], il *lease[R]) {
	if w != nil {
		granted, err := w.fut.Wait(context.Background())
		if err != nil {
			src.Reject(err)
			return
		}
		il = granted
	}

	res, err := il.rec.ref.Wait(context.Background())
	if err != nil {
		p.releaseAbandoned(il)
		src.Reject(err)
		return
	}

	ext := &Lease[R]{ID: il.id, Resource: res}
	if p.cfg.onAcquire != nil {
		if err := callLeaseHook(p.cfg.onAcquire, ctx, ext); err != nil {
			p.releaseAbandoned(il)
			src.Reject(err)
			return
		}
	}
	src.Resolve(ext)
}

// Release runs the release hook, drops the lease, and revalidates. If the
// lease's record is being destroyed, the destruction outcome is surfaced
// unless release errors are silenced. The lease is dropped even when the
// effective release deadline fires.
func (p *Pool[R]) Release(ctx context.Context, ext *Lease[R], opts ...ReleaseOption) error {
	var ro releaseOptions
	for _, opt := range opts {
		opt(&ro)
	}
	timeout := p.cfg.releaseTimeout
	if ro.hasTimeout {
		timeout = ro.timeout
	}

	p.mu.Lock()
	il, ok := p.leases[ext.ID]
	p.mu.Unlock()
	if !ok {
		return ErrUnknownLease
	}

	src := NewFuture[struct{}]()
	go func() {
		var hookErr error
		if p.cfg.onRelease != nil {
			hookErr = callLeaseHook(p.cfg.onRelease, ctx, ext)
		}

		p.mu.Lock()
		p.dropLeaseLocked(il)
		p.revalidateLocked()
		destroyed := il.rec.destroyed
		p.mu.Unlock()

		if destroyed != nil {
			if _, derr := destroyed.Wait(context.Background()); derr != nil && hookErr == nil {
				hookErr = derr
			}
		}

		if hookErr != nil {
			src.Reject(hookErr)
		} else {
			src.Resolve(struct{}{})
		}
	}()

	wrapped := WithTimeout(src, TimeoutOptions[struct{}]{
		Timeout:        timeout,
		TimeoutMessage: "release timed out",
	})

	_, err := wrapped.Wait(ctx)
	if err != nil {
		// The hook may be stuck; the lease is dropped regardless.
		p.mu.Lock()
		p.dropLeaseLocked(il)
		p.revalidateLocked()
		p.mu.Unlock()
	}

	if p.cfg.silenceReleaseErrors {
		return nil
	}
	return err
}

// Retire marks the lease's record as retired so it accepts no further
// leases, then releases the lease.
func (p *Pool[R]) Retire(ctx context.Context, ext *Lease[R], opts ...ReleaseOption) error {
	p.mu.Lock()
	il, ok := p.leases[ext.ID]
	if !ok {
		p.mu.Unlock()
		return ErrUnknownLease
	}
	if !il.rec.retired() {
		il.rec.retiredAt = p.cfg.clock()
	}
	p.revalidateLocked()
	p.mu.Unlock()

	return p.Release(ctx, ext, opts...)
}

// Drain marks the pool drained, rejects parked acquires, destroys every
// record, and waits for all destructions to settle. It is idempotent:
// concurrent and repeated calls await the same completion.
func (p *Pool[R]) Drain(ctx context.Context) error {
	p.mu.Lock()
	if p.drainDone == nil {
		p.drainDone = NewFuture[struct{}]()
		p.drained = true

		parked := p.waiters
		p.waiters = nil

		for _, rec := range append([]*resourceRecord[R](nil), p.records...) {
			p.beginDestroyLocked(rec)
		}
		pending := make([]*resourceRecord[R], 0, len(p.destroying))
		for _, rec := range p.destroying {
			pending = append(pending, rec)
		}
		go p.runDrain(parked, pending)
	}
	done := p.drainDone
	p.mu.Unlock()

	_, err := done.Wait(ctx)
	return err
}

func (p *Pool[R]) runDrain(parked []*poolWaiter[R], pending []*resourceRecord[R]) {
	for _, w := range parked {
		w.fut.Reject(ErrPoolDrained)
	}

	var errs []error
	for _, rec := range pending {
		if _, err := rec.destroyed.Wait(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		p.drainDone.Reject(err)
	} else {
		p.drainDone.Resolve(struct{}{})
	}
}

// ResourceDiagnostics describes one resource record.
type ResourceDiagnostics struct {
	ID        int64
	CreatedAt time.Time
	RetiredAt time.Time
}

// LeaseDiagnostics describes one active lease.
type LeaseDiagnostics struct {
	ID         int64
	ResourceID int64
}

// PoolDiagnostics is a point-in-time snapshot of a pool.
type PoolDiagnostics struct {
	Resources []ResourceDiagnostics
	Leases    []LeaseDiagnostics
}

// Diagnostics returns a snapshot of every record and active lease.
func (p *Pool[R]) Diagnostics() PoolDiagnostics {
	p.mu.Lock()
	defer p.mu.Unlock()

	d := PoolDiagnostics{}
	for _, rec := range p.records {
		d.Resources = append(d.Resources, ResourceDiagnostics{
			ID:        rec.id,
			CreatedAt: rec.createdAt,
			RetiredAt: rec.retiredAt,
		})
		for _, il := range rec.active {
			d.Leases = append(d.Leases, LeaseDiagnostics{ID: il.id, ResourceID: rec.id})
		}
	}
	return d
}

// PoolStats is a counter snapshot suitable for metrics export.
type PoolStats struct {
	Resources      int
	Retired        int
	Destroying     int
	ActiveLeases   int
	QueuedAcquires int
	Drained        bool
}

// Stats returns a point-in-time counter snapshot.
func (p *Pool[R]) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := PoolStats{
		Resources:      len(p.records),
		Destroying:     len(p.destroying),
		QueuedAcquires: len(p.waiters),
		Drained:        p.drained,
	}
	for _, rec := range p.records {
		if rec.retired() {
			s.Retired++
		}
		s.ActiveLeases += len(rec.active)
	}
	return s
}

// revalidateLocked is the pool's scheduling tick. It retires worn and aged
// records, begins destruction of idle or overdue retired records, refills
// the resource floor, and wakes parked acquires under the current capacity
// budget. Callers must hold p.mu; the step itself never blocks.
func (p *Pool[R]) revalidateLocked() {
	now := p.cfg.clock()

	for _, rec := range p.records {
		if rec.retired() {
			continue
		}
		uses := len(rec.active) + len(rec.past)
		if p.cfg.retireAfterUses > 0 && uses >= p.cfg.retireAfterUses {
			rec.retiredAt = now
			continue
		}
		if p.cfg.retireAfterAge > 0 && now.Sub(rec.createdAt) >= p.cfg.retireAfterAge {
			rec.retiredAt = now
		}
	}

	for _, rec := range append([]*resourceRecord[R](nil), p.records...) {
		if !rec.retired() {
			continue
		}
		overdue := p.cfg.forceDestroyAfter > 0 && now.Sub(rec.retiredAt) >= p.cfg.forceDestroyAfter
		if len(rec.active) == 0 || overdue {
			p.beginDestroyLocked(rec)
		}
	}

	if !p.drained {
		for len(p.records) < p.cfg.minResources {
			p.createRecordLocked()
		}
	}

	capacity := 0
	for _, rec := range p.records {
		if rec.retired() {
			continue
		}
		if spare := p.cfg.maxLeasesPerResource - len(rec.active); spare > 0 {
			capacity += spare
		}
	}
	if p.cfg.maxResources > 0 {
		capacity += (p.cfg.maxResources - len(p.records)) * p.cfg.maxLeasesPerResource
	} else {
		capacity += len(p.waiters) * p.cfg.maxLeasesPerResource
	}

	for capacity > 0 && len(p.waiters) > 0 {
		il := p.allocateLocked()
		if il == nil {
			break
		}
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		w.fut.Resolve(il)
		capacity--
	}
}

// allocateLocked reserves a lease per the allocation strategy, creating a
// record when the strategy calls for it. Returns nil when the pool is at
// capacity. Callers must hold p.mu.
func (p *Pool[R]) allocateLocked() *lease[R] {
	switch p.cfg.allocationMethod {
	case AllocateEager:
		if p.hasRecordSlackLocked() {
			return p.attachLocked(p.createRecordLocked())
		}
		return p.reuseLocked()
	default:
		if il := p.reuseLocked(); il != nil {
			return il
		}
		if p.hasRecordSlackLocked() {
			return p.attachLocked(p.createRecordLocked())
		}
		return nil
	}
}

func (p *Pool[R]) hasRecordSlackLocked() bool {
	return p.cfg.maxResources <= 0 || len(p.records) < p.cfg.maxResources
}

// reuseLocked finds the oldest record with spare lease capacity.
func (p *Pool[R]) reuseLocked() *lease[R] {
	for _, rec := range p.records {
		if rec.retired() {
			continue
		}
		if len(rec.active) < p.cfg.maxLeasesPerResource {
			return p.attachLocked(rec)
		}
	}
	return nil
}

func (p *Pool[R]) attachLocked(rec *resourceRecord[R]) *lease[R] {
	p.nextLeaseID++
	il := &lease[R]{
		id:       p.nextLeaseID,
		leasedAt: p.cfg.clock(),
		rec:      rec,
	}
	rec.active = append(rec.active, il)
	p.leases[il.id] = il
	return il
}

// createRecordLocked registers a new record and starts its asynchronous
// create. The record is leasable immediately; its resource future settles
// later.
func (p *Pool[R]) createRecordLocked() *resourceRecord[R] {
	p.nextResourceID++
	rec := &resourceRecord[R]{
		id:        p.nextResourceID,
		createdAt: p.cfg.clock(),
	}

	src := NewFuture[R]()
	rec.ref = WithTimeout(src, TimeoutOptions[R]{
		Timeout:        p.cfg.createTimeout,
		TimeoutMessage: "resource create timed out",
		OnLateResolve: func(res R) {
			// A resource born after the deadline still must be torn
			// down to preserve pool bounds.
			go p.destroyValue(res)
		},
	})

	p.records = append(p.records, rec)
	go p.runCreate(rec, src)
	return rec
}

func (p *Pool[R]) runCreate(rec *resourceRecord[R], src *Future[R]) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				src.Reject(newPanicError(r))
			}
		}()
		res, err := p.create(context.Background())
		if err != nil {
			src.Reject(err)
		} else {
			src.Resolve(res)
		}
	}()

	if _, err := rec.ref.Wait(context.Background()); err != nil {
		// The record can never serve; start destruction bookkeeping now
		// so parked waiters are not starved by a dead slot.
		p.mu.Lock()
		p.beginDestroyLocked(rec)
		p.revalidateLocked()
		p.mu.Unlock()
	}
}

// beginDestroyLocked removes the record from the pool and starts its
// asynchronous destruction. The record's destroyed future stays awaitable
// by leases released afterwards. Callers must hold p.mu.
func (p *Pool[R]) beginDestroyLocked(rec *resourceRecord[R]) {
	if rec.destroying() {
		return
	}
	rec.destroyed = NewFuture[struct{}]()
	p.records = removeRecord(p.records, rec)
	p.destroying[rec.id] = rec
	go p.runDestroy(rec)
}

func (p *Pool[R]) runDestroy(rec *resourceRecord[R]) {
	res, err := rec.ref.Wait(context.Background())
	if err != nil {
		// The resource never materialized; nothing to tear down.
		rec.destroyed.Resolve(struct{}{})
	} else if derr := p.destroyValue(res); derr != nil {
		rec.destroyed.Reject(derr)
	} else {
		rec.destroyed.Resolve(struct{}{})
	}

	p.mu.Lock()
	delete(p.destroying, rec.id)
	p.revalidateLocked()
	p.mu.Unlock()
}

// destroyValue tears down a bare resource under the destroy deadline.
func (p *Pool[R]) destroyValue(res R) error {
	src := NewFuture[struct{}]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				src.Reject(newPanicError(r))
			}
		}()
		if err := p.destroy(context.Background(), res); err != nil {
			src.Reject(err)
		} else {
			src.Resolve(struct{}{})
		}
	}()

	wrapped := WithTimeout(src, TimeoutOptions[struct{}]{
		Timeout:        p.cfg.destroyTimeout,
		TimeoutMessage: "resource destroy timed out",
	})
	_, err := wrapped.Wait(context.Background())
	return err
}

// dropLeaseLocked moves a lease from active to past. Idempotent.
func (p *Pool[R]) dropLeaseLocked(il *lease[R]) {
	if il.released {
		return
	}
	il.released = true

	rec := il.rec
	for i, cur := range rec.active {
		if cur == il {
			rec.active = append(rec.active[:i], rec.active[i+1:]...)
			break
		}
	}
	rec.past = append(rec.past, il)
	delete(p.leases, il.id)
}

// releaseAbandoned drops a reservation that never reached the caller.
func (p *Pool[R]) releaseAbandoned(il *lease[R]) {
	p.mu.Lock()
	p.dropLeaseLocked(il)
	p.revalidateLocked()
	p.mu.Unlock()
}

// cancelWaiter unparks w after a failed acquire. If a grant already won
// the settle, the grant flows through the late-release path instead.
func (p *Pool[R]) cancelWaiter(w *poolWaiter[R], err error) {
	p.mu.Lock()
	for i, cur := range p.waiters {
		if cur == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	w.fut.Reject(err)
}

func callLeaseHook[R any](fn LeaseHook[R], ctx context.Context, ext *Lease[R]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()
	return fn(ctx, ext)
}

func removeRecord[R any](records []*resourceRecord[R], rec *resourceRecord[R]) []*resourceRecord[R] {
	for i, cur := range records {
		if cur == rec {
			return append(records[:i], records[i+1:]...)
		}
	}
	return records
}
