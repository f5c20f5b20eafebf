package asyncronaut

import (
	"context"
	"time"
)

// AllocationMethod selects how [Pool.Acquire] chooses between reusing an
// existing resource and creating a new one.
type AllocationMethod int

const (
	// AllocateLazy reuses an existing resource with spare lease capacity
	// before creating a new one.
	AllocateLazy AllocationMethod = iota

	// AllocateEager creates new resources until the pool is at
	// maxResources, then reuses.
	AllocateEager
)

// CreateFunc constructs a resource.
type CreateFunc[R any] func(ctx context.Context) (R, error)

// DestroyFunc tears down a resource.
type DestroyFunc[R any] func(ctx context.Context, resource R) error

// LeaseHook runs around lease hand-off; see [WithOnAcquire] and
// [WithOnRelease].
type LeaseHook[R any] func(ctx context.Context, lease *Lease[R]) error

type poolConfig[R any] struct {
	onAcquire            LeaseHook[R]
	onRelease            LeaseHook[R]
	allocationMethod     AllocationMethod
	maxLeasesPerResource int
	minResources         int
	maxResources         int
	maxQueuedAcquires    int
	retireAfterUses      int
	retireAfterAge       time.Duration
	forceDestroyAfter    time.Duration
	createTimeout        time.Duration
	destroyTimeout       time.Duration
	acquireTimeout       time.Duration
	releaseTimeout       time.Duration
	silenceReleaseErrors bool
	clock                Clock
}

// PoolOption configures a [Pool].
type PoolOption[R any] func(*poolConfig[R])

func defaultPoolConfig[R any]() poolConfig[R] {
	return poolConfig[R]{
		allocationMethod:     AllocateLazy,
		maxLeasesPerResource: 1,
		clock:                time.Now,
	}
}

// WithOnAcquire registers a hook run after the resource resolves and
// before the lease is handed to the caller; a hook error aborts the
// acquire and returns the reservation.
func WithOnAcquire[R any](fn LeaseHook[R]) PoolOption[R] {
	if fn == nil {
		panic("asyncronaut: WithOnAcquire requires non-nil hook")
	}
	return func(c *poolConfig[R]) {
		c.onAcquire = fn
	}
}

// WithOnRelease registers a hook run during release. A hook error is
// surfaced to the caller but the lease is released regardless.
func WithOnRelease[R any](fn LeaseHook[R]) PoolOption[R] {
	if fn == nil {
		panic("asyncronaut: WithOnRelease requires non-nil hook")
	}
	return func(c *poolConfig[R]) {
		c.onRelease = fn
	}
}

// WithAllocationMethod selects the allocation strategy. Default is
// [AllocateLazy].
func WithAllocationMethod[R any](m AllocationMethod) PoolOption[R] {
	switch m {
	case AllocateLazy, AllocateEager:
	default:
		panic("asyncronaut: invalid allocation method")
	}
	return func(c *poolConfig[R]) {
		c.allocationMethod = m
	}
}

// WithMaxLeasesPerResource sets how many concurrent leases one resource
// serves. Default is 1. Panics if n <= 0.
func WithMaxLeasesPerResource[R any](n int) PoolOption[R] {
	if n <= 0 {
		panic("asyncronaut: WithMaxLeasesPerResource requires n > 0")
	}
	return func(c *poolConfig[R]) {
		c.maxLeasesPerResource = n
	}
}

// WithMinResources sets a floor of resources the pool eagerly maintains
// while not drained. Default is 0. Panics if n is negative.
func WithMinResources[R any](n int) PoolOption[R] {
	if n < 0 {
		panic("asyncronaut: WithMinResources requires n >= 0")
	}
	return func(c *poolConfig[R]) {
		c.minResources = n
	}
}

// WithMaxResources bounds the number of resource records, retired records
// included, records being destroyed excluded. Zero (the default) means
// unbounded. Panics if n is negative.
func WithMaxResources[R any](n int) PoolOption[R] {
	if n < 0 {
		panic("asyncronaut: WithMaxResources requires n >= 0")
	}
	return func(c *poolConfig[R]) {
		c.maxResources = n
	}
}

// WithMaxQueuedAcquires bounds how many acquire requests may wait for
// capacity; further acquires reject immediately. Zero (the default) means
// unbounded. Panics if n is negative.
func WithMaxQueuedAcquires[R any](n int) PoolOption[R] {
	if n < 0 {
		panic("asyncronaut: WithMaxQueuedAcquires requires n >= 0")
	}
	return func(c *poolConfig[R]) {
		c.maxQueuedAcquires = n
	}
}

// WithRetireAfterUses retires a resource once it has served n leases in
// total. Zero (the default) means never. Panics if n is negative.
func WithRetireAfterUses[R any](n int) PoolOption[R] {
	if n < 0 {
		panic("asyncronaut: WithRetireAfterUses requires n >= 0")
	}
	return func(c *poolConfig[R]) {
		c.retireAfterUses = n
	}
}

// WithRetireAfterAge retires a resource once its age reaches d.
// Zero (the default) means never.
func WithRetireAfterAge[R any](d time.Duration) PoolOption[R] {
	if d < 0 {
		panic("asyncronaut: WithRetireAfterAge requires d >= 0")
	}
	return func(c *poolConfig[R]) {
		c.retireAfterAge = d
	}
}

// WithForceDestroyRetiredAfter destroys a retired resource that still has
// active leases once it has been retired for d. Zero (the default) means
// wait for the last release.
func WithForceDestroyRetiredAfter[R any](d time.Duration) PoolOption[R] {
	if d < 0 {
		panic("asyncronaut: WithForceDestroyRetiredAfter requires d >= 0")
	}
	return func(c *poolConfig[R]) {
		c.forceDestroyAfter = d
	}
}

// WithCreateTimeout bounds each create call. A resource that materializes
// after the deadline is destroyed to preserve pool bounds. Zero (the
// default) means no deadline.
func WithCreateTimeout[R any](d time.Duration) PoolOption[R] {
	if d < 0 {
		panic("asyncronaut: WithCreateTimeout requires d >= 0")
	}
	return func(c *poolConfig[R]) {
		c.createTimeout = d
	}
}

// WithDestroyTimeout bounds each destroy call. Zero (the default) means no
// deadline.
func WithDestroyTimeout[R any](d time.Duration) PoolOption[R] {
	if d < 0 {
		panic("asyncronaut: WithDestroyTimeout requires d >= 0")
	}
	return func(c *poolConfig[R]) {
		c.destroyTimeout = d
	}
}

// WithAcquireTimeout sets the default deadline for [Pool.Acquire]; the
// per-call [AcquireTimeout] option overrides it. Zero (the default) means
// no deadline.
func WithAcquireTimeout[R any](d time.Duration) PoolOption[R] {
	if d < 0 {
		panic("asyncronaut: WithAcquireTimeout requires d >= 0")
	}
	return func(c *poolConfig[R]) {
		c.acquireTimeout = d
	}
}

// WithReleaseTimeout sets the default deadline for [Pool.Release]; the
// per-call [ReleaseTimeout] option overrides it. The lease is released
// even when the deadline fires. Zero (the default) means no deadline.
func WithReleaseTimeout[R any](d time.Duration) PoolOption[R] {
	if d < 0 {
		panic("asyncronaut: WithReleaseTimeout requires d >= 0")
	}
	return func(c *poolConfig[R]) {
		c.releaseTimeout = d
	}
}

// WithSilenceReleaseErrors swallows release-path errors; the lease is
// released either way.
func WithSilenceReleaseErrors[R any]() PoolOption[R] {
	return func(c *poolConfig[R]) {
		c.silenceReleaseErrors = true
	}
}

// WithPoolClock injects the clock used for creation, lease, and
// retirement timestamps.
func WithPoolClock[R any](clock Clock) PoolOption[R] {
	if clock == nil {
		panic("asyncronaut: WithPoolClock requires non-nil clock")
	}
	return func(c *poolConfig[R]) {
		c.clock = clock
	}
}

type acquireOptions struct {
	timeout    time.Duration
	hasTimeout bool
}

// AcquireOption configures a single [Pool.Acquire] call.
type AcquireOption func(*acquireOptions)

// AcquireTimeout overrides the pool's default acquire deadline for one
// call.
func AcquireTimeout(d time.Duration) AcquireOption {
	return func(o *acquireOptions) {
		o.timeout = d
		o.hasTimeout = true
	}
}

type releaseOptions struct {
	timeout    time.Duration
	hasTimeout bool
}

// ReleaseOption configures a single [Pool.Release] or [Pool.Retire] call.
type ReleaseOption func(*releaseOptions)

// ReleaseTimeout overrides the pool's default release deadline for one
// call.
func ReleaseTimeout(d time.Duration) ReleaseOption {
	return func(o *releaseOptions) {
		o.timeout = d
		o.hasTimeout = true
	}
}
