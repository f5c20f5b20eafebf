package asyncronaut

import (
	"context"
	"errors"
	"sync"
)

// ErrConcurrentLease is returned by [SingleLeasePool.Acquire] when the
// pool hands out a resource that already has an outstanding lease through
// this adapter.
var ErrConcurrentLease = errors.New("asyncronaut: resource lease cannot be concurrent")

// SingleLeasePool adapts a [Pool] to a resource-keyed surface: callers
// hold and return resources rather than leases, and a resource can be held
// by at most one caller at a time. Create one with [WrapToSingleLease].
type SingleLeasePool[R comparable] struct {
	pool *Pool[R]

	mu    sync.Mutex
	byRes map[R]*Lease[R]
}

// WrapToSingleLease wraps pool in a [SingleLeasePool]. Panics if pool is
// nil.
func WrapToSingleLease[R comparable](pool *Pool[R]) *SingleLeasePool[R] {
	if pool == nil {
		panic("asyncronaut: WrapToSingleLease requires non-nil pool")
	}
	return &SingleLeasePool[R]{
		pool:  pool,
		byRes: make(map[R]*Lease[R]),
	}
}

// Acquire leases a resource and returns it. Acquiring a resource that is
// already held through this adapter fails with [ErrConcurrentLease] and
// returns the duplicate lease to the pool.
func (s *SingleLeasePool[R]) Acquire(ctx context.Context, opts ...AcquireOption) (R, error) {
	var zero R

	lease, err := s.pool.Acquire(ctx, opts...)
	if err != nil {
		return zero, err
	}

	s.mu.Lock()
	if _, held := s.byRes[lease.Resource]; held {
		s.mu.Unlock()
		_ = s.pool.Release(ctx, lease)
		return zero, ErrConcurrentLease
	}
	s.byRes[lease.Resource] = lease
	s.mu.Unlock()

	return lease.Resource, nil
}

// Release returns a held resource to the pool.
func (s *SingleLeasePool[R]) Release(ctx context.Context, resource R, opts ...ReleaseOption) error {
	lease, err := s.take(resource)
	if err != nil {
		return err
	}
	return s.pool.Release(ctx, lease, opts...)
}

// Retire retires a held resource's record and returns the resource to the
// pool.
func (s *SingleLeasePool[R]) Retire(ctx context.Context, resource R, opts ...ReleaseOption) error {
	lease, err := s.take(resource)
	if err != nil {
		return err
	}
	return s.pool.Retire(ctx, lease, opts...)
}

// Drain drains the underlying pool.
func (s *SingleLeasePool[R]) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.byRes = make(map[R]*Lease[R])
	s.mu.Unlock()
	return s.pool.Drain(ctx)
}

// Diagnostics returns the underlying pool's diagnostics.
func (s *SingleLeasePool[R]) Diagnostics() PoolDiagnostics {
	return s.pool.Diagnostics()
}

func (s *SingleLeasePool[R]) take(resource R) (*Lease[R], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lease, held := s.byRes[resource]
	if !held {
		return nil, ErrUnknownLease
	}
	delete(s.byRes, resource)
	return lease, nil
}
