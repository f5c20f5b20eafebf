package asyncronaut

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalAbort(t *testing.T) {
	ctrl := NewController()
	sig := ctrl.Signal()

	assert.False(t, sig.Aborted())
	assert.NoError(t, sig.Err())
	assert.Nil(t, sig.Reason())

	reason := errors.New("stop now")
	require.True(t, ctrl.Abort(reason), "first abort should win")

	assert.True(t, sig.Aborted())
	assert.ErrorIs(t, sig.Err(), reason)
	assert.ErrorIs(t, sig.Reason(), reason)
}

func TestSignalAbortIsIdempotent(t *testing.T) {
	ctrl := NewController()
	first := errors.New("first")

	require.True(t, ctrl.Abort(first))
	assert.False(t, ctrl.Abort(errors.New("second")), "second abort should be a no-op")
	assert.ErrorIs(t, ctrl.Signal().Reason(), first, "first reason should stick")
}

func TestSignalAbortNilReason(t *testing.T) {
	ctrl := NewController()
	require.True(t, ctrl.Abort(nil))

	var abortErr *AbortError
	assert.True(t, errors.As(ctrl.Signal().Reason(), &abortErr),
		"nil reason should default to an AbortError")
}

func TestSignalListeners(t *testing.T) {
	ctrl := NewController()
	sig := ctrl.Signal()

	var fired atomic.Int32
	var got error
	sig.OnAbort(func(reason error) {
		fired.Add(1)
		got = reason
	})

	removed := 0
	remove := sig.OnAbort(func(error) { removed++ })
	remove()

	reason := errors.New("cancelled")
	ctrl.Abort(reason)

	assert.Equal(t, int32(1), fired.Load(), "listener should fire exactly once")
	assert.ErrorIs(t, got, reason)
	assert.Equal(t, 0, removed, "removed listener should not fire")
}

func TestSignalLateListenerFiresImmediately(t *testing.T) {
	ctrl := NewController()
	reason := errors.New("already done")
	ctrl.Abort(reason)

	var got error
	ctrl.Signal().OnAbort(func(r error) { got = r })

	assert.ErrorIs(t, got, reason, "listener on an aborted signal should fire synchronously")
}

func TestSignalDoneAndContext(t *testing.T) {
	ctrl := NewController()
	sig := ctrl.Signal()

	select {
	case <-sig.Done():
		t.Fatal("done channel closed before abort")
	default:
	}

	reason := errors.New("ctx cause")
	ctrl.Abort(reason)

	select {
	case <-sig.Done():
	default:
		t.Fatal("done channel not closed after abort")
	}

	assert.Error(t, sig.Context().Err())
}
