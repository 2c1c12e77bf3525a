package gojaremote

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Handle references one value in the remote runtime, through a reference
// slot held by the connection.
//
// Handles made from a call result hold a slot allocated for them alone, and
// release it when disposed whether or not they own the remote object. A
// handle wrapped around an id received from elsewhere shares its slot, and
// releases it only if it owns it; a borrowed one only stops being usable.
//
// Any use of a disposed handle panics with an error wrapping
// [ErrHandleDisposed]. Handles must not be used concurrently with their own
// disposal.
type Handle struct {
	binder   *Binder
	id       RefID
	owns     bool
	lease    bool
	disposed atomic.Bool
}

// ID returns the handle's identity.
func (h *Handle) ID() RefID {
	h.check()
	return h.id
}

// Ref returns the wire form of the handle.
func (h *Handle) Ref() Ref {
	return Ref{ID: h.ID()}
}

// Owns reports whether the handle owns the remote object.
func (h *Handle) Owns() bool {
	return h.owns
}

// Disposed reports whether the handle has been disposed.
func (h *Handle) Disposed() bool {
	return h.disposed.Load()
}

// Binder returns the binder the handle belongs to.
func (h *Handle) Binder() *Binder {
	return h.binder
}

// Dispose releases the remote slot, if the handle holds it alone or owns
// it. Only the first call has any effect, and disposing a nil handle does
// nothing. A release failure is returned, and logged, but the handle is
// disposed regardless.
func (h *Handle) Dispose(ctx context.Context) error {
	if !h.markDisposed() {
		return nil
	}
	return h.binder.release(ctx, h.id)
}

// DisposeSync is the blocking form of [Handle.Dispose]. It panics with an
// error wrapping [ErrSyncUnsupported] if a release is due and the binder's
// connection does not support sync calls.
func (h *Handle) DisposeSync() error {
	if h == nil || h.disposed.Load() {
		return nil
	}
	if !h.releases() {
		h.disposed.Store(true)
		return nil
	}
	sc := h.binder.syncConn()
	if !h.disposed.CompareAndSwap(false, true) {
		return nil
	}
	return h.binder.releaseWith(h.id, func() error { return sc.ReleaseSync(h.id) })
}

// markDisposed disposes h, reporting whether its slot must be released.
func (h *Handle) markDisposed() bool {
	if h == nil || !h.disposed.CompareAndSwap(false, true) {
		return false
	}
	return h.releases()
}

// releases reports whether disposing h releases its slot.
func (h *Handle) releases() bool {
	return h.lease || h.owns
}

func (h *Handle) String() string {
	state := "borrowed"
	if h.owns {
		state = "owned"
	}
	if h.disposed.Load() {
		state += ", disposed"
	}
	return fmt.Sprintf("Handle(%d, %s)", h.id, state)
}

// liveID is ID without the panic.
func (h *Handle) liveID() (RefID, bool) {
	if h.disposed.Load() {
		return 0, false
	}
	return h.id, true
}

func (h *Handle) check() {
	if h.disposed.Load() {
		panic(fmt.Errorf("%w: ref %d", ErrHandleDisposed, h.id))
	}
}

// disposeAll disposes every handle, returning the first error.
func disposeAll(ctx context.Context, handles []*Handle) error {
	var first error
	for _, h := range handles {
		if err := h.Dispose(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
