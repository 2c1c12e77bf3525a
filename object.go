package gojaremote

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Object is a host-side wrapper of a remote object, and the base of typed
// wrappers. It calls through its own non-owning view of the binder's helper
// handle, obtained on first use.
type Object struct {
	proxy    *Proxy
	handle   *Handle
	helper   *Handle
	mu       sync.Mutex
	disposed atomic.Bool
}

// NewObject wraps handle. The object takes over the handle: disposing the
// object disposes it.
//
// NewObject panics if proxy or handle is nil.
func NewObject(proxy *Proxy, handle *Handle) *Object {
	if proxy == nil {
		panic("gojaremote: proxy must not be nil")
	}
	if handle == nil {
		panic("gojaremote: handle must not be nil")
	}
	return &Object{proxy: proxy, handle: handle}
}

// Handle returns the wrapped handle.
func (o *Object) Handle() *Handle {
	return o.handle
}

// Proxy returns the proxy the object calls through.
func (o *Object) Proxy() *Proxy {
	return o.proxy
}

// helperView returns the object's view of the helper handle.
func (o *Object) helperView(ctx context.Context) (*Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed.Load() {
		panic(fmt.Errorf("%w: object", ErrHandleDisposed))
	}
	if o.helper != nil {
		return o.helper, nil
	}
	h, err := o.proxy.binder.Helper(ctx)
	if err != nil {
		return nil, err
	}
	o.helper = o.proxy.binder.WrapBorrowed(h.ID())
	return o.helper, nil
}

// Invoke calls member on the object, per [Proxy.Invoke].
func (o *Object) Invoke(ctx context.Context, member string, args ...any) (any, error) {
	helper, err := o.helperView(ctx)
	if err != nil {
		return nil, o.proxy.translate(member, err)
	}
	return o.proxy.invoke(ctx, helper, o.handle, member, args, ResultValue)
}

// InvokeVoid calls member on the object, per [Proxy.InvokeVoid].
func (o *Object) InvokeVoid(ctx context.Context, member string, args ...any) error {
	helper, err := o.helperView(ctx)
	if err != nil {
		return o.proxy.translate(member, err)
	}
	_, err = o.proxy.invoke(ctx, helper, o.handle, member, args, ResultVoid)
	return err
}

// Get reads the property at path, per [Proxy.Get].
func (o *Object) Get(ctx context.Context, path string) (any, error) {
	helper, err := o.helperView(ctx)
	if err != nil {
		return nil, o.proxy.translate(path, err)
	}
	return o.proxy.get(ctx, helper, o.handle, path, ResultValue, true)
}

// Set assigns the property at path, per [Proxy.Set].
func (o *Object) Set(ctx context.Context, path string, value any) error {
	helper, err := o.helperView(ctx)
	if err != nil {
		return o.proxy.translate(path, err)
	}
	return o.proxy.set(ctx, helper, o.handle, path, value)
}

// Dispose disposes the helper view, if it was obtained, then the wrapped
// handle, which releases the remote object only if the handle owns it.
// Only the first call has any effect.
func (o *Object) Dispose(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.disposed.CompareAndSwap(false, true) {
		return nil
	}
	if o.helper != nil {
		_ = o.helper.Dispose(ctx)
	}
	return o.handle.Dispose(ctx)
}

// Disposed reports whether the object has been disposed.
func (o *Object) Disposed() bool {
	return o.disposed.Load()
}
