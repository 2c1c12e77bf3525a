package gojaremote

import (
	"context"
	"sync"

	"github.com/dop251/goja"
)

// RuntimeConn is a [SyncConn] that drives a [goja.Runtime] directly on the
// calling goroutine, one call at a time. It supports both call surfaces.
//
// A promise returned to [RuntimeConn.Invoke] settles only as script code
// runs, i.e. during this or a later call on the same connection. Issuing
// sync calls from several goroutines at once is allowed, but their relative
// order is the caller's responsibility.
type RuntimeConn struct {
	mu     sync.Mutex
	bridge *bridge
}

var _ SyncConn = (*RuntimeConn)(nil)

// NewRuntimeConn creates a [RuntimeConn]. The runtime must not be used by
// anything else while the connection is open.
//
// NewRuntimeConn panics if runtime is nil.
func NewRuntimeConn(runtime *goja.Runtime, opts ...Option) (*RuntimeConn, error) {
	if runtime == nil {
		panic("gojaremote: runtime must not be nil")
	}
	if _, err := resolveOptions(opts); err != nil {
		return nil, err
	}
	return &RuntimeConn{bridge: newBridge(runtime)}, nil
}

// Do runs fn with exclusive access to the runtime, e.g. to evaluate setup
// scripts.
func (c *RuntimeConn) Do(fn func(runtime *goja.Runtime) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bridge.closed {
		return ErrConnClosed
	}
	return fn(c.bridge.runtime)
}

// SupportsSync implements [SyncConn].
func (c *RuntimeConn) SupportsSync() bool {
	return true
}

// Invoke implements [Conn].
func (c *RuntimeConn) Invoke(ctx context.Context, call Call) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := newPending()
	c.mu.Lock()
	c.bridge.invoke(call, true, func(value any, err error) {
		// may run during a later call, with the lock held by that caller
		if !p.deliver(value, err) {
			c.bridge.releaseRefs(value)
		}
	})
	c.mu.Unlock()
	return p.wait(ctx)
}

// InvokeSync implements [SyncConn].
func (c *RuntimeConn) InvokeSync(call Call) (result any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bridge.invoke(call, false, func(value any, e error) {
		result, err = value, e
	})
	return
}

// Release implements [Conn].
func (c *RuntimeConn) Release(ctx context.Context, ids ...RefID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.ReleaseSync(ids...)
}

// ReleaseSync implements [SyncConn].
func (c *RuntimeConn) ReleaseSync(ids ...RefID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bridge.closed {
		return ErrConnClosed
	}
	return c.bridge.release(ids...)
}

// Register implements [Conn].
func (c *RuntimeConn) Register(ctx context.Context, fn func(args []any)) (RefID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bridge.register(fn)
}

// LiveRefs reports the number of allocated reference slots.
func (c *RuntimeConn) LiveRefs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bridge.refs)
}

// Close implements [Conn].
func (c *RuntimeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bridge.close()
	return nil
}
