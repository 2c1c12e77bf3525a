package gojaremote

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/logiface"
)

// LoopConn is an async-only [Conn] to a [goja.Runtime] owned by an
// [eventloop.Loop]. Every runtime access is submitted to the loop, so the
// runtime is only ever touched on the loop goroutine. Promise results settle
// as the loop runs their reactions.
type LoopConn struct {
	loop   *eventloop.Loop
	js     *eventloop.JS
	bridge *bridge
	logger *logiface.Logger[logiface.Event]
	closed atomic.Bool
}

var _ Conn = (*LoopConn)(nil)

// NewLoopConn creates a [LoopConn] for the given loop and runtime.
//
// Unless [WithoutTimers] is given, setTimeout and clearTimeout globals
// backed by the loop are installed when the runtime lacks them. The runtime
// is prepared directly, so NewLoopConn must be called before the loop runs,
// or from the loop goroutine.
//
// NewLoopConn panics if loop or runtime is nil.
func NewLoopConn(loop *eventloop.Loop, runtime *goja.Runtime, opts ...Option) (*LoopConn, error) {
	if loop == nil {
		panic("gojaremote: loop must not be nil")
	}
	if runtime == nil {
		panic("gojaremote: runtime must not be nil")
	}

	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	js, err := eventloop.NewJS(loop)
	if err != nil {
		return nil, err
	}

	c := &LoopConn{
		loop:   loop,
		js:     js,
		bridge: newBridge(runtime),
		logger: cfg.logger,
	}
	if !cfg.noTimers {
		c.installTimers(runtime)
	}
	return c, nil
}

// Loop returns the loop the connection submits to.
func (c *LoopConn) Loop() *eventloop.Loop {
	return c.loop
}

// exec runs fn on the loop, and waits for it to deliver.
func (c *LoopConn) exec(ctx context.Context, fn func(p *pending)) (any, error) {
	if c.closed.Load() {
		return nil, ErrConnClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := newPending()
	if err := c.loop.Submit(func() {
		if c.bridge.closed {
			p.deliver(nil, ErrConnClosed)
			return
		}
		fn(p)
	}); err != nil {
		return nil, err
	}
	return p.wait(ctx)
}

// Invoke implements [Conn].
func (c *LoopConn) Invoke(ctx context.Context, call Call) (any, error) {
	return c.exec(ctx, func(p *pending) {
		c.bridge.invoke(call, true, func(value any, err error) {
			if !p.deliver(value, err) {
				c.bridge.releaseRefs(value)
			}
		})
	})
}

// Release implements [Conn].
func (c *LoopConn) Release(ctx context.Context, ids ...RefID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := c.exec(ctx, func(p *pending) {
		p.deliver(nil, c.bridge.release(ids...))
	})
	return err
}

// Register implements [Conn].
func (c *LoopConn) Register(ctx context.Context, fn func(args []any)) (RefID, error) {
	v, err := c.exec(ctx, func(p *pending) {
		id, err := c.bridge.register(fn)
		if !p.deliver(id, err) && err == nil {
			_ = c.bridge.release(id)
		}
	})
	if err != nil {
		return 0, err
	}
	return v.(RefID), nil
}

// LiveRefs reports the number of allocated reference slots.
func (c *LoopConn) LiveRefs(ctx context.Context) (int, error) {
	v, err := c.exec(ctx, func(p *pending) {
		p.deliver(len(c.bridge.refs), nil)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Close implements [Conn]. Slots are dropped on the loop; if the loop has
// already terminated they are dropped with it.
func (c *LoopConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.loop.Submit(c.bridge.close); err != nil && !errors.Is(err, eventloop.ErrLoopTerminated) {
		return err
	}
	return nil
}

func (c *LoopConn) installTimers(runtime *goja.Runtime) {
	global := runtime.GlobalObject()
	if v := global.Get("setTimeout"); v == nil || goja.IsUndefined(v) {
		_ = global.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(0))
			if !ok {
				panic(runtime.NewTypeError("setTimeout: callback must be a function"))
			}
			var args []goja.Value
			if len(call.Arguments) > 2 {
				args = append(args, call.Arguments[2:]...)
			}
			id, err := c.js.SetTimeout(func() {
				if _, err := fn(goja.Undefined(), args...); err != nil && c.logger != nil {
					c.logger.Err().
						Err(err).
						Log(`uncaught error in timer callback`)
				}
			}, int(call.Argument(1).ToInteger()))
			if err != nil {
				panic(runtime.NewGoError(err))
			}
			return runtime.ToValue(id)
		})
	}
	if v := global.Get("clearTimeout"); v == nil || goja.IsUndefined(v) {
		_ = global.Set("clearTimeout", func(call goja.FunctionCall) goja.Value {
			if id := call.Argument(0).ToInteger(); id > 0 {
				_ = c.js.ClearTimeout(uint64(id))
			}
			return goja.Undefined()
		})
	}
}
