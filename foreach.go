package gojaremote

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-eventloop"
)

// Completion tracks the callbacks started by a forEach call. The remote
// iteration never waits for a callback: each runs on its own goroutine, in
// no particular order. Wait observes all of them having returned.
type Completion struct {
	err   error
	done  chan struct{}
	wg    sync.WaitGroup
	mu    sync.Mutex
	calls atomic.Int64
}

// Wait blocks until every callback has returned, or ctx is done. It returns
// the first callback failure: a decode error, or an [eventloop.PanicError]
// for a callback that panicked.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Calls returns the number of callbacks started so far.
func (c *Completion) Calls() int {
	return int(c.calls.Load())
}

func (c *Completion) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// ForEach drives target.forEach remotely, calling fn once per element with
// arity arguments: none, the value, or the value and the key. Arguments
// arrive as by [Proxy.Invoke], with object references as owning handles;
// with [DisposeElements] they are disposed as soon as fn returns.
//
// The callback is registered for the duration of the call only. ForEach
// returns once the remote iteration completes, without waiting for the
// callbacks; use the returned [Completion] for that. A non-nil Completion is
// returned whenever any callback may have started, including on failure.
func (p *Proxy) ForEach(ctx context.Context, target *Handle, arity int, fn func(args []any) error, opts ...ForEachOption) (*Completion, error) {
	if arity < 0 || arity > 2 {
		panic(fmt.Errorf("gojaremote: forEach arity must be 0, 1 or 2, got %d", arity))
	}
	if fn == nil {
		panic("gojaremote: forEach callback must not be nil")
	}
	var cfg forEachConfig
	for _, opt := range opts {
		if opt != nil {
			opt.applyForEachOption(&cfg)
		}
	}
	wire := []any{targetRef(target), nil, arity}

	ctx, cancel := withCallTimeout(ctx, p.callTimeout)
	defer cancel()

	// callbacks outlive the call
	background := context.WithoutCancel(ctx)

	comp := &Completion{done: make(chan struct{})}
	callback := func(args []any) {
		comp.calls.Add(1)
		comp.wg.Add(1)
		go func() {
			defer comp.wg.Done()
			values := p.wrapResult(args, true).([]any)
			defer func() {
				if r := recover(); r != nil {
					comp.fail(eventloop.PanicError{Value: r})
				}
				if cfg.disposeElements {
					_ = disposeAll(background, collectHandles(values))
				}
			}()
			if err := fn(values); err != nil {
				comp.fail(err)
			}
		}()
	}

	id, err := p.binder.conn.Register(ctx, callback)
	if err != nil {
		return nil, err
	}
	defer func() {
		// no callback starts once the registration is gone
		_ = p.binder.release(background, id)
		go func() {
			comp.wg.Wait()
			close(comp.done)
		}()
	}()
	wire[1] = Ref{ID: id}

	_, err = p.call(ctx, nil, helperForEach, wire, ResultVoid, "forEach", true)
	return comp, err
}
