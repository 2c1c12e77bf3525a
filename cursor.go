package gojaremote

import (
	"context"
	"fmt"
	"iter"
)

// CursorState is the lifecycle state of a [Cursor].
type CursorState int

const (
	// CursorFresh is the state before the first Next.
	CursorFresh CursorState = iota
	// CursorActive is the state while elements are being yielded.
	CursorActive
	// CursorExhausted is the state once the remote iterator has completed.
	CursorExhausted
	// CursorDisposed is the state after Close, or after a failed step.
	CursorDisposed
)

func (s CursorState) String() string {
	switch s {
	case CursorFresh:
		return "fresh"
	case CursorActive:
		return "active"
	case CursorExhausted:
		return "exhausted"
	case CursorDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("CursorState(%d)", int(s))
	}
}

// Cursor is a lazy, forward-only enumerator over a remote iterator. Each
// call to Next is one remote call. A consumed cursor cannot be rewound.
//
// By default the handles of an element are disposed when the cursor moves
// past it, so at most one element's handles are live at a time. With
// DisposePrevious(false) every yielded handle belongs to the caller.
//
// The cursor's own iterator handle is released once the iterator completes,
// or on Close. A Cursor is not safe for concurrent use.
type Cursor[T any] struct {
	proxy      *Proxy
	iterator   *Handle
	decode     func(any) (T, error)
	value      T
	err        error
	disposeErr error
	held       []*Handle
	state      CursorState
	retain     bool
}

func newCursor[T any](proxy *Proxy, iterator *Handle, decode func(any) (T, error), opts []CursorOption) *Cursor[T] {
	var cfg cursorConfig
	for _, opt := range opts {
		if opt != nil {
			opt.applyCursorOption(&cfg)
		}
	}
	return &Cursor[T]{
		proxy:    proxy,
		iterator: iterator,
		decode:   decode,
		retain:   cfg.retain,
	}
}

// Next advances the cursor, reporting whether a value is available. It
// returns false once the iterator completes, on failure (see
// [Cursor.Err]), and after Close.
func (c *Cursor[T]) Next(ctx context.Context) bool {
	if c.state == CursorExhausted || c.state == CursorDisposed {
		return false
	}
	c.state = CursorActive

	c.dropHeld(ctx)
	var zero T
	c.value = zero

	result, err := c.proxy.Invoke(ctx, c.iterator, "next")
	if err != nil {
		c.fail(ctx, err)
		return false
	}

	step, ok := result.(map[string]any)
	if !ok {
		c.noteDisposal(disposeAll(ctx, collectHandles(result)))
		c.fail(ctx, &DecodeError{Value: result, Expect: "iterator result"})
		return false
	}

	handles := collectHandles(step["value"])

	if done, _ := step["done"].(bool); done {
		c.noteDisposal(disposeAll(ctx, handles))
		c.noteDisposal(c.iterator.Dispose(ctx))
		c.state = CursorExhausted
		return false
	}

	value, err := c.decode(step["value"])
	if err != nil {
		c.noteDisposal(disposeAll(ctx, handles))
		c.fail(ctx, err)
		return false
	}

	c.value = value
	c.held = handles
	return true
}

// Value returns the current element.
func (c *Cursor[T]) Value() T {
	return c.value
}

// Err returns the failure that stopped the cursor, if any.
func (c *Cursor[T]) Err() error {
	return c.err
}

// State returns the cursor's lifecycle state.
func (c *Cursor[T]) State() CursorState {
	return c.state
}

// Close disposes the current element's handles, unless retained, and the
// iterator. It returns a disposal failure only if the cursor has not
// otherwise failed: [Cursor.Err] takes precedence. Only the first call has
// any effect.
func (c *Cursor[T]) Close(ctx context.Context) error {
	if c.state == CursorDisposed {
		return nil
	}
	c.dropHeld(ctx)
	c.noteDisposal(c.iterator.Dispose(ctx))
	c.state = CursorDisposed
	if c.err != nil {
		return nil
	}
	return c.disposeErr
}

// All returns an iterator over the remaining elements. The cursor is closed
// when iteration stops, whether exhausted or not; check [Cursor.Err]
// afterwards, which also reports a disposal failure from that close.
func (c *Cursor[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		defer func() {
			if err := c.Close(ctx); err != nil && c.err == nil {
				c.err = err
			}
		}()
		for c.Next(ctx) {
			if !yield(c.value) {
				return
			}
		}
	}
}

func (c *Cursor[T]) dropHeld(ctx context.Context) {
	if !c.retain {
		c.noteDisposal(disposeAll(ctx, c.held))
	}
	c.held = nil
}

// fail records the primary error and tears the cursor down. The teardown
// outlives cancellation of ctx, which may be the failure.
func (c *Cursor[T]) fail(ctx context.Context, err error) {
	c.err = err
	ctx, cancel := withCallTimeout(context.WithoutCancel(ctx), c.proxy.callTimeout)
	defer cancel()
	c.noteDisposal(c.iterator.Dispose(ctx))
	c.state = CursorDisposed
}

func (c *Cursor[T]) noteDisposal(err error) {
	if err != nil && c.disposeErr == nil {
		c.disposeErr = err
	}
}
