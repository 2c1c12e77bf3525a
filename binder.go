package gojaremote

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/sync/singleflight"
)

const helperFlight = "helper"

// Binder owns the handles of one connection. It acquires the helper module
// on first use, and releases slots on behalf of disposed handles. Exactly
// one Binder should exist per [Conn].
type Binder struct {
	conn        Conn
	logger      *logiface.Logger[logiface.Event]
	releases    *releaseLogger
	helper      atomic.Pointer[Handle]
	group       singleflight.Group
	callTimeout time.Duration
	closed      atomic.Bool
}

// NewBinder creates a [Binder] for conn.
//
// NewBinder panics if conn is nil.
func NewBinder(conn Conn, opts ...Option) (*Binder, error) {
	if conn == nil {
		panic("gojaremote: conn must not be nil")
	}

	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Binder{
		conn:        conn,
		logger:      cfg.logger,
		releases:    newReleaseLogger(cfg.logger),
		callTimeout: cfg.callTimeout,
	}, nil
}

// Conn returns the binder's connection.
func (b *Binder) Conn() Conn {
	return b.conn
}

// Helper returns the helper module handle, acquiring it with one remote
// require call if necessary. Concurrent callers share one acquisition, and
// observe the same handle or the same error. A failed acquisition is not
// remembered: the next call retries.
//
// Cancelling ctx stops this caller waiting, without failing the
// acquisition for anyone else.
func (b *Binder) Helper(ctx context.Context) (*Handle, error) {
	if h := b.helper.Load(); h != nil {
		return h, nil
	}
	if b.closed.Load() {
		return nil, ErrBinderClosed
	}
	ch := b.group.DoChan(helperFlight, func() (any, error) {
		ctx, cancel := withCallTimeout(context.WithoutCancel(ctx), b.callTimeout)
		defer cancel()
		return b.acquire(func(call Call) (any, error) {
			return b.conn.Invoke(ctx, call)
		})
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Handle), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HelperSync is the blocking form of [Binder.Helper]. It panics with an
// error wrapping [ErrSyncUnsupported] unless the connection supports sync
// calls.
func (b *Binder) HelperSync() (*Handle, error) {
	sc := b.syncConn()
	if h := b.helper.Load(); h != nil {
		return h, nil
	}
	if b.closed.Load() {
		return nil, ErrBinderClosed
	}
	v, err, _ := b.group.Do(helperFlight, func() (any, error) {
		return b.acquire(sc.InvokeSync)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

func (b *Binder) acquire(invoke func(Call) (any, error)) (*Handle, error) {
	if h := b.helper.Load(); h != nil {
		return h, nil
	}
	v, err := invoke(Call{
		Target: GlobalRef,
		Member: "require",
		Args:   []any{HelperModuleName},
		Result: ResultRef,
	})
	if err != nil {
		return nil, err
	}
	ref, ok := v.(Ref)
	if !ok {
		return nil, &DecodeError{Value: v, Expect: "helper module reference"}
	}
	h := b.lease(ref.ID, true)
	b.helper.Store(h)
	if b.closed.Load() {
		// Close may have taken h already, in which case it disposes it
		if b.helper.CompareAndSwap(h, nil) {
			_ = h.Dispose(context.Background())
		}
		return nil, ErrBinderClosed
	}
	if b.logger != nil {
		b.logger.Debug().
			Uint64(`ref`, uint64(ref.ID)).
			Log(`acquired helper module`)
	}
	return h, nil
}

// Wrap returns a handle for id, received from elsewhere. Only an owning
// handle releases the slot when disposed.
func (b *Binder) Wrap(id RefID, owns bool) *Handle {
	if id == GlobalRef {
		panic(errors.New("gojaremote: cannot wrap the global scope"))
	}
	return &Handle{binder: b, id: id, owns: owns}
}

// lease returns a handle for a slot the connection allocated for it alone.
func (b *Binder) lease(id RefID, owns bool) *Handle {
	h := b.Wrap(id, owns)
	h.lease = true
	return h
}

// WrapBorrowed returns a non-owning handle for id.
func (b *Binder) WrapBorrowed(id RefID) *Handle {
	return b.Wrap(id, false)
}

// Close disposes the helper module handle. Later helper acquisitions fail
// with [ErrBinderClosed]. The connection is left open.
func (b *Binder) Close(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.helper.Swap(nil).Dispose(ctx)
}

func (b *Binder) release(ctx context.Context, id RefID) error {
	return b.releaseWith(id, func() error { return b.conn.Release(ctx, id) })
}

func (b *Binder) releaseWith(id RefID, release func() error) error {
	err := release()
	if err != nil {
		b.releases.failed(id, err)
	}
	return err
}

// syncConn returns the connection as a [SyncConn], panicking if it does not
// support sync calls.
func (b *Binder) syncConn() SyncConn {
	sc, ok := supportsSync(b.conn)
	if !ok {
		panic(fmt.Errorf("%w: %T", ErrSyncUnsupported, b.conn))
	}
	return sc
}
