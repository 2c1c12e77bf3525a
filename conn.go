package gojaremote

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// RefID identifies a value held in the remote runtime's reference table.
// The zero value, [GlobalRef], denotes the global scope and never names a
// releasable slot.
type RefID uint64

// GlobalRef is the target used for calls resolved against the global scope.
const GlobalRef RefID = 0

// Ref is the wire form of a remote reference. It appears in [Call.Args] and
// in values returned by [Conn.Invoke], at any depth of []any and
// map[string]any.
type Ref struct {
	ID RefID
}

// ResultMode selects how the result of a [Call] crosses the boundary.
type ResultMode int

const (
	// ResultValue returns plain objects and arrays by value, every other
	// object as a [Ref].
	ResultValue ResultMode = iota
	// ResultRef returns any object result as a [Ref], allocating a slot.
	ResultRef
	// ResultVoid discards the result remotely.
	ResultVoid
)

func (m ResultMode) String() string {
	switch m {
	case ResultValue:
		return "value"
	case ResultRef:
		return "ref"
	case ResultVoid:
		return "void"
	default:
		return fmt.Sprintf("ResultMode(%d)", int(m))
	}
}

// Call describes one remote call: invoke Member on Target with Args.
// Member is a single property name; path resolution is the helper module's
// concern.
type Call struct {
	Member string
	Args   []any
	Target RefID
	Result ResultMode
}

// Conn is the boundary connection to a remote runtime. Implementations
// serialise calls in the order they are delivered.
//
// A failure raised by script code is returned as an error whose message (see
// [ScriptError.RemoteMessage]) is the thrown value's message. Transport
// failures, such as [ErrConnClosed] or a context error, are returned as-is.
type Conn interface {
	// Invoke performs the call, awaiting a promise result. Cancelling ctx
	// stops waiting; the remote effect may still happen.
	Invoke(ctx context.Context, call Call) (any, error)

	// Release frees the given reference slots.
	Release(ctx context.Context, ids ...RefID) error

	// Register exposes fn to the remote runtime as a callable reference.
	// The returned id must be released like any other slot. fn is called
	// from the connection's own goroutine, and must not block on it.
	Register(ctx context.Context, fn func(args []any)) (RefID, error)

	// Close releases every slot and rejects further calls.
	Close() error
}

// SyncConn is a [Conn] that may also support blocking round-trips.
type SyncConn interface {
	Conn

	// SupportsSync reports whether InvokeSync and ReleaseSync may be used.
	SupportsSync() bool

	// InvokeSync performs the call on the calling goroutine, without
	// awaiting promise results.
	InvokeSync(call Call) (any, error)

	// ReleaseSync is the blocking form of Release.
	ReleaseSync(ids ...RefID) error
}

var (
	// ErrConnClosed is returned by a [Conn] that has been closed.
	ErrConnClosed = errors.New("gojaremote: connection closed")

	// ErrUnknownRef is returned when a call references a slot that does not
	// exist, e.g. one already released.
	ErrUnknownRef = errors.New("gojaremote: unknown reference")
)

// supportsSync reports whether conn may be driven through the sync surface.
func supportsSync(conn Conn) (SyncConn, bool) {
	if s, ok := conn.(SyncConn); ok && s.SupportsSync() {
		return s, true
	}
	return nil, false
}

// ScriptError is the boundary-level failure raised when script code throws
// or a promise rejects. Message is the thrown value's message property, when
// it has one, else its string form.
type ScriptError struct {
	// Value is the exported thrown value, for diagnostics.
	Value   any
	cause   error
	Message string
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return "gojaremote: script error: " + e.Message
}

// RemoteMessage returns the raw message, as used by [UnpackEnvelope].
func (e *ScriptError) RemoteMessage() string {
	return e.Message
}

// Unwrap returns the underlying runtime exception, if any.
func (e *ScriptError) Unwrap() error {
	return e.cause
}

const (
	pendingWaiting int32 = iota
	pendingDelivered
	pendingAbandoned
)

type outcome struct {
	value any
	err   error
}

// pending hands one outcome from the runtime goroutine to a waiting caller.
// Exactly one of deliver or a cancelled wait wins.
type pending struct {
	ch    chan outcome
	state atomic.Int32
}

func newPending() *pending {
	return &pending{ch: make(chan outcome, 1)}
}

// deliver reports false if the caller stopped waiting, in which case the
// value has not been handed over.
func (p *pending) deliver(value any, err error) bool {
	if !p.state.CompareAndSwap(pendingWaiting, pendingDelivered) {
		return false
	}
	p.ch <- outcome{value: value, err: err}
	return true
}

func (p *pending) wait(ctx context.Context) (any, error) {
	select {
	case o := <-p.ch:
		return o.value, o.err
	case <-ctx.Done():
		if p.state.CompareAndSwap(pendingWaiting, pendingAbandoned) {
			return nil, ctx.Err()
		}
		o := <-p.ch
		return o.value, o.err
	}
}
