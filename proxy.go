package gojaremote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joeycumines/logiface"
)

// helper module entry points
const (
	helperInvoke      = "invoke"
	helperInvokeSync  = "invokeSync"
	helperGetProperty = "getProperty"
	helperSetProperty = "setProperty"
	helperGetEntry    = "getEntry"
	helperForEach     = "forEach"
)

// Proxy dispatches calls to remote objects through the helper module of a
// [Binder], and translates remote failures into typed errors.
//
// Every method takes a target handle, where nil means the global scope, and
// a member path, which may be dotted ("a.b.c"). The path is resolved
// remotely: a missing intermediate segment fails with a ReferenceError, a
// non-callable final value with a TypeError (see [NativeError]).
//
// The async methods honour ctx, applying the configured call timeout when
// ctx has no deadline. The Sync methods block, and panic with an error
// wrapping [ErrSyncUnsupported] unless the connection supports them. Both
// report failures identically.
//
// Object results cross by reference and are returned as handles, at any
// depth of []any and map[string]any results. Call results own their objects;
// property reads do not, unless [Owning] is given, since the container is
// assumed to govern the object's lifetime. Either way each handle holds its
// own slot, released when it is disposed.
type Proxy struct {
	binder      *Binder
	registry    *Registry
	logger      *logiface.Logger[logiface.Event]
	callTimeout time.Duration
}

// NewProxy creates a [Proxy] that calls through binder.
//
// NewProxy panics if binder is nil.
func NewProxy(binder *Binder, opts ...Option) (*Proxy, error) {
	if binder == nil {
		panic("gojaremote: binder must not be nil")
	}

	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Proxy{
		binder:      binder,
		registry:    cfg.registry,
		logger:      cfg.logger,
		callTimeout: cfg.callTimeout,
	}, nil
}

// Binder returns the proxy's binder.
func (p *Proxy) Binder() *Binder {
	return p.binder
}

// Registry returns the registry failures are mapped through.
func (p *Proxy) Registry() *Registry {
	return p.registry
}

// Invoke calls member on target, returning its result. A promise result is
// awaited.
func (p *Proxy) Invoke(ctx context.Context, target *Handle, member string, args ...any) (any, error) {
	return p.invoke(ctx, nil, target, member, args, ResultValue)
}

// InvokeVoid calls member on target, discarding the result remotely.
func (p *Proxy) InvokeVoid(ctx context.Context, target *Handle, member string, args ...any) error {
	_, err := p.invoke(ctx, nil, target, member, args, ResultVoid)
	return err
}

// InvokeHandle calls member on target, returning an object result by
// reference, as an owning handle. The handle is nil if the result is null or
// undefined; any other non-object result is a [DecodeError].
func (p *Proxy) InvokeHandle(ctx context.Context, target *Handle, member string, args ...any) (*Handle, error) {
	v, err := p.invoke(ctx, nil, target, member, args, ResultRef)
	if err != nil {
		return nil, err
	}
	return p.asHandle(ctx, v)
}

// Get reads the property at path on target. Object references in the
// result are non-owning handles.
func (p *Proxy) Get(ctx context.Context, target *Handle, path string) (any, error) {
	return p.get(ctx, nil, target, path, ResultValue, false)
}

// GetHandle reads the object at path on target by reference. The handle
// does not own the object unless [Owning] is given, but disposing it still
// releases the slot allocated for it.
func (p *Proxy) GetHandle(ctx context.Context, target *Handle, path string, opts ...GetOption) (*Handle, error) {
	var cfg getConfig
	for _, opt := range opts {
		if opt != nil {
			opt.applyGetOption(&cfg)
		}
	}
	v, err := p.get(ctx, nil, target, path, ResultRef, cfg.owning)
	if err != nil {
		return nil, err
	}
	return p.asHandle(ctx, v)
}

// Set assigns value to the property at path on target.
func (p *Proxy) Set(ctx context.Context, target *Handle, path string, value any) error {
	return p.set(ctx, nil, target, path, value)
}

// InvokeSync is the blocking form of [Proxy.Invoke]. A promise result is
// returned as a handle, not awaited.
func (p *Proxy) InvokeSync(target *Handle, member string, args ...any) (any, error) {
	return p.invokeSync(nil, target, member, args, ResultValue)
}

// InvokeVoidSync is the blocking form of [Proxy.InvokeVoid].
func (p *Proxy) InvokeVoidSync(target *Handle, member string, args ...any) error {
	_, err := p.invokeSync(nil, target, member, args, ResultVoid)
	return err
}

// InvokeHandleSync is the blocking form of [Proxy.InvokeHandle].
func (p *Proxy) InvokeHandleSync(target *Handle, member string, args ...any) (*Handle, error) {
	v, err := p.invokeSync(nil, target, member, args, ResultRef)
	if err != nil {
		return nil, err
	}
	return p.asHandleSync(v)
}

// GetSync is the blocking form of [Proxy.Get].
func (p *Proxy) GetSync(target *Handle, path string) (any, error) {
	checkPath(path)
	wire := []any{targetRef(target), path}
	return p.callSync(nil, helperGetProperty, wire, ResultValue, path, false)
}

// SetSync is the blocking form of [Proxy.Set].
func (p *Proxy) SetSync(target *Handle, path string, value any) error {
	checkPath(path)
	wire := []any{targetRef(target), path, encodeValue(value)}
	_, err := p.callSync(nil, helperSetProperty, wire, ResultVoid, path, true)
	return err
}

func (p *Proxy) invoke(ctx context.Context, helper *Handle, target *Handle, member string, args []any, mode ResultMode) (any, error) {
	checkPath(member)
	wire := []any{targetRef(target), member, encodeArgs(args)}
	return p.call(ctx, helper, helperInvoke, wire, mode, member, true)
}

func (p *Proxy) invokeSync(helper *Handle, target *Handle, member string, args []any, mode ResultMode) (any, error) {
	checkPath(member)
	wire := []any{targetRef(target), member, encodeArgs(args)}
	return p.callSync(helper, helperInvokeSync, wire, mode, member, true)
}

func (p *Proxy) get(ctx context.Context, helper *Handle, target *Handle, path string, mode ResultMode, owning bool) (any, error) {
	checkPath(path)
	wire := []any{targetRef(target), path}
	return p.call(ctx, helper, helperGetProperty, wire, mode, path, owning)
}

func (p *Proxy) set(ctx context.Context, helper *Handle, target *Handle, path string, value any) error {
	checkPath(path)
	wire := []any{targetRef(target), path, encodeValue(value)}
	_, err := p.call(ctx, helper, helperSetProperty, wire, ResultVoid, path, true)
	return err
}

// call performs one async helper call. member is the caller-facing name,
// for logging.
func (p *Proxy) call(ctx context.Context, helper *Handle, fn string, args []any, mode ResultMode, member string, owning bool) (any, error) {
	ctx, cancel := withCallTimeout(ctx, p.callTimeout)
	defer cancel()
	id, err := p.helperID(ctx, helper, p.binder.Helper)
	if err != nil {
		return nil, p.translate(member, err)
	}
	v, err := p.binder.conn.Invoke(ctx, Call{
		Target: id,
		Member: fn,
		Args:   args,
		Result: mode,
	})
	if err != nil {
		return nil, p.translate(member, err)
	}
	return p.wrapResult(v, owning), nil
}

// callSync is the blocking form of call.
func (p *Proxy) callSync(helper *Handle, fn string, args []any, mode ResultMode, member string, owning bool) (any, error) {
	sc := p.binder.syncConn()
	id, err := p.helperID(context.Background(), helper, func(context.Context) (*Handle, error) { return p.binder.HelperSync() })
	if err != nil {
		return nil, p.translate(member, err)
	}
	v, err := sc.InvokeSync(Call{
		Target: id,
		Member: fn,
		Args:   args,
		Result: mode,
	})
	if err != nil {
		return nil, p.translate(member, err)
	}
	return p.wrapResult(v, owning), nil
}

// helperID returns the id of helper, or of the binder's helper if nil. The
// binder's helper may be disposed by a concurrent [Binder.Close], which is
// reported as [ErrBinderClosed].
func (p *Proxy) helperID(ctx context.Context, helper *Handle, acquire func(context.Context) (*Handle, error)) (RefID, error) {
	if helper != nil {
		return helper.ID(), nil
	}
	h, err := acquire(ctx)
	if err != nil {
		return 0, err
	}
	if id, ok := h.liveID(); ok {
		return id, nil
	}
	return 0, ErrBinderClosed
}

// translate maps a boundary failure to a typed error. A failure that
// carries no envelope is returned as-is.
func (p *Proxy) translate(member string, err error) error {
	env, ok := UnpackEnvelope(err)
	if !ok {
		logCallFailed(p.logger, member, ``, err)
		return err
	}
	mapped := p.registry.Map(env, err)
	logCallFailed(p.logger, member, env.Kind, mapped)
	return mapped
}

// wrapResult replaces every [Ref] in v with a handle holding that slot.
func (p *Proxy) wrapResult(v any, owning bool) any {
	switch x := v.(type) {
	case Ref:
		return p.binder.lease(x.ID, owning)
	case []any:
		for i, item := range x {
			x[i] = p.wrapResult(item, owning)
		}
		return x
	case map[string]any:
		for k, item := range x {
			x[k] = p.wrapResult(item, owning)
		}
		return x
	default:
		return v
	}
}

func (p *Proxy) asHandle(ctx context.Context, v any) (*Handle, error) {
	if v == nil {
		return nil, nil
	}
	if h, ok := v.(*Handle); ok {
		return h, nil
	}
	_ = disposeAll(ctx, collectHandles(v))
	return nil, &DecodeError{Value: v, Expect: "object reference"}
}

func (p *Proxy) asHandleSync(v any) (*Handle, error) {
	if v == nil {
		return nil, nil
	}
	if h, ok := v.(*Handle); ok {
		return h, nil
	}
	for _, h := range collectHandles(v) {
		_ = h.DisposeSync()
	}
	return nil, &DecodeError{Value: v, Expect: "object reference"}
}

// checkPath panics if path is empty or has an empty segment.
func checkPath(path string) {
	if path == "" {
		panic(fmt.Errorf("%w: empty", ErrInvalidMemberPath))
	}
	for segment := range strings.SplitSeq(path, ".") {
		if segment == "" {
			panic(fmt.Errorf("%w: %q", ErrInvalidMemberPath, path))
		}
	}
}

func targetRef(target *Handle) any {
	if target == nil {
		return nil
	}
	return target.Ref()
}

func encodeArgs(args []any) []any {
	wire := make([]any, len(args))
	for i, arg := range args {
		wire[i] = encodeValue(arg)
	}
	return wire
}

// encodeValue replaces every handle in v with its [Ref]. A disposed handle
// panics.
func encodeValue(v any) any {
	switch x := v.(type) {
	case *Handle:
		if x == nil {
			return nil
		}
		return x.Ref()
	case *Object:
		return x.Handle().Ref()
	case []any:
		wire := make([]any, len(x))
		for i, item := range x {
			wire[i] = encodeValue(item)
		}
		return wire
	case map[string]any:
		wire := make(map[string]any, len(x))
		for k, item := range x {
			wire[k] = encodeValue(item)
		}
		return wire
	default:
		return v
	}
}

// collectHandles returns every handle in v, in traversal order.
func collectHandles(v any) []*Handle {
	var handles []*Handle
	var walk func(any)
	walk = func(v any) {
		switch x := v.(type) {
		case *Handle:
			handles = append(handles, x)
		case []any:
			for _, item := range x {
				walk(item)
			}
		case map[string]any:
			for _, item := range x {
				walk(item)
			}
		}
	}
	walk(v)
	return handles
}
