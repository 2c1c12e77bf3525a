package gojaremote

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dop251/goja"
)

// bridge converts between wire values and goja values, and owns the
// reference table of one runtime. It is not safe for concurrent use: every
// method must be called on the goroutine currently driving the runtime.
type bridge struct {
	runtime     *goja.Runtime
	objectProto *goja.Object
	refs        map[RefID]goja.Value
	nextID      RefID
	closed      bool
}

func newBridge(runtime *goja.Runtime) *bridge {
	b := &bridge{
		runtime: runtime,
		refs:    make(map[RefID]goja.Value),
	}
	if ctor, ok := runtime.Get("Object").(*goja.Object); ok {
		if proto, ok := ctor.Get("prototype").(*goja.Object); ok {
			b.objectProto = proto
		}
	}
	return b
}

// store allocates a new slot for v.
func (b *bridge) store(v goja.Value) Ref {
	b.nextID++
	b.refs[b.nextID] = v
	return Ref{ID: b.nextID}
}

func (b *bridge) lookup(id RefID) (goja.Value, error) {
	if id == GlobalRef {
		return b.runtime.GlobalObject(), nil
	}
	if v, ok := b.refs[id]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownRef, id)
}

func (b *bridge) release(ids ...RefID) error {
	var errs []error
	for _, id := range ids {
		if id == GlobalRef {
			continue
		}
		if _, ok := b.refs[id]; !ok {
			errs = append(errs, fmt.Errorf("%w: %d", ErrUnknownRef, id))
			continue
		}
		delete(b.refs, id)
	}
	return errors.Join(errs...)
}

func (b *bridge) close() {
	b.closed = true
	clear(b.refs)
}

// importValue converts a wire value to a goja value.
func (b *bridge) importValue(v any) (goja.Value, error) {
	switch x := v.(type) {
	case nil:
		return goja.Null(), nil
	case goja.Value:
		return x, nil
	case Ref:
		return b.lookup(x.ID)
	case []any:
		items := make([]any, len(x))
		for i, item := range x {
			value, err := b.importValue(item)
			if err != nil {
				return nil, err
			}
			items[i] = value
		}
		return b.runtime.NewArray(items...), nil
	case map[string]any:
		obj := b.runtime.NewObject()
		for k, item := range x {
			value, err := b.importValue(item)
			if err != nil {
				return nil, err
			}
			if err := obj.Set(k, value); err != nil {
				return nil, err
			}
		}
		return obj, nil
	default:
		return b.runtime.ToValue(v), nil
	}
}

// exportValue converts a goja value to a wire value, allocating slots for
// objects that cross by reference.
func (b *bridge) exportValue(v goja.Value, mode ResultMode) any {
	if mode == ResultVoid || v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export()
	}
	if mode == ResultRef {
		return b.store(obj)
	}
	return b.exportObject(obj, make(map[*goja.Object]struct{}))
}

func (b *bridge) exportObject(obj *goja.Object, visiting map[*goja.Object]struct{}) any {
	if _, ok := visiting[obj]; ok {
		// cycles cross by reference
		return b.store(obj)
	}
	switch {
	case obj.ClassName() == "Array":
		visiting[obj] = struct{}{}
		defer delete(visiting, obj)
		n := obj.Get("length").ToInteger()
		items := make([]any, 0, n)
		for i := int64(0); i < n; i++ {
			items = append(items, b.exportNested(obj.Get(strconv.FormatInt(i, 10)), visiting))
		}
		return items
	case b.isPlain(obj):
		visiting[obj] = struct{}{}
		defer delete(visiting, obj)
		keys := obj.Keys()
		m := make(map[string]any, len(keys))
		for _, k := range keys {
			m[k] = b.exportNested(obj.Get(k), visiting)
		}
		return m
	default:
		return b.store(obj)
	}
}

func (b *bridge) exportNested(v goja.Value, visiting map[*goja.Object]struct{}) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if obj, ok := v.(*goja.Object); ok {
		return b.exportObject(obj, visiting)
	}
	return v.Export()
}

func (b *bridge) isPlain(obj *goja.Object) bool {
	if obj.ClassName() != "Object" {
		return false
	}
	proto := obj.Prototype()
	return proto == nil || (b.objectProto != nil && proto.SameAs(b.objectProto))
}

// call resolves the member on the target and calls it.
func (b *bridge) call(c Call) (goja.Value, error) {
	if b.closed {
		return nil, ErrConnClosed
	}
	target, err := b.lookup(c.Target)
	if err != nil {
		return nil, err
	}
	this, ok := target.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("gojaremote: reference %d is not an object", c.Target)
	}
	fn, ok := goja.AssertFunction(this.Get(c.Member))
	if !ok {
		return nil, &ScriptError{Message: c.Member + " is not a function"}
	}
	args := make([]goja.Value, len(c.Args))
	for i, arg := range c.Args {
		if args[i], err = b.importValue(arg); err != nil {
			return nil, err
		}
	}
	result, err := fn(this, args...)
	if err != nil {
		return nil, b.scriptError(err)
	}
	return result, nil
}

// invoke performs the call and reports the outcome to done, which may be
// called later, when an awaited promise settles.
func (b *bridge) invoke(c Call, await bool, done func(any, error)) {
	result, err := b.call(c)
	if err != nil {
		done(nil, err)
		return
	}
	if await {
		if p, ok := promiseOf(result); ok {
			b.settle(p, func(value goja.Value, err error) {
				if err != nil {
					done(nil, err)
					return
				}
				done(b.exportValue(value, c.Result), nil)
			})
			return
		}
	}
	done(b.exportValue(result, c.Result), nil)
}

func promiseOf(v goja.Value) (*goja.Object, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	if _, ok := obj.Export().(*goja.Promise); !ok {
		return nil, false
	}
	return obj, true
}

func (b *bridge) settle(obj *goja.Object, done func(goja.Value, error)) {
	p := obj.Export().(*goja.Promise)
	switch p.State() {
	case goja.PromiseStateFulfilled:
		done(p.Result(), nil)
		return
	case goja.PromiseStateRejected:
		// attach a handler so the rejection is not reported as unhandled
		b.then(obj, func(goja.Value) {}, func(goja.Value) {})
		done(nil, b.rejection(p.Result()))
		return
	}
	b.then(obj,
		func(value goja.Value) { done(value, nil) },
		func(reason goja.Value) { done(nil, b.rejection(reason)) },
	)
}

func (b *bridge) then(obj *goja.Object, onFulfilled, onRejected func(goja.Value)) {
	then, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		onRejected(b.runtime.NewTypeError("promise has no then method"))
		return
	}
	_, err := then(obj,
		b.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
			onFulfilled(call.Argument(0))
			return goja.Undefined()
		}),
		b.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
			onRejected(call.Argument(0))
			return goja.Undefined()
		}),
	)
	if err != nil {
		onRejected(b.runtime.NewGoError(err))
	}
}

func (b *bridge) rejection(reason goja.Value) error {
	return &ScriptError{
		Message: messageOf(reason),
		Value:   exportQuiet(reason),
	}
}

func (b *bridge) scriptError(err error) error {
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return err
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return err
	}
	return &ScriptError{
		Message: messageOf(ex.Value()),
		Value:   exportQuiet(ex.Value()),
		cause:   err,
	}
}

// register exposes fn as a callable slot. Arguments are exported by value,
// with non-plain objects allocated as new slots.
func (b *bridge) register(fn func(args []any)) (RefID, error) {
	if b.closed {
		return 0, ErrConnClosed
	}
	f := b.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = b.exportValue(arg, ResultValue)
		}
		fn(args)
		return goja.Undefined()
	})
	return b.store(f).ID, nil
}

// releaseRefs releases every slot referenced by v, used when nobody is left
// to receive a result.
func (b *bridge) releaseRefs(v any) {
	var ids []RefID
	walkRefs(v, func(ref Ref) { ids = append(ids, ref.ID) })
	_ = b.release(ids...)
}

func walkRefs(v any, fn func(Ref)) {
	switch x := v.(type) {
	case Ref:
		fn(x)
	case []any:
		for _, item := range x {
			walkRefs(item, fn)
		}
	case map[string]any:
		for _, item := range x {
			walkRefs(item, fn)
		}
	}
}

func messageOf(v goja.Value) string {
	if v == nil {
		return ""
	}
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) && !goja.IsNull(m) {
			return m.String()
		}
	}
	return v.String()
}

func exportQuiet(v goja.Value) (result any) {
	if v == nil {
		return nil
	}
	defer func() {
		if recover() != nil {
			result = nil
		}
	}()
	return v.Export()
}
