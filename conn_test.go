package gojaremote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeConn_Invoke(t *testing.T) {
	runtime := goja.New()
	conn, err := NewRuntimeConn(runtime)
	require.NoError(t, err)
	defer conn.Close()
	ctx := testContext(t)

	v, err := conn.Invoke(ctx, Call{Target: GlobalRef, Member: "parseInt", Args: []any{"42"}})
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = conn.Invoke(ctx, Call{Target: GlobalRef, Member: "missing"})
	var se *ScriptError
	require.True(t, errors.As(err, &se), "%v", err)
	assert.Equal(t, "missing is not a function", se.RemoteMessage())

	_, err = conn.Invoke(ctx, Call{Target: 77, Member: "x"})
	assert.True(t, errors.Is(err, ErrUnknownRef), "%v", err)
}

func TestRuntimeConn_scriptError(t *testing.T) {
	runtime := goja.New()
	conn, err := NewRuntimeConn(runtime)
	require.NoError(t, err)
	require.NoError(t, conn.Do(func(runtime *goja.Runtime) error {
		_, err := runtime.RunString(`
function fail() { throw new TypeError('bad input'); }
function failString() { throw 'just text'; }
`)
		return err
	}))

	v, err := conn.InvokeSync(Call{Target: GlobalRef, Member: "fail"})
	assert.Nil(t, v)
	var se *ScriptError
	require.True(t, errors.As(err, &se), "%v", err)
	assert.Equal(t, "bad input", se.RemoteMessage())
	assert.Equal(t, "gojaremote: script error: bad input", se.Error())
	var ex *goja.Exception
	assert.True(t, errors.As(err, &ex))

	_, err = conn.InvokeSync(Call{Target: GlobalRef, Member: "failString"})
	require.True(t, errors.As(err, &se), "%v", err)
	assert.Equal(t, "just text", se.RemoteMessage())
	assert.Equal(t, "just text", se.Value)
}

func TestRuntimeConn_exportShapes(t *testing.T) {
	runtime := goja.New()
	conn, err := NewRuntimeConn(runtime)
	require.NoError(t, err)
	require.NoError(t, conn.Do(func(runtime *goja.Runtime) error {
		_, err := runtime.RunString(`
function plain() { return {a: [1, {b: 'c'}], n: null, u: undefined}; }
function cyclic() { const o = {name: 'self'}; o.self = o; return o; }
function map() { return new Map(); }
`)
		return err
	}))

	v, err := conn.InvokeSync(Call{Target: GlobalRef, Member: "plain"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": []any{int64(1), map[string]any{"b": "c"}},
		"n": nil,
		"u": nil,
	}, v)
	assert.Zero(t, conn.LiveRefs())

	v, err = conn.InvokeSync(Call{Target: GlobalRef, Member: "plain", Result: ResultRef})
	require.NoError(t, err)
	assert.IsType(t, Ref{}, v)

	v, err = conn.InvokeSync(Call{Target: GlobalRef, Member: "map", Result: ResultVoid})
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 1, conn.LiveRefs())

	v, err = conn.InvokeSync(Call{Target: GlobalRef, Member: "map"})
	require.NoError(t, err)
	ref, ok := v.(Ref)
	require.True(t, ok, "%T", v)
	assert.Equal(t, 2, conn.LiveRefs())
	require.NoError(t, conn.ReleaseSync(ref.ID))

	v, err = conn.InvokeSync(Call{Target: GlobalRef, Member: "cyclic"})
	require.NoError(t, err)
	m, ok := v.(map[string]any)
	require.True(t, ok, "%T", v)
	assert.Equal(t, "self", m["name"])
	assert.IsType(t, Ref{}, m["self"])
}

func TestRuntimeConn_Release(t *testing.T) {
	runtime := goja.New()
	conn, err := NewRuntimeConn(runtime)
	require.NoError(t, err)
	ctx := testContext(t)
	require.NoError(t, conn.Do(func(runtime *goja.Runtime) error {
		_, err := runtime.RunString(`globalThis.objectCtor = () => Object;`)
		return err
	}))

	v, err := conn.Invoke(ctx, Call{Target: GlobalRef, Member: "objectCtor", Result: ResultRef})
	require.NoError(t, err)
	ref := v.(Ref)

	got, err := conn.Invoke(ctx, Call{Target: ref.ID, Member: "keys", Args: []any{map[string]any{"k": 1}}})
	require.NoError(t, err)
	assert.Equal(t, []any{"k"}, got)

	require.NoError(t, conn.Release(ctx, ref.ID, GlobalRef))
	assert.True(t, errors.Is(conn.Release(ctx, ref.ID), ErrUnknownRef))
	assert.Zero(t, conn.LiveRefs())

	require.NoError(t, conn.Close())
	assert.True(t, conn.ReleaseSync(1) == ErrConnClosed)
	_, err = conn.Register(ctx, func([]any) {})
	assert.True(t, err == ErrConnClosed)
	assert.True(t, conn.Do(func(*goja.Runtime) error { return nil }) == ErrConnClosed)
}

func TestRuntimeConn_Register(t *testing.T) {
	runtime := goja.New()
	conn, err := NewRuntimeConn(runtime)
	require.NoError(t, err)
	ctx := testContext(t)

	var got []any
	id, err := conn.Register(ctx, func(args []any) { got = args })
	require.NoError(t, err)
	require.NoError(t, conn.Do(func(runtime *goja.Runtime) error {
		_, err := runtime.RunString(`globalThis.call = (fn) => fn('a', {b: 1}, new Set());`)
		return err
	}))

	_, err = conn.Invoke(ctx, Call{Target: GlobalRef, Member: "call", Args: []any{Ref{ID: id}}})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0])
	assert.Equal(t, map[string]any{"b": int64(1)}, got[1])
	assert.IsType(t, Ref{}, got[2])
}

func TestRuntimeConn_abandonedResult(t *testing.T) {
	runtime := goja.New()
	conn, err := NewRuntimeConn(runtime)
	require.NoError(t, err)
	require.NoError(t, conn.Do(func(runtime *goja.Runtime) error {
		_, err := runtime.RunString(`
let settle;
function pending() { return new Promise((resolve) => { settle = resolve; }); }
function finish() { settle(new Map()); }
`)
		return err
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = conn.Invoke(ctx, Call{Target: GlobalRef, Member: "pending"})
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "%v", err)

	// the late result has nobody to receive it
	_, err = conn.InvokeSync(Call{Target: GlobalRef, Member: "finish"})
	require.NoError(t, err)
	assert.Zero(t, conn.LiveRefs())
}

func TestLoopConn(t *testing.T) {
	env := newLoopEnv(t)
	env.run(t, `
function later(v) { return new Promise((resolve) => setTimeout(resolve, 5, v)); }
function cancelled() {
	const id = setTimeout(() => { globalThis.fired = true; }, 5);
	clearTimeout(id);
	return new Promise((resolve) => setTimeout(() => resolve(globalThis.fired === true), 20));
}
`)
	ctx := testContext(t)

	v, err := env.conn.Invoke(ctx, Call{Target: GlobalRef, Member: "later", Args: []any{"v"}})
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	v, err = env.conn.Invoke(ctx, Call{Target: GlobalRef, Member: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = env.conn.Invoke(ctx, Call{Target: GlobalRef, Member: "Object", Result: ResultRef})
	require.NoError(t, err)
	ref := v.(Ref)
	n, err := env.conn.LiveRefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, env.conn.Release(ctx, ref.ID))
	assert.True(t, errors.Is(env.conn.Release(ctx, ref.ID), ErrUnknownRef))
	require.NoError(t, env.conn.Release(ctx))

	assert.Same(t, env.loop, env.conn.Loop())

	require.NoError(t, env.conn.Close())
	require.NoError(t, env.conn.Close())
	_, err = env.conn.Invoke(ctx, Call{Target: GlobalRef, Member: "later"})
	assert.True(t, err == ErrConnClosed, "%v", err)
}

func TestLoopConn_withoutTimers(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	runtime := goja.New()
	_, err = NewLoopConn(loop, runtime, WithoutTimers())
	require.NoError(t, err)
	assert.True(t, goja.IsUndefined(runtime.Get("setTimeout")) || runtime.Get("setTimeout") == nil)

	assert.Panics(t, func() { _, _ = NewLoopConn(nil, runtime) })
	assert.Panics(t, func() { _, _ = NewLoopConn(loop, nil) })
	_, err = NewLoopConn(loop, runtime, WithCallTimeout(-1))
	assert.Error(t, err)
}

func TestPending(t *testing.T) {
	p := newPending()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.wait(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, p.deliver("late", nil))

	p = newPending()
	assert.True(t, p.deliver("v", nil))
	v, err := p.wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.False(t, p.deliver("again", nil))
}

func TestResultMode_String(t *testing.T) {
	assert.Equal(t, "value", ResultValue.String())
	assert.Equal(t, "ref", ResultRef.String())
	assert.Equal(t, "void", ResultVoid.String())
	assert.Equal(t, "ResultMode(5)", ResultMode(5).String())
}

func TestRequire(t *testing.T) {
	runtime := goja.New()
	registry := Enable(runtime, nil)
	require.NotNil(t, registry)

	v, err := runtime.RunString(`
const helper = require('goja-remote/helper');
[typeof helper.invoke, typeof helper.forEach, typeof DOMException, new DOMException('m', 'NotFoundError').code];
`)
	require.NoError(t, err)
	assert.Equal(t, []any{"function", "function", "function", int64(8)}, v.Export())
}
