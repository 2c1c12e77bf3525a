package gojaremote

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
)

// runtimeEnv wires a goja runtime, with the helper module enabled, to a
// RuntimeConn, Binder and Proxy.
type runtimeEnv struct {
	runtime *goja.Runtime
	conn    *RuntimeConn
	binder  *Binder
	proxy   *Proxy
	logs    *syncBuffer
}

func newRuntimeEnv(t *testing.T, opts ...Option) *runtimeEnv {
	t.Helper()

	runtime := goja.New()
	Enable(runtime, nil)

	logs := new(syncBuffer)
	opts = append([]Option{WithLogger(newTestLogger(logs))}, opts...)

	conn, err := NewRuntimeConn(runtime, opts...)
	require.NoError(t, err)

	binder, err := NewBinder(conn, opts...)
	require.NoError(t, err)

	proxy, err := NewProxy(binder, opts...)
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	return &runtimeEnv{
		runtime: runtime,
		conn:    conn,
		binder:  binder,
		proxy:   proxy,
		logs:    logs,
	}
}

// run evaluates code with exclusive access to the runtime.
func (e *runtimeEnv) run(t *testing.T, code string) {
	t.Helper()
	require.NoError(t, e.conn.Do(func(runtime *goja.Runtime) error {
		_, err := runtime.RunString(code)
		return err
	}))
}

// global returns an owning handle to a global.
func (e *runtimeEnv) global(t *testing.T, name string) *Handle {
	t.Helper()
	h, err := e.proxy.GetHandle(context.Background(), nil, name, Owning())
	require.NoError(t, err)
	require.NotNil(t, h)
	return h
}

// liveRefs returns the number of allocated slots, excluding the helper
// module.
func (e *runtimeEnv) liveRefs() int {
	n := e.conn.LiveRefs()
	if e.binder.helper.Load() != nil {
		n--
	}
	return n
}

// loopEnv wires a running event loop to a LoopConn, Binder and Proxy.
type loopEnv struct {
	loop    *eventloop.Loop
	runtime *goja.Runtime
	conn    *LoopConn
	binder  *Binder
	proxy   *Proxy
}

func newLoopEnv(t *testing.T, opts ...Option) *loopEnv {
	t.Helper()

	loop, err := eventloop.New()
	require.NoError(t, err)

	runtime := goja.New()
	Enable(runtime, nil)

	conn, err := NewLoopConn(loop, runtime, opts...)
	require.NoError(t, err)

	binder, err := NewBinder(conn, opts...)
	require.NoError(t, err)

	proxy, err := NewProxy(binder, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case <-loopDone:
		case <-time.After(5 * time.Second):
			t.Error("event loop did not stop")
		}
	})

	return &loopEnv{
		loop:    loop,
		runtime: runtime,
		conn:    conn,
		binder:  binder,
		proxy:   proxy,
	}
}

// run evaluates code on the loop, and waits for it.
func (e *loopEnv) run(t *testing.T, code string) {
	t.Helper()
	errCh := make(chan error, 1)
	require.NoError(t, e.loop.Submit(func() {
		_, err := e.runtime.RunString(code)
		errCh <- err
	}))
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out running script")
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// syncBuffer is a bytes.Buffer safe for concurrent writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(w *syncBuffer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelTrace),
	).Logger()
}

// fakeConn is a scriptable Conn that records releases.
type fakeConn struct {
	invoke    func(ctx context.Context, call Call) (any, error)
	calls     []Call
	released  map[RefID]int
	callbacks map[RefID]func(args []any)
	mu        sync.Mutex
	nextID    RefID
	sync      bool
}

var _ SyncConn = (*fakeConn)(nil)

func newFakeConn(invoke func(ctx context.Context, call Call) (any, error)) *fakeConn {
	return &fakeConn{
		invoke:    invoke,
		released:  make(map[RefID]int),
		callbacks: make(map[RefID]func(args []any)),
		nextID:    1000,
	}
}

func (c *fakeConn) Invoke(ctx context.Context, call Call) (any, error) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
	if call.Member == "require" {
		return Ref{ID: 1}, nil
	}
	return c.invoke(ctx, call)
}

func (c *fakeConn) Release(ctx context.Context, ids ...RefID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.ReleaseSync(ids...)
}

func (c *fakeConn) Register(ctx context.Context, fn func(args []any)) (RefID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.callbacks[c.nextID] = fn
	return c.nextID, nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) SupportsSync() bool { return c.sync }

func (c *fakeConn) InvokeSync(call Call) (any, error) {
	return c.Invoke(context.Background(), call)
}

func (c *fakeConn) ReleaseSync(ids ...RefID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.released[id]++
	}
	return nil
}

func (c *fakeConn) releases(id RefID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released[id]
}

func (c *fakeConn) helperCalls(member string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, call := range c.calls {
		if call.Member == member {
			n++
		}
	}
	return n
}

// newFakeProxy wires a test Conn to a Binder and Proxy.
func newFakeProxy(t *testing.T, conn Conn, opts ...Option) *Proxy {
	t.Helper()
	binder, err := NewBinder(conn, opts...)
	require.NoError(t, err)
	proxy, err := NewProxy(binder, opts...)
	require.NoError(t, err)
	return proxy
}

// requirePanicsWith asserts that fn panics with an error wrapping target.
func requirePanicsWith(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		require.True(t, errors.Is(err, target), "panic %v does not wrap %v", err, target)
	}()
	fn()
}
