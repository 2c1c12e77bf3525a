// Package gojaremote lets Go code drive objects living in a [goja] runtime
// as if they were local, with typed errors and explicit control of remote
// object lifetimes.
//
// # Overview
//
// A [Conn] carries calls to the runtime. [LoopConn] submits every call to a
// [eventloop.Loop] that owns the runtime, and awaits promise results.
// [RuntimeConn] drives the runtime directly, and additionally supports
// blocking calls.
//
// A [Binder] governs the handles of one connection. On first use it loads
// the helper module, registered with [Require] or [Enable], which performs
// member resolution and failure encoding on the remote side:
//
//	runtime := goja.New()
//	gojaremote.Enable(runtime, nil)
//	conn, err := gojaremote.NewRuntimeConn(runtime)
//	...
//	binder, err := gojaremote.NewBinder(conn)
//	...
//	proxy, err := gojaremote.NewProxy(binder)
//	...
//	n, err := proxy.Invoke(ctx, nil, "Math.max", 1, 2)
//
// # Handles
//
// Objects other than plain objects and arrays cross by reference, as a
// [Handle]. Each handle received from the runtime holds a reference slot of
// its own, and must be disposed to release it. A handle returned by a call
// owns its object; one read from a property, via [Proxy.Get] or
// [Proxy.GetHandle], does not by default. Disposal is idempotent; any other
// use of a disposed handle panics.
//
// # Errors
//
// A failure thrown by script code is encoded remotely as an [Envelope] and
// decoded by the [Proxy] into a typed error through a [Registry]:
// [PlatformError] for DOMException names such as NotFoundError,
// [NativeError] for TypeError and friends, and [RemoteError] for anything
// else. All of them match [ErrRemote], and their own sentinel, with
// errors.Is:
//
//	_, err := proxy.Invoke(ctx, store, "load", key)
//	if errors.Is(err, gojaremote.ErrNotFound) {
//	    ...
//	}
//
// Failures without an envelope, including [ErrConnClosed] and context
// errors, are returned unchanged.
//
// # Collections
//
// [NewMap], [NewReadonlyMap], [NewSet] and [NewReadonlySet] view remote
// collections through the [Map], [ReadonlyMap], [Set] and [ReadonlySet]
// interfaces. Each operation is one remote call. Keys, Values and Entries
// return a [Cursor], which disposes the handles of each element as it moves
// past it. ForEach does not wait for its callbacks, which run concurrently;
// use the returned [Completion] to wait for them.
package gojaremote
