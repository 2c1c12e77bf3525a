package gojaremote

import (
	"context"
)

// Entry is a key-value pair yielded by an entries cursor.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// ReadonlyMap is a read-only view of a remote map-like object, e.g. a Map.
type ReadonlyMap[K, V any] interface {
	// Handle returns the handle of the remote object.
	Handle() *Handle
	// Size reads the size property.
	Size(ctx context.Context) (int, error)
	// Has reports whether key is present.
	Has(ctx context.Context, key K) (bool, error)
	// Get returns the value for key, and whether it is present. A present
	// value may be null, false or zero.
	Get(ctx context.Context, key K) (V, bool, error)
	Keys(ctx context.Context, opts ...CursorOption) (*Cursor[K], error)
	Values(ctx context.Context, opts ...CursorOption) (*Cursor[V], error)
	Entries(ctx context.Context, opts ...CursorOption) (*Cursor[Entry[K, V]], error)
	// ForEach calls fn for every value. See [Proxy.ForEach].
	ForEach(ctx context.Context, fn func(value V), opts ...ForEachOption) (*Completion, error)
	// ForEachEntry calls fn for every key and value. See [Proxy.ForEach].
	ForEachEntry(ctx context.Context, fn func(key K, value V), opts ...ForEachOption) (*Completion, error)
	// Dispose disposes the handle of the remote object.
	Dispose(ctx context.Context) error
}

// Map is a read-write view of a remote map-like object.
type Map[K, V any] interface {
	ReadonlyMap[K, V]
	Set(ctx context.Context, key K, value V) error
	// Delete removes key, reporting whether it was present.
	Delete(ctx context.Context, key K) (bool, error)
	Clear(ctx context.Context) error
}

// ReadonlySet is a read-only view of a remote set-like object, e.g. a Set.
type ReadonlySet[T any] interface {
	Handle() *Handle
	Size(ctx context.Context) (int, error)
	Has(ctx context.Context, value T) (bool, error)
	// Keys yields the same elements as Values.
	Keys(ctx context.Context, opts ...CursorOption) (*Cursor[T], error)
	Values(ctx context.Context, opts ...CursorOption) (*Cursor[T], error)
	// Entries yields every element as both key and value.
	Entries(ctx context.Context, opts ...CursorOption) (*Cursor[Entry[T, T]], error)
	ForEach(ctx context.Context, fn func(value T), opts ...ForEachOption) (*Completion, error)
	Dispose(ctx context.Context) error
}

// Set is a read-write view of a remote set-like object.
type Set[T any] interface {
	ReadonlySet[T]
	Add(ctx context.Context, value T) error
	// Delete removes value, reporting whether it was present.
	Delete(ctx context.Context, value T) (bool, error)
	Clear(ctx context.Context) error
}

// View implements the collection protocol over a handle. It holds no state
// besides the handle and codecs: every operation is one remote call. Use
// the constructors, which return the capability interfaces.
type View[K, V any] struct {
	proxy  *Proxy
	handle *Handle
	keys   Codec[K]
	values Codec[V]
}

var (
	_ Map[string, any] = (*View[string, any])(nil)
	_ Set[string]      = (*View[string, string])(nil)
)

func newView[K, V any](proxy *Proxy, handle *Handle, keys Codec[K], values Codec[V]) *View[K, V] {
	if proxy == nil {
		panic("gojaremote: proxy must not be nil")
	}
	if handle == nil {
		panic("gojaremote: handle must not be nil")
	}
	if keys == nil || values == nil {
		panic("gojaremote: codec must not be nil")
	}
	return &View[K, V]{proxy: proxy, handle: handle, keys: keys, values: values}
}

// NewMap returns a read-write view of the map-like object behind handle.
// The view takes over the handle.
func NewMap[K, V any](proxy *Proxy, handle *Handle, keys Codec[K], values Codec[V]) Map[K, V] {
	return newView(proxy, handle, keys, values)
}

// NewReadonlyMap returns a read-only view of the map-like object behind
// handle.
func NewReadonlyMap[K, V any](proxy *Proxy, handle *Handle, keys Codec[K], values Codec[V]) ReadonlyMap[K, V] {
	return newView(proxy, handle, keys, values)
}

// NewSet returns a read-write view of the set-like object behind handle.
func NewSet[T any](proxy *Proxy, handle *Handle, codec Codec[T]) Set[T] {
	return newView(proxy, handle, codec, codec)
}

// NewReadonlySet returns a read-only view of the set-like object behind
// handle.
func NewReadonlySet[T any](proxy *Proxy, handle *Handle, codec Codec[T]) ReadonlySet[T] {
	return newView(proxy, handle, codec, codec)
}

// Handle returns the handle of the remote object.
func (v *View[K, V]) Handle() *Handle {
	return v.handle
}

// Dispose disposes the handle of the remote object.
func (v *View[K, V]) Dispose(ctx context.Context) error {
	return v.handle.Dispose(ctx)
}

// Size reads the size property.
func (v *View[K, V]) Size(ctx context.Context) (int, error) {
	result, err := v.proxy.Get(ctx, v.handle, "size")
	if err != nil {
		return 0, err
	}
	n, ok := toInt(result)
	if !ok || n < 0 {
		return 0, &DecodeError{Value: result, Expect: "size"}
	}
	return n, nil
}

// Has reports whether key is present.
func (v *View[K, V]) Has(ctx context.Context, key K) (bool, error) {
	k, err := v.keys.Encode(key)
	if err != nil {
		return false, err
	}
	return v.invokeBool(ctx, "has", k)
}

// Get returns the value for key, and whether it is present.
func (v *View[K, V]) Get(ctx context.Context, key K) (value V, found bool, err error) {
	k, err := v.keys.Encode(key)
	if err != nil {
		return value, false, err
	}
	result, err := v.proxy.call(ctx, nil, helperGetEntry, []any{v.handle.Ref(), encodeValue(k)}, ResultValue, "get", true)
	if err != nil {
		return value, false, err
	}
	entry, ok := result.(map[string]any)
	if !ok {
		_ = disposeAll(ctx, collectHandles(result))
		return value, false, &DecodeError{Value: result, Expect: "entry"}
	}
	if found, _ = entry["found"].(bool); !found {
		_ = disposeAll(ctx, collectHandles(entry["value"]))
		return value, false, nil
	}
	if value, err = v.values.Decode(entry["value"]); err != nil {
		_ = disposeAll(ctx, collectHandles(entry["value"]))
		return value, false, err
	}
	return value, true, nil
}

// Set sets key to value.
func (v *View[K, V]) Set(ctx context.Context, key K, value V) error {
	k, err := v.keys.Encode(key)
	if err != nil {
		return err
	}
	val, err := v.values.Encode(value)
	if err != nil {
		return err
	}
	return v.proxy.InvokeVoid(ctx, v.handle, "set", k, val)
}

// Add adds value to a set.
func (v *View[K, V]) Add(ctx context.Context, value K) error {
	val, err := v.keys.Encode(value)
	if err != nil {
		return err
	}
	return v.proxy.InvokeVoid(ctx, v.handle, "add", val)
}

// Delete removes key, reporting whether it was present.
func (v *View[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	k, err := v.keys.Encode(key)
	if err != nil {
		return false, err
	}
	return v.invokeBool(ctx, "delete", k)
}

// Clear removes every element.
func (v *View[K, V]) Clear(ctx context.Context) error {
	return v.proxy.InvokeVoid(ctx, v.handle, "clear")
}

// Keys returns a cursor over the keys.
func (v *View[K, V]) Keys(ctx context.Context, opts ...CursorOption) (*Cursor[K], error) {
	it, err := v.iterator(ctx, "keys")
	if err != nil {
		return nil, err
	}
	return newCursor(v.proxy, it, v.keys.Decode, opts), nil
}

// Values returns a cursor over the values.
func (v *View[K, V]) Values(ctx context.Context, opts ...CursorOption) (*Cursor[V], error) {
	it, err := v.iterator(ctx, "values")
	if err != nil {
		return nil, err
	}
	return newCursor(v.proxy, it, v.values.Decode, opts), nil
}

// Entries returns a cursor over the key-value pairs.
func (v *View[K, V]) Entries(ctx context.Context, opts ...CursorOption) (*Cursor[Entry[K, V]], error) {
	it, err := v.iterator(ctx, "entries")
	if err != nil {
		return nil, err
	}
	return newCursor(v.proxy, it, v.decodeEntry, opts), nil
}

// ForEach calls fn for every value.
func (v *View[K, V]) ForEach(ctx context.Context, fn func(value V), opts ...ForEachOption) (*Completion, error) {
	return v.proxy.ForEach(ctx, v.handle, 1, func(args []any) error {
		value, err := v.values.Decode(argAt(args, 0))
		if err != nil {
			return err
		}
		fn(value)
		return nil
	}, opts...)
}

// ForEachEntry calls fn for every key and value.
func (v *View[K, V]) ForEachEntry(ctx context.Context, fn func(key K, value V), opts ...ForEachOption) (*Completion, error) {
	return v.proxy.ForEach(ctx, v.handle, 2, func(args []any) error {
		value, err := v.values.Decode(argAt(args, 0))
		if err != nil {
			return err
		}
		key, err := v.keys.Decode(argAt(args, 1))
		if err != nil {
			return err
		}
		fn(key, value)
		return nil
	}, opts...)
}

func (v *View[K, V]) invokeBool(ctx context.Context, member string, args ...any) (bool, error) {
	result, err := v.proxy.Invoke(ctx, v.handle, member, args...)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		_ = disposeAll(ctx, collectHandles(result))
		return false, &DecodeError{Value: result, Expect: "boolean"}
	}
	return b, nil
}

func (v *View[K, V]) iterator(ctx context.Context, member string) (*Handle, error) {
	it, err := v.proxy.InvokeHandle(ctx, v.handle, member)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, &DecodeError{Expect: "iterator"}
	}
	return it, nil
}

func (v *View[K, V]) decodeEntry(value any) (entry Entry[K, V], err error) {
	pair, ok := value.([]any)
	if !ok || len(pair) != 2 {
		return entry, &DecodeError{Value: value, Expect: "entry pair"}
	}
	if entry.Key, err = v.keys.Decode(pair[0]); err != nil {
		return entry, err
	}
	if entry.Value, err = v.values.Decode(pair[1]); err != nil {
		return entry, err
	}
	return entry, nil
}

func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}
