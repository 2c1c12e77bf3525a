package gojaremote

import (
	"maps"
	"sync"
)

// Constructor builds the typed error for an envelope. cause is the boundary
// failure the envelope was unpacked from.
type Constructor func(env *Envelope, cause error) error

// Registry maps envelope kinds to constructors. It is safe for concurrent
// use, and may be modified while in use.
type Registry struct {
	kinds map[string]Constructor
	mu    sync.RWMutex
}

// DefaultRegistry is the registry used by a [Proxy] configured without
// [WithRegistry].
var DefaultRegistry = NewRegistry()

// NewRegistry returns a registry seeded with [PlatformErrorNames] and
// [NativeErrorNames].
func NewRegistry() *Registry {
	r := &Registry{kinds: make(map[string]Constructor, len(PlatformErrorNames)+len(NativeErrorNames))}
	for _, name := range PlatformErrorNames {
		r.kinds[name] = NewPlatformError
	}
	for _, name := range NativeErrorNames {
		r.kinds[name] = NewNativeError
	}
	return r
}

// Register sets the constructor for kind, replacing any existing one.
// Register panics if kind is empty or ctor is nil.
func (r *Registry) Register(kind string, ctor Constructor) {
	if kind == "" {
		panic("gojaremote: kind must not be empty")
	}
	if ctor == nil {
		panic("gojaremote: constructor must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = ctor
}

// Unregister removes the constructor for kind, if any.
func (r *Registry) Unregister(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.kinds, kind)
}

// Lookup returns the constructor for kind.
func (r *Registry) Lookup(kind string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.kinds[kind]
	return ctor, ok
}

// Clone returns an independent copy of the registry.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Registry{kinds: maps.Clone(r.kinds)}
}

// Map converts env to a typed error. Kinds without a constructor, and
// constructors that panic or return nil, produce a [RemoteError] via
// [NewRemoteError]. Map itself never panics.
func (r *Registry) Map(env *Envelope, cause error) (err error) {
	if env == nil {
		return cause
	}
	ctor, ok := r.Lookup(env.Kind)
	if !ok {
		return NewRemoteError(env, cause)
	}
	defer func() {
		if recover() != nil {
			err = NewRemoteError(env, cause)
		}
	}()
	if err = ctor(env, cause); err == nil {
		err = NewRemoteError(env, cause)
	}
	return err
}
