package gojaremote

import (
	"context"
	"errors"
	"time"

	"github.com/joeycumines/logiface"
)

// DefaultCallTimeout bounds calls whose context carries no deadline.
const DefaultCallTimeout = 30 * time.Second

// config holds configuration shared by [NewBinder], [NewProxy],
// [NewLoopConn] and [NewRuntimeConn]. Each constructor reads the fields
// relevant to it.
type config struct {
	logger      *logiface.Logger[logiface.Event]
	registry    *Registry
	callTimeout time.Duration
	noTimers    bool
}

// Option configures a [Binder], [Proxy] or connection. Options are applied
// during construction.
type Option interface {
	applyOption(*config) error
}

// optionFunc implements [Option] via a closure.
type optionFunc struct {
	fn func(*config) error
}

func (o *optionFunc) applyOption(cfg *config) error {
	return o.fn(cfg)
}

// WithLogger configures the logger. A nil logger disables logging, which is
// also the default.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionFunc{fn: func(cfg *config) error {
		cfg.logger = logger
		return nil
	}}
}

// WithRegistry configures the [Registry] a [Proxy] maps envelopes through.
// Passing nil returns an error during construction. Defaults to
// [DefaultRegistry].
func WithRegistry(registry *Registry) Option {
	return &optionFunc{fn: func(cfg *config) error {
		if registry == nil {
			return errors.New("gojaremote: registry must not be nil")
		}
		cfg.registry = registry
		return nil
	}}
}

// WithCallTimeout configures the timeout applied to proxy calls whose
// context has no deadline. Zero disables the default timeout. Negative
// values return an error during construction.
func WithCallTimeout(d time.Duration) Option {
	return &optionFunc{fn: func(cfg *config) error {
		if d < 0 {
			return errors.New("gojaremote: call timeout must not be negative")
		}
		cfg.callTimeout = d
		return nil
	}}
}

// WithoutTimers stops [NewLoopConn] from installing the setTimeout and
// clearTimeout globals.
func WithoutTimers() Option {
	return &optionFunc{fn: func(cfg *config) error {
		cfg.noTimers = true
		return nil
	}}
}

// resolveOptions applies the given options to a default [config].
func resolveOptions(opts []Option) (*config, error) {
	cfg := &config{
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.registry == nil {
		cfg.registry = DefaultRegistry
	}
	return cfg, nil
}

type noTimeoutKey struct{}

// NoTimeout returns a context that opts proxy calls out of the default call
// timeout. Cancellation of ctx still applies.
func NoTimeout(ctx context.Context) context.Context {
	return context.WithValue(ctx, noTimeoutKey{}, true)
}

// withCallTimeout applies d to ctx unless ctx already has a deadline, d is
// zero, or ctx was derived from [NoTimeout].
func withCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	if v, _ := ctx.Value(noTimeoutKey{}).(bool); v {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// GetOption configures [Proxy.GetHandle].
type GetOption interface {
	applyGetOption(*getConfig)
}

type getConfig struct {
	owning bool
}

type getOptionFunc func(*getConfig)

func (f getOptionFunc) applyGetOption(cfg *getConfig) { f(cfg) }

// Owning makes the handle returned by [Proxy.GetHandle] own its slot, so
// that disposing it releases the slot.
func Owning() GetOption {
	return getOptionFunc(func(cfg *getConfig) { cfg.owning = true })
}

// CursorOption configures the [Cursor] returned by Keys, Values and Entries.
type CursorOption interface {
	applyCursorOption(*cursorConfig)
}

type cursorConfig struct {
	retain bool
}

type cursorOptionFunc func(*cursorConfig)

func (f cursorOptionFunc) applyCursorOption(cfg *cursorConfig) { f(cfg) }

// DisposePrevious sets whether the handles of a yielded element are disposed
// when the cursor advances, is exhausted, or is closed. Defaults to true.
// With false, the caller owns every yielded handle.
func DisposePrevious(dispose bool) CursorOption {
	return cursorOptionFunc(func(cfg *cursorConfig) { cfg.retain = !dispose })
}

// ForEachOption configures ForEach and ForEachEntry.
type ForEachOption interface {
	applyForEachOption(*forEachConfig)
}

type forEachConfig struct {
	disposeElements bool
}

type forEachOptionFunc func(*forEachConfig)

func (f forEachOptionFunc) applyForEachOption(cfg *forEachConfig) { f(cfg) }

// DisposeElements disposes the element and key handles passed to each
// callback right after that callback returns.
func DisposeElements() ForEachOption {
	return forEachOptionFunc(func(cfg *forEachConfig) { cfg.disposeElements = true })
}
