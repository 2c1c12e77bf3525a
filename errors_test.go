package gojaremote

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnvelope(kind, message string) *Envelope {
	stack := "load@store.js:10:5\nrun@main.js:3:1"
	return &Envelope{
		Kind:    kind,
		Message: message,
		Stack:   &stack,
		Extra:   map[string]any{},
	}
}

func TestRegistry_platformErrors(t *testing.T) {
	cause := errors.New("boundary failure")
	for _, name := range PlatformErrorNames {
		t.Run(name, func(t *testing.T) {
			err := DefaultRegistry.Map(testEnvelope(name, "it failed"), cause)

			var pe *PlatformError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, name, pe.Name)
			assert.Equal(t, "it failed", pe.Message)
			assert.Equal(t, name+": it failed", err.Error())
			assert.True(t, errors.Is(err, ErrRemote))
			assert.True(t, errors.Is(err, cause))
			assert.False(t, errors.Is(err, ErrTypeError))

			var base *RemoteError
			require.True(t, errors.As(err, &base))
			assert.Same(t, pe.RemoteError, base)
		})
	}
}

func TestRegistry_nativeErrors(t *testing.T) {
	for _, name := range NativeErrorNames {
		t.Run(name, func(t *testing.T) {
			err := DefaultRegistry.Map(testEnvelope(name, "bad"), nil)

			var ne *NativeError
			require.True(t, errors.As(err, &ne))
			assert.Equal(t, name, ne.Name)
			assert.Equal(t, name+": bad", err.Error())
			assert.True(t, errors.Is(err, ErrRemote))

			var pe *PlatformError
			assert.False(t, errors.As(err, &pe))
		})
	}
}

func TestRegistry_sentinels(t *testing.T) {
	for _, tc := range [...]struct {
		kind     string
		sentinel error
	}{
		{"AbortError", ErrAbort},
		{"NotFoundError", ErrNotFound},
		{"InvalidStateError", ErrInvalidState},
		{"TimeoutError", ErrTimeout},
		{"QuotaExceededError", ErrQuotaExceeded},
		{"TransactionInactiveError", ErrTransactionInactive},
		{"TypeError", ErrTypeError},
		{"RangeError", ErrRangeError},
		{"ReferenceError", ErrReferenceError},
		{"SyntaxError", ErrSyntaxError},
		{"URIError", ErrURIError},
		{"EvalError", ErrEvalError},
	} {
		err := DefaultRegistry.Map(testEnvelope(tc.kind, ""), nil)
		assert.True(t, errors.Is(err, tc.sentinel), tc.kind)
		assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", err), tc.sentinel), tc.kind)
		if tc.sentinel != ErrNotFound {
			assert.False(t, errors.Is(err, ErrNotFound), tc.kind)
		}
	}
}

func TestRegistry_unknownKind(t *testing.T) {
	cause := errors.New("boundary failure")
	err := DefaultRegistry.Map(testEnvelope("CustomError", "weird"), cause)

	var e *RemoteError
	require.True(t, errors.As(err, &e))
	assert.IsType(t, (*RemoteError)(nil), err)
	assert.Equal(t, `CustomError: "weird"`, err.Error())
	assert.Equal(t, "CustomError", e.Name)
	assert.True(t, errors.Is(err, ErrRemote))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestRegistry_nilEnvelope(t *testing.T) {
	cause := errors.New("boundary failure")
	assert.Equal(t, cause, DefaultRegistry.Map(nil, cause))
}

func TestRegistry_faultyConstructors(t *testing.T) {
	r := NewRegistry()
	r.Register("Panics", func(*Envelope, error) error { panic("constructor bug") })
	r.Register("Nil", func(*Envelope, error) error { return nil })

	for _, kind := range []string{"Panics", "Nil"} {
		var err error
		require.NotPanics(t, func() { err = r.Map(testEnvelope(kind, "m"), nil) })
		assert.IsType(t, (*RemoteError)(nil), err)
		assert.Equal(t, kind+`: "m"`, err.Error())
	}
}

type quotaError struct {
	*RemoteError
	limit int
}

func TestRegistry_customConstructor(t *testing.T) {
	r := DefaultRegistry.Clone()
	r.Register("QuotaExceededError", func(env *Envelope, cause error) error {
		limit, _ := intExtra(env.Extra, "limit")
		return &quotaError{RemoteError: NewRemoteError(env, cause), limit: limit}
	})

	env := testEnvelope("QuotaExceededError", "full")
	env.Extra["limit"] = json.Number("10")

	err := r.Map(env, nil)
	var qe *quotaError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 10, qe.limit)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	// the clone is independent
	_, ok := DefaultRegistry.Map(env, nil).(*PlatformError)
	assert.True(t, ok)

	r.Unregister("QuotaExceededError")
	_, ok = r.Lookup("QuotaExceededError")
	assert.False(t, ok)
	assert.IsType(t, (*RemoteError)(nil), r.Map(env, nil))
}

func TestRegistry_registerPanics(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() { r.Register("", NewNativeError) })
	assert.Panics(t, func() { r.Register("X", nil) })
}

func TestError_stacks(t *testing.T) {
	err := NewRemoteError(testEnvelope("CustomError", "m"), nil)

	assert.Equal(t, []StackFrame{
		{FunctionName: "load", FileName: "store.js", Line: 10, Column: 5},
		{FunctionName: "run", FileName: "main.js", Line: 3, Column: 1},
	}, err.Frames)
	assert.Contains(t, err.HostStack(), "TestError_stacks")

	trace, ok := err.StackTrace()
	require.True(t, ok)
	assert.Equal(t, err.RemoteStack+"\n"+err.HostStack(), trace)

	env := testEnvelope("CustomError", "m")
	env.Stack = nil
	err = NewRemoteError(env, nil)
	assert.Nil(t, err.Frames)
	assert.Empty(t, err.RemoteStack)

	_, ok = (&RemoteError{}).StackTrace()
	assert.False(t, ok)
}

func TestPlatformError_code(t *testing.T) {
	env := testEnvelope("NotFoundError", "gone")
	env.Extra["code"] = json.Number("8")
	err := NewPlatformError(env, nil).(*PlatformError)
	assert.Equal(t, 8, err.Code)

	env.Extra["code"] = "eight"
	err = NewPlatformError(env, nil).(*PlatformError)
	assert.Zero(t, err.Code)
}

func TestDecodeError(t *testing.T) {
	assert.Equal(t, "gojaremote: cannot decode null as string", (&DecodeError{Expect: "string"}).Error())
	assert.Equal(t, "gojaremote: cannot decode int64 as boolean", (&DecodeError{Value: int64(1), Expect: "boolean"}).Error())
}
