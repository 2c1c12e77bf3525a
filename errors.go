package gojaremote

import (
	"errors"
)

var (
	// ErrHandleDisposed is the panic value, wrapped, on use of a disposed
	// [Handle].
	ErrHandleDisposed = errors.New("gojaremote: handle disposed")

	// ErrSyncUnsupported is the panic value, wrapped, on use of the sync
	// call surface with a connection that does not support it.
	ErrSyncUnsupported = errors.New("gojaremote: connection does not support sync calls")

	// ErrInvalidMemberPath is the panic value, wrapped, on a malformed
	// member path, i.e. one that is empty or has an empty segment.
	ErrInvalidMemberPath = errors.New("gojaremote: invalid member path")

	// ErrBinderClosed is returned by a [Binder] after Close.
	ErrBinderClosed = errors.New("gojaremote: binder closed")
)

// RemoteError is the generic boundary error, raised for every decoded remote
// failure. [PlatformError] and [NativeError] embed it, so errors.As with a
// *RemoteError target matches every typed remote failure.
type RemoteError struct {
	// Cause is the boundary failure the error was decoded from.
	Cause error

	// Extra holds the envelope's extra fields.
	Extra map[string]any

	// Name is the envelope kind.
	Name string

	Message string

	// RemoteStack is the raw remote stack trace, if any.
	RemoteStack string

	// Frames is RemoteStack, parsed.
	Frames []StackFrame

	hostStack string
}

// NewRemoteError constructs a [RemoteError] from an envelope, capturing the
// host stack. Unregistered kinds are reported through it, with a message that
// quotes the remote one.
func NewRemoteError(env *Envelope, cause error) *RemoteError {
	return newError(env, cause, env.Kind+`: "`+env.Message+`"`)
}

func newError(env *Envelope, cause error, message string) *RemoteError {
	e := &RemoteError{
		Cause:     cause,
		Extra:     env.Extra,
		Name:      env.Kind,
		Message:   message,
		hostStack: callerStack(2),
	}
	if env.Stack != nil {
		e.RemoteStack = *env.Stack
		e.Frames = ParseStackFrames(e.RemoteStack)
	}
	return e
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return e.Message
}

// Unwrap returns the boundary failure.
func (e *RemoteError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinels: [ErrRemote] always, the others by name.
func (e *RemoteError) Is(target error) bool {
	s, ok := target.(*sentinel)
	if !ok {
		return false
	}
	return s.name == "" || s.name == e.Name
}

// As supports errors.As with a **RemoteError target, for embedding types.
func (e *RemoteError) As(target any) bool {
	if p, ok := target.(**RemoteError); ok {
		*p = e
		return true
	}
	return false
}

// StackTrace returns the remote stack followed by the host stack, and false
// when neither is known.
func (e *RemoteError) StackTrace() (string, bool) {
	return combineStacks(e.RemoteStack, e.hostStack)
}

// HostStack returns the host stack captured when the error was decoded.
func (e *RemoteError) HostStack() string {
	return e.hostStack
}

// PlatformError is a named domain error, e.g. NotFoundError, as raised by
// DOMException in the remote runtime.
type PlatformError struct {
	*RemoteError

	// Code is the legacy numeric code, when the remote side supplied one.
	Code int
}

// Error implements the error interface.
func (e *PlatformError) Error() string {
	return e.Name + ": " + e.Message
}

// NewPlatformError is the [Constructor] for the platform names.
func NewPlatformError(env *Envelope, cause error) error {
	e := &PlatformError{RemoteError: newError(env, cause, env.Message)}
	if code, ok := intExtra(env.Extra, "code"); ok {
		e.Code = code
	}
	return e
}

// NativeError is one of the script language's own error types, e.g.
// TypeError.
type NativeError struct {
	*RemoteError
}

// Error implements the error interface.
func (e *NativeError) Error() string {
	return e.Name + ": " + e.Message
}

// NewNativeError is the [Constructor] for the native error names.
func NewNativeError(env *Envelope, cause error) error {
	return &NativeError{RemoteError: newError(env, cause, env.Message)}
}

type sentinel struct {
	name string
}

func (s *sentinel) Error() string {
	if s.name == "" {
		return "gojaremote: remote error"
	}
	return "gojaremote: remote " + s.name
}

// Sentinels match decoded remote failures with errors.Is, by name.
var (
	// ErrRemote matches every decoded remote failure.
	ErrRemote error = &sentinel{}

	ErrAbort               error = &sentinel{name: "AbortError"}
	ErrNotFound            error = &sentinel{name: "NotFoundError"}
	ErrInvalidState        error = &sentinel{name: "InvalidStateError"}
	ErrTimeout             error = &sentinel{name: "TimeoutError"}
	ErrSecurity            error = &sentinel{name: "SecurityError"}
	ErrQuotaExceeded       error = &sentinel{name: "QuotaExceededError"}
	ErrNotSupported        error = &sentinel{name: "NotSupportedError"}
	ErrNotAllowed          error = &sentinel{name: "NotAllowedError"}
	ErrInvalidAccess       error = &sentinel{name: "InvalidAccessError"}
	ErrDataClone           error = &sentinel{name: "DataCloneError"}
	ErrNetwork             error = &sentinel{name: "NetworkError"}
	ErrOperation           error = &sentinel{name: "OperationError"}
	ErrData                error = &sentinel{name: "DataError"}
	ErrEncoding            error = &sentinel{name: "EncodingError"}
	ErrNotReadable         error = &sentinel{name: "NotReadableError"}
	ErrConstraint          error = &sentinel{name: "ConstraintError"}
	ErrIndexSize           error = &sentinel{name: "IndexSizeError"}
	ErrInvalidCharacter    error = &sentinel{name: "InvalidCharacterError"}
	ErrInvalidModification error = &sentinel{name: "InvalidModificationError"}
	ErrUnknown             error = &sentinel{name: "UnknownError"}
	ErrVersion             error = &sentinel{name: "VersionError"}
	ErrReadOnly            error = &sentinel{name: "ReadOnlyError"}
	ErrTransactionInactive error = &sentinel{name: "TransactionInactiveError"}
	ErrTypeError           error = &sentinel{name: "TypeError"}
	ErrRangeError          error = &sentinel{name: "RangeError"}
	ErrReferenceError      error = &sentinel{name: "ReferenceError"}
	ErrSyntaxError         error = &sentinel{name: "SyntaxError"}
	ErrURIError            error = &sentinel{name: "URIError"}
	ErrEvalError           error = &sentinel{name: "EvalError"}
)

// PlatformErrorNames lists the kinds [DefaultRegistry] maps to
// [PlatformError].
var PlatformErrorNames = []string{
	"AbortError",
	"NotFoundError",
	"InvalidStateError",
	"TimeoutError",
	"SecurityError",
	"QuotaExceededError",
	"NotSupportedError",
	"NotAllowedError",
	"InvalidAccessError",
	"DataCloneError",
	"NetworkError",
	"OperationError",
	"DataError",
	"EncodingError",
	"NotReadableError",
	"ConstraintError",
	"IndexSizeError",
	"InvalidCharacterError",
	"InvalidModificationError",
	"UnknownError",
	"VersionError",
	"ReadOnlyError",
	"TransactionInactiveError",
}

// NativeErrorNames lists the kinds [DefaultRegistry] maps to [NativeError].
var NativeErrorNames = []string{
	"TypeError",
	"RangeError",
	"ReferenceError",
	"SyntaxError",
	"URIError",
	"EvalError",
}

// DecodeError reports a remote value that does not have the shape a
// [Codec] or view expects.
type DecodeError struct {
	Value  any
	Expect string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return "gojaremote: cannot decode " + describe(e.Value) + " as " + e.Expect
}
