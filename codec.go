package gojaremote

import (
	"encoding/json"
	"fmt"
	"math"
)

// Codec converts between a host type and its wire value. Decode receives
// values as returned by a [Proxy], i.e. with object references already
// wrapped as handles.
type Codec[T any] interface {
	Encode(value T) (any, error)
	Decode(value any) (T, error)
}

type codecFuncs[T any] struct {
	encode func(T) (any, error)
	decode func(any) (T, error)
}

func (c codecFuncs[T]) Encode(value T) (any, error) { return c.encode(value) }

func (c codecFuncs[T]) Decode(value any) (T, error) { return c.decode(value) }

// CodecFunc builds a [Codec] from a pair of functions.
func CodecFunc[T any](encode func(T) (any, error), decode func(any) (T, error)) Codec[T] {
	if encode == nil || decode == nil {
		panic("gojaremote: codec functions must not be nil")
	}
	return codecFuncs[T]{encode: encode, decode: decode}
}

func identity[T any](value T) (any, error) { return value, nil }

// AnyCodec passes wire values through unchanged.
func AnyCodec() Codec[any] {
	return CodecFunc(identity[any], func(value any) (any, error) { return value, nil })
}

// StringCodec accepts only strings.
func StringCodec() Codec[string] {
	return CodecFunc(identity[string], func(value any) (string, error) {
		if s, ok := value.(string); ok {
			return s, nil
		}
		return "", &DecodeError{Value: value, Expect: "string"}
	})
}

// BoolCodec accepts only booleans.
func BoolCodec() Codec[bool] {
	return CodecFunc(identity[bool], func(value any) (bool, error) {
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return false, &DecodeError{Value: value, Expect: "boolean"}
	})
}

// IntCodec accepts integral numbers.
func IntCodec() Codec[int] {
	return CodecFunc(identity[int], func(value any) (int, error) {
		if n, ok := toInt(value); ok {
			return n, nil
		}
		return 0, &DecodeError{Value: value, Expect: "integer"}
	})
}

// FloatCodec accepts any number.
func FloatCodec() Codec[float64] {
	return CodecFunc(identity[float64], func(value any) (float64, error) {
		switch x := value.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		case int:
			return float64(x), nil
		}
		return 0, &DecodeError{Value: value, Expect: "number"}
	})
}

// HandleCodec accepts object references, and null as a nil handle. Decoded
// handles are owned by whoever receives them.
func HandleCodec() Codec[*Handle] {
	return CodecFunc(identity[*Handle], func(value any) (*Handle, error) {
		switch x := value.(type) {
		case nil:
			return nil, nil
		case *Handle:
			return x, nil
		}
		return nil, &DecodeError{Value: value, Expect: "object reference"}
	})
}

func toInt(value any) (int, bool) {
	switch x := value.(type) {
	case int64:
		if x < math.MinInt || x > math.MaxInt {
			return 0, false
		}
		return int(x), true
	case int:
		return x, true
	case float64:
		if x != math.Trunc(x) || x < math.MinInt || x >= math.MaxInt {
			return 0, false
		}
		return int(x), true
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, false
		}
		return toInt(n)
	}
	return 0, false
}

func intExtra(extra map[string]any, key string) (int, bool) {
	v, ok := extra[key]
	if !ok {
		return 0, false
	}
	return toInt(v)
}

func describe(value any) string {
	if value == nil {
		return "null"
	}
	return fmt.Sprintf("%T", value)
}
