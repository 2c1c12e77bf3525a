package gojaremote

import (
	_ "embed"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-utilpkg/jsonenc"
)

const (
	// HelperModuleName is the name the helper module is registered and
	// required under.
	HelperModuleName = "goja-remote/helper"

	// EnvelopeSuffix terminates a serialised [Envelope] in a failure
	// message. It is the record separator of JSON text sequences (RFC 7464).
	EnvelopeSuffix = "\x1e"
)

var errHelperFactory = errors.New("gojaremote: helper module did not evaluate to a function")

//go:embed helper.js
var helperSource string

var helperProgram = sync.OnceValues(func() (*goja.Program, error) {
	return goja.Compile(HelperModuleName, helperSource, true)
})

// setupHelper evaluates the helper module into exports.
func setupHelper(runtime *goja.Runtime, exports *goja.Object) error {
	program, err := helperProgram()
	if err != nil {
		return err
	}
	factory, err := runtime.RunProgram(program)
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(factory)
	if !ok {
		return errHelperFactory
	}
	native := runtime.NewObject()
	_ = native.Set("envelope", func(call goja.FunctionCall) goja.Value {
		return runtime.ToValue(encodeEnvelope(call.Argument(0)))
	})
	_, err = fn(goja.Undefined(), exports, native)
	return err
}

// encodeEnvelope serialises a thrown value as an envelope, suffix included.
func encodeEnvelope(thrown goja.Value) string {
	name, message := "Error", ""
	var (
		stack    string
		hasStack bool
		extra    []byte
	)

	if obj, ok := thrown.(*goja.Object); ok {
		if v := obj.Get("name"); present(v) && v.String() != "" {
			name = v.String()
		}
		if v := obj.Get("message"); present(v) {
			message = v.String()
		}
		if v := obj.Get("stack"); present(v) {
			stack, hasStack = formatStack(v.String()), true
		}
		for _, key := range obj.Keys() {
			switch key {
			case "name", "message", "stack", "kind":
				continue
			}
			b, err := json.Marshal(exportQuiet(obj.Get(key)))
			if err != nil {
				continue
			}
			extra = append(extra, ',')
			extra = jsonenc.AppendString(extra, key)
			extra = append(extra, ':')
			extra = append(extra, b...)
		}
	} else if present(thrown) {
		message = thrown.String()
	}

	b := make([]byte, 0, 64+len(message)+len(stack)+len(extra))
	b = append(b, `{"name":`...)
	b = jsonenc.AppendString(b, name)
	b = append(b, `,"message":`...)
	b = jsonenc.AppendString(b, message)
	b = append(b, `,"stack":`...)
	if hasStack {
		b = jsonenc.AppendString(b, stack)
	} else {
		b = append(b, `null`...)
	}
	b = append(b, extra...)
	b = append(b, '}')
	return string(b) + EnvelopeSuffix
}

func present(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}

// gojaFramePattern matches goja's stack lines, e.g.
// "\tat fn (file.js:1:2(3))" or "\tat file.js:1:2(3)".
var gojaFramePattern = regexp.MustCompile(`^at (?:(.*) \()?(.*):(\d+):(\d+)\(\d+\)\)?$`)

// formatStack rewrites a goja stack trace to fn@file:line:col lines. Lines
// that are not script frames are dropped.
func formatStack(stack string) string {
	var b strings.Builder
	for line := range strings.SplitSeq(stack, "\n") {
		m := gojaFramePattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if b.Len() != 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m[1])
		b.WriteByte('@')
		b.WriteString(m[2])
		b.WriteByte(':')
		b.WriteString(m[3])
		b.WriteByte(':')
		b.WriteString(m[4])
	}
	return b.String()
}
