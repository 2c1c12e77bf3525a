package gojaremote

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Envelope is the structured description of a remote failure, carried in
// the failure's message.
type Envelope struct {
	// Stack is the remote stack trace, nil when the remote side had none.
	Stack *string

	// Extra holds every field other than kind, name, message and stack.
	// Numbers are decoded as [json.Number].
	Extra map[string]any

	// Kind is the error name, never empty.
	Kind string

	Message string
}

// remoteMessager is implemented by failures whose message differs from
// their Error string, e.g. [ScriptError].
type remoteMessager interface {
	RemoteMessage() string
}

// UnpackEnvelope decodes the envelope carried by failure. It reports false,
// and never fails otherwise, when failure does not carry one.
//
// The message is taken from RemoteMessage when failure implements it, else
// from Error. A trailing [EnvelopeSuffix] is stripped. The remainder must be
// a JSON object with a non-empty string "kind" or "name" ("kind" wins), an
// optional string "message", and an optional string or null "stack".
func UnpackEnvelope(failure error) (*Envelope, bool) {
	if failure == nil {
		return nil, false
	}

	var message string
	if r, ok := failure.(remoteMessager); ok {
		message = r.RemoteMessage()
	} else {
		message = failure.Error()
	}
	message = strings.TrimSuffix(message, EnvelopeSuffix)

	data := []byte(message)
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return nil, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false
	}

	env := Envelope{Extra: make(map[string]any)}

	for _, key := range [...]string{"kind", "name"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			env.Kind = s
			break
		}
	}
	if env.Kind == "" {
		return nil, false
	}

	if raw, ok := fields["message"]; ok {
		if err := json.Unmarshal(raw, &env.Message); err != nil {
			return nil, false
		}
	}

	if raw, ok := fields["stack"]; ok {
		if err := json.Unmarshal(raw, &env.Stack); err != nil {
			return nil, false
		}
	}

	for key, raw := range fields {
		switch key {
		case "kind", "name", "message", "stack":
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, false
		}
		env.Extra[key] = v
	}

	return &env, true
}
