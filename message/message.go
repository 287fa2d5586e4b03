// Package message defines the wire message tree, the wildcard pattern
// matcher used to route it, and the explicit handled/passed result that
// handlers return.
package message

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Message is a tree of named fields whose leaves are strings, numbers,
// booleans, nil, or further trees. It is the in-memory shape produced by
// decoding a JSON object with encoding/json into interface{}.
type Message map[string]any

// Pattern is a Message in which a nil leaf acts as a wildcard, matching any
// leaf value at that position.
type Pattern = Message

// Decode parses a JSON frame into a Message. Non-object top-level JSON is a
// protocol error, since every frame on this wire is an object (§6).
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("message: decode: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("message: decode: top-level JSON value is not an object")
	}
	return m, nil
}

// Encode serializes m to its wire JSON form.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(map[string]any(m))
}

// Clone returns a deep copy of m so callers can mutate it (e.g. to stamp a
// correlation id) without aliasing the caller's original.
func (m Message) Clone() Message {
	return cloneValue(m).(Message)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Message:
		out := make(Message, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case map[string]any:
		out := make(Message, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// Get reads the value at a slash-delimited field path, e.g. "data/oid".
// It reports ok=false if any segment along the path is missing or not a
// mapping.
func (m Message) Get(path string) (any, bool) {
	segs := splitPath(path)
	var cur any = map[string]any(m)
	for _, s := range segs {
		asMap, ok := asMapping(cur)
		if !ok {
			return nil, false
		}
		v, ok := asMap[s]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// GetString is a convenience wrapper around Get for the common case of
// reading a string leaf (operation names, correlation ids).
func (m Message) GetString(path string) (string, bool) {
	v, ok := m.Get(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set writes value at a slash-delimited field path, creating intermediate
// maps as needed. Set mutates m in place.
func (m Message) Set(path string, value any) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("message: empty path")
	}
	cur := map[string]any(m)
	for _, s := range segs[:len(segs)-1] {
		next, ok := cur[s]
		if !ok {
			nm := make(map[string]any)
			cur[s] = nm
			cur = nm
			continue
		}
		nm, ok := asMapping(next)
		if !ok {
			return fmt.Errorf("message: path segment %q is not a mapping", s)
		}
		cur = nm
	}
	cur[segs[len(segs)-1]] = value
	return nil
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func asMapping(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case Message:
		return t, true
	case map[string]any:
		return t, true
	default:
		return nil, false
	}
}

// AsMessage reports whether v is a nested mapping (a sub-tree), returning it
// as a Message. A Message decoded from JSON has Message as its top-level
// type but plain map[string]any for every nested object (encoding/json only
// applies a named map type at the field it was asked to decode into), so
// callers reading a nested field's value (e.g. a "data" payload) must accept
// either representation rather than asserting straight to Message.
func AsMessage(v any) (Message, bool) {
	m, ok := asMapping(v)
	if !ok {
		return nil, false
	}
	return Message(m), true
}

// Result is the explicit tagged outcome of a Handler: either a handled
// message to forward down a chain, or the Passed sentinel meaning "route to
// the next candidate". Using a distinct type (rather than reusing nil, as
// the wildcard marker does) removes the ambiguity the spec's design notes
// call out: a handler that genuinely produces a nil payload is never
// misread as declining.
type Result struct {
	handled bool
	message Message
}

// Passed is returned by a Handler that declines to handle a message.
var Passed = Result{}

// Handled wraps msg as a handled result.
func Handled(msg Message) Result {
	return Result{handled: true, message: msg}
}

// IsHandled reports whether the result represents a handled message.
func (r Result) IsHandled() bool { return r.handled }

// Message returns the handled message. Only meaningful when IsHandled is
// true.
func (r Result) Message() Message { return r.message }

// Handler is anything that can process a Message and either hand back a
// transformed Message (Handled) or decline (Passed). Context carries
// cancellation the way every blocking operation in this codebase does.
type Handler interface {
	Handle(ctx context.Context, msg Message) (Result, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) (Result, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) (Result, error) {
	return f(ctx, msg)
}

// Sync wraps a synchronous, context-free transform into a Handler. It is the
// "trivial adapter at construction time" the spec's design notes call for:
// built once when the handler is registered, not on every invocation.
func Sync(f func(Message) (Result, error)) Handler {
	return HandlerFunc(func(_ context.Context, msg Message) (Result, error) {
		return f(msg)
	})
}
