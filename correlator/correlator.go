// Package correlator stamps outgoing request messages with a unique
// correlation id and resolves a completion Token when the matching response
// arrives. It is grounded on the pending-map-by-id pattern used by
// connection managers for request/response exchanges over a single
// streaming socket.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heliotrope-markets/xstream/message"
)

// InvalidMessage signals a structural failure extracting a required field
// from a message. Mark returns it to its caller when a configured op-name
// path cannot be read. A Resolve chain may also raise it (Invoke's own oid
// lookup does not, treating a missing/unknown oid as "not handled" so
// routing can continue past the correlator); from there it is swallowed
// into the completion token rather than propagated.
type InvalidMessage struct {
	Path string
}

func (e *InvalidMessage) Error() string {
	return fmt.Sprintf("correlator: missing or malformed field %q", e.Path)
}

// ErrorMessage wraps a response the exchange flagged as an application
// error (e.g. a reject), delivered to the caller's Token via Fail rather
// than as a handler error.
type ErrorMessage struct {
	Response message.Message
}

func (e *ErrorMessage) Error() string {
	return "correlator: response carries an application error"
}

// Config configures where a Correlator finds the operation name and
// correlation key on outgoing and incoming messages. Every path is a
// slash-delimited field path resolved with message.Message.Get/Set.
type Config struct {
	// Name identifies this correlator in generated ids (e.g. the
	// connection or client name), distinguishing ids across multiple
	// correlators sharing a process.
	Name string
	// OpNameGetPath reads the operation name from an outgoing request,
	// used to build a human-legible correlation id.
	OpNameGetPath string
	// KeySetPath is where the generated correlation id is written on an
	// outgoing request.
	KeySetPath string
	// KeyGetPath is where the correlation id is read back from an
	// incoming response.
	KeyGetPath string
	// Resolve, if set, post-processes a matched response before the token
	// is completed (validation, payload extraction). If it returns
	// *ErrorMessage or *InvalidMessage, that error is delivered via
	// Token.Fail instead of propagating out of Invoke; any other error
	// propagates out of Invoke unchanged.
	Resolve func(message.Message) (message.Message, error)
}

type entry struct {
	token *Token
}

// Correlator assigns unique correlation ids to outgoing requests and
// resolves completion tokens when responses carrying the same id arrive.
type Correlator struct {
	cfg     Config
	base    int64
	counter atomic.Uint64

	mu      sync.Mutex
	pending map[string]entry

	resolveMu sync.RWMutex
	resolve   func(message.Message) (message.Message, error)
}

// New builds a Correlator. The millisecond timestamp captured here is used
// as the fixed prefix of every generated id for this Correlator's lifetime.
func New(cfg Config) *Correlator {
	return &Correlator{
		cfg:     cfg,
		base:    time.Now().UnixMilli(),
		pending: make(map[string]entry),
		resolve: cfg.Resolve,
	}
}

// SetResolve replaces the post-resolution step applied to a matched
// response before its token is completed. Safe to call while Invoke may be
// running concurrently; takes effect on the next Invoke call.
func (c *Correlator) SetResolve(fn func(message.Message) (message.Message, error)) {
	c.resolveMu.Lock()
	defer c.resolveMu.Unlock()
	c.resolve = fn
}

// Mark stamps a clone of request with a freshly generated correlation id,
// registers token to be resolved when the matching response arrives, and
// returns the stamped clone to send. Ids are of the form
// "<base>_<counter>_<name><opname>" and are never reused within the
// process's lifetime because counter only increments.
//
// Reading op_name only fails the whole call when OpNameGetPath is
// configured at all; an unconfigured path (empty string) means the caller
// never wanted an op-name suffix, so it degrades to "" rather than erroring.
func (c *Correlator) Mark(request message.Message, token *Token) (message.Message, error) {
	var opName string
	if c.cfg.OpNameGetPath != "" {
		var ok bool
		opName, ok = request.GetString(c.cfg.OpNameGetPath)
		if !ok {
			return nil, &InvalidMessage{Path: c.cfg.OpNameGetPath}
		}
	}

	id := fmt.Sprintf("%d_%d_%s%s", c.base, c.counter.Add(1), c.cfg.Name, opName)

	stamped := request.Clone()
	if err := stamped.Set(c.cfg.KeySetPath, id); err != nil {
		return nil, fmt.Errorf("correlator: stamping id: %w", err)
	}

	c.mu.Lock()
	c.pending[id] = entry{token: token}
	c.mu.Unlock()

	return stamped, nil
}

// Invoke is a message.Handler suitable for registration as a router route:
// it looks up the response's correlation id. A missing field or an id with
// no pending entry both yield Passed, letting routing continue past the
// correlator rather than treating either as an error. Otherwise it removes
// the table entry and resolves the token, in that order, so that a second
// response carrying the same id can never observe a still-pending entry
// (the remove-then-resolve ordering is a deliberate invariant, not an
// implementation accident).
func (c *Correlator) Invoke(_ context.Context, resp message.Message) (message.Result, error) {
	id, ok := resp.GetString(c.cfg.KeyGetPath)
	if !ok {
		return message.Passed, nil
	}

	c.mu.Lock()
	e, found := c.pending[id]
	if found {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !found {
		return message.Passed, nil
	}

	c.resolveMu.RLock()
	resolveFn := c.resolve
	c.resolveMu.RUnlock()

	resolved := resp
	if resolveFn != nil {
		out, err := resolveFn(resp)
		if err != nil {
			var em *ErrorMessage
			var im *InvalidMessage
			if errors.As(err, &em) || errors.As(err, &im) {
				e.token.Fail(err)
				return message.Handled(resp), nil
			}
			return message.Result{}, err
		}
		resolved = out
	}

	e.token.Complete(resolved)
	return message.Handled(resolved), nil
}

// Clear cancels every outstanding token, e.g. on disconnect, so that no
// caller waiting on a Token (a Request variant) blocks forever on a response
// that can never arrive on the closed connection.
func (c *Correlator) Clear() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]entry)
	c.mu.Unlock()

	for _, e := range pending {
		e.token.Cancel()
	}
}

// Pending reports the number of requests awaiting a response. Primarily
// useful in tests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
