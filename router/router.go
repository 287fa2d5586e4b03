// Package router dispatches a message to the handler of the first matching
// route, in declared order, falling back to a sink if nothing matches.
package router

import (
	"context"
	"sync"

	"github.com/heliotrope-markets/xstream/message"
)

// Mode selects how a Route's pattern is compared against an incoming
// message.
type Mode int

const (
	// Lenient matches a route whose pattern is equal to or more general
	// than the message (message.EqualOrLess — the pattern's wildcards
	// generalize the message). This is the default: a route pattern with
	// wildcards matches concrete messages that fill them in.
	Lenient Mode = iota
	// Strict requires an exact field-for-field match (message.EqualExact).
	Strict
)

// Route pairs a pattern with the handler that should run when a message
// matches it.
type Route struct {
	Pattern message.Pattern
	Handler message.Handler
}

// Router holds an ordered list of routes plus a fallback sink. It
// implements message.Handler itself, so a Router can be nested as a route
// handler or bound into a chain.
type Router struct {
	mu     sync.RWMutex
	mode   Mode
	routes []Route
	sink   message.Handler
}

// New builds an empty Router in Lenient mode with a no-op sink.
func New() *Router {
	return &Router{
		mode: Lenient,
		sink: message.Sync(func(message.Message) (message.Result, error) {
			return message.Passed, nil
		}),
	}
}

// SetMode changes the match mode. Safe to call concurrently with Route; a
// Route call already in progress keeps the mode it started with.
func (r *Router) SetMode(m Mode) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = m
	return r
}

// SetSink installs the fallback handler run when no route matches.
func (r *Router) SetSink(h message.Handler) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = h
	return r
}

// Add appends a route to the end of the ordered list.
func (r *Router) Add(pattern message.Pattern, h message.Handler) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, Route{Pattern: pattern, Handler: h})
	return r
}

// Route walks the routes in order and invokes the first whose pattern
// matches msg under the router's Mode. If no route matches, or every
// matching route's handler passes, the sink runs.
func (r *Router) Route(ctx context.Context, msg message.Message) (message.Result, error) {
	r.mu.RLock()
	routes := make([]Route, len(r.routes))
	copy(routes, r.routes)
	mode := r.mode
	sink := r.sink
	r.mu.RUnlock()

	for _, route := range routes {
		matched, err := matches(mode, route.Pattern, msg)
		if err != nil {
			return message.Result{}, err
		}
		if !matched {
			continue
		}
		res, err := route.Handler.Handle(ctx, msg)
		if err != nil {
			return message.Result{}, err
		}
		if res.IsHandled() {
			return res, nil
		}
	}
	return sink.Handle(ctx, msg)
}

// Handle implements message.Handler, letting a Router act as a chain node
// or nested route handler.
func (r *Router) Handle(ctx context.Context, msg message.Message) (message.Result, error) {
	return r.Route(ctx, msg)
}

func matches(mode Mode, pattern message.Pattern, msg message.Message) (bool, error) {
	switch mode {
	case Strict:
		return message.EqualExact(pattern, msg)
	default:
		return message.EqualOrLess(pattern, msg)
	}
}
