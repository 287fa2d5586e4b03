// Package chain implements a composable single-input/single-output
// transformer pipeline over message.Handler. Each node's Handled result is
// handed to its successor as input; the first Passed result short-circuits
// the rest of the chain.
package chain

import (
	"context"

	"github.com/heliotrope-markets/xstream/message"
)

// Chain is one node in a linked list of handlers. The zero value is a chain
// that returns its input unchanged as a Handled result.
type Chain struct {
	handler   message.Handler
	successor *Chain
}

// New builds a chain whose first node runs h.
func New(h message.Handler) *Chain {
	return &Chain{handler: h}
}

// Bind appends h as a new tail node and returns the head, so calls chain
// fluently: chain.New(a).Bind(b).Bind(c).
func (c *Chain) Bind(h message.Handler) *Chain {
	tail := c
	for tail.successor != nil {
		tail = tail.successor
	}
	tail.successor = &Chain{handler: h}
	return c
}

// Handle implements message.Handler by running the chain, so a *Chain can
// be bound as a route handler, a router sink, or nested inside another
// chain without an adapter.
func (c *Chain) Handle(ctx context.Context, msg message.Message) (message.Result, error) {
	return c.Invoke(ctx, msg)
}

// Invoke runs the chain from c. Each node's handler transforms msg in turn;
// a Passed result stops the walk immediately and is returned as-is (a node
// declining means there is nothing left to hand the successor), while a
// Handled result is threaded into the successor as its input, continuing
// the transformation until a node passes, a node errors, or the chain is
// exhausted.
func (c *Chain) Invoke(ctx context.Context, msg message.Message) (message.Result, error) {
	node := c
	res := message.Handled(msg)
	for node != nil {
		if node.handler == nil {
			node = node.successor
			continue
		}
		var err error
		res, err = node.handler.Handle(ctx, res.Message())
		if err != nil {
			return message.Result{}, err
		}
		if !res.IsHandled() {
			return res, nil
		}
		node = node.successor
	}
	return res, nil
}

// Sync adapts a synchronous, context-free transform into a Handler, built
// once at registration time rather than wrapped on every call.
func Sync(f func(message.Message) (message.Result, error)) message.Handler {
	return message.Sync(f)
}
