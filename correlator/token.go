package correlator

import (
	"context"
	"errors"
	"sync"

	"github.com/heliotrope-markets/xstream/message"
)

// ErrCancelled is returned by Wait when the token was cancelled (typically
// because the connection carrying the eventual response was lost) before a
// response arrived.
var ErrCancelled = errors.New("correlator: token cancelled")

// Token is a single-assignment future resolved by exactly one of Complete,
// Fail, or Cancel. It is grounded on the pooled, id-tagged completion
// channel pattern used for correlating replies over a shared connection,
// adapted here to a plain (unpooled) channel since the correlator's own
// map already keys by id.
type Token struct {
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	msg message.Message
	err error
}

// NewToken returns a new, unresolved Token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Complete resolves the token successfully with msg. Only the first call
// among Complete/Fail/Cancel has any effect.
func (t *Token) Complete(msg message.Message) {
	t.once.Do(func() {
		t.mu.Lock()
		t.msg = msg
		t.mu.Unlock()
		close(t.done)
	})
}

// Fail resolves the token with an application error (typically
// *ErrorMessage). Only the first call among Complete/Fail/Cancel has any
// effect.
func (t *Token) Fail(err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}

// Cancel resolves the token with ErrCancelled. Only the first call among
// Complete/Fail/Cancel has any effect.
func (t *Token) Cancel() {
	t.once.Do(func() {
		t.mu.Lock()
		t.err = ErrCancelled
		t.mu.Unlock()
		close(t.done)
	})
}

// Wait blocks until the token is resolved or ctx is cancelled, whichever
// comes first.
func (t *Token) Wait(ctx context.Context) (message.Message, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.msg, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
