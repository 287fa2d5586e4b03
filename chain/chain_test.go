package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliotrope-markets/xstream/message"
)

func passHandler() message.Handler {
	return message.Sync(func(message.Message) (message.Result, error) {
		return message.Passed, nil
	})
}

func tagHandler(tag string) message.Handler {
	return message.Sync(func(m message.Message) (message.Result, error) {
		out := m.Clone()
		out["handled_by"] = tag
		return message.Handled(out), nil
	})
}

func TestChainThreadsResultThroughSuccessor(t *testing.T) {
	c := New(tagHandler("first")).Bind(tagHandler("second"))

	res, err := c.Invoke(context.Background(), message.Message{"e": "trade"})
	require.NoError(t, err)
	require.True(t, res.IsHandled())
	// second runs on first's output, so its tag wins, and the original
	// fields carried through first's cloned message survive the handoff.
	assert.Equal(t, "second", res.Message()["handled_by"])
	assert.Equal(t, "trade", res.Message()["e"])
}

func TestChainStopsOnPass(t *testing.T) {
	ranSecond := false
	second := message.Sync(func(message.Message) (message.Result, error) {
		ranSecond = true
		return message.Handled(message.Message{}), nil
	})
	c := New(passHandler()).Bind(second)

	res, err := c.Invoke(context.Background(), message.Message{"e": "trade"})
	require.NoError(t, err)
	assert.False(t, res.IsHandled())
	assert.False(t, ranSecond, "a Passed node must prevent its successor from running (P9)")
}

func TestChainSingleNodeHandled(t *testing.T) {
	c := New(tagHandler("only"))

	res, err := c.Invoke(context.Background(), message.Message{"e": "trade"})
	require.NoError(t, err)
	require.True(t, res.IsHandled())
	assert.Equal(t, "only", res.Message()["handled_by"])
}

func TestChainPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	failing := message.HandlerFunc(func(context.Context, message.Message) (message.Result, error) {
		return message.Result{}, wantErr
	})
	c := New(tagHandler("first")).Bind(failing)

	_, err := c.Invoke(context.Background(), message.Message{})
	assert.ErrorIs(t, err, wantErr)
}
