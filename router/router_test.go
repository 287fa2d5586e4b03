package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliotrope-markets/xstream/message"
)

func tagHandler(tag string) message.Handler {
	return message.Sync(func(m message.Message) (message.Result, error) {
		out := m.Clone()
		out["handled_by"] = tag
		return message.Handled(out), nil
	})
}

func TestRouteFirstMatchWins(t *testing.T) {
	r := New().
		Add(message.Pattern{"e": "trade", "oid": nil}, tagHandler("trade")).
		Add(message.Pattern{"e": nil}, tagHandler("catch-all"))

	res, err := r.Route(context.Background(), message.Message{"e": "trade", "oid": "abc"})
	require.NoError(t, err)
	require.True(t, res.IsHandled())
	assert.Equal(t, "trade", res.Message()["handled_by"])
}

func TestRouteFallsToCatchAll(t *testing.T) {
	r := New().
		Add(message.Pattern{"e": "trade"}, tagHandler("trade")).
		Add(message.Pattern{"e": nil}, tagHandler("catch-all"))

	res, err := r.Route(context.Background(), message.Message{"e": "ping"})
	require.NoError(t, err)
	require.True(t, res.IsHandled())
	assert.Equal(t, "catch-all", res.Message()["handled_by"])
}

func TestRouteNoMatchRunsSink(t *testing.T) {
	sinkRan := false
	r := New().Add(message.Pattern{"e": "trade"}, tagHandler("trade"))
	r.SetSink(message.Sync(func(message.Message) (message.Result, error) {
		sinkRan = true
		return message.Passed, nil
	}))

	res, err := r.Route(context.Background(), message.Message{"e": "ping"})
	require.NoError(t, err)
	assert.False(t, res.IsHandled())
	assert.True(t, sinkRan)
}

func TestRouteStrictModeRejectsWildcard(t *testing.T) {
	r := New().SetMode(Strict).
		Add(message.Pattern{"e": "trade", "oid": nil}, tagHandler("trade"))

	res, err := r.Route(context.Background(), message.Message{"e": "trade", "oid": "abc"})
	require.NoError(t, err)
	assert.False(t, res.IsHandled())
}

func TestRouterImplementsHandler(t *testing.T) {
	r := New().Add(message.Pattern{"e": "trade"}, tagHandler("trade"))
	var h message.Handler = r

	res, err := h.Handle(context.Background(), message.Message{"e": "trade"})
	require.NoError(t, err)
	assert.True(t, res.IsHandled())
}
