package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"nhooyr.io/websocket"
)

// nhooyrConn adapts nhooyr.io/websocket to Conn, sending and receiving
// JSON text frames (the wire format this client speaks, unlike the binary
// msgpack frames some realtime market-data APIs use).
type nhooyrConn struct {
	conn *websocket.Conn
}

// DialOption customizes DialNhooyr beyond its defaults.
type DialOption func(*websocket.DialOptions, http.Header)

// WithHeader sets an additional HTTP header sent with the dial request.
func WithHeader(key, value string) DialOption {
	return func(_ *websocket.DialOptions, h http.Header) {
		h.Set(key, value)
	}
}

// DialNhooyr opens a websocket connection to u and returns a Conn backed by
// it. The read limit is left unbounded since some exchange payloads (order
// book snapshots) can be large.
func DialNhooyr(ctx context.Context, u url.URL, opts ...DialOption) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, DialWait)
	defer cancel()

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	dialOpts := &websocket.DialOptions{
		CompressionMode: websocket.CompressionContextTakeover,
		HTTPHeader:      header,
	}
	for _, opt := range opts {
		opt(dialOpts, header)
	}
	dialOpts.HTTPHeader = header

	c, _, err := websocket.Dial(dialCtx, u.String(), dialOpts)
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	c.SetReadLimit(-1)

	return &nhooyrConn{conn: c}, nil
}

func (c *nhooyrConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *nhooyrConn) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, PongWait)
	defer cancel()
	return c.conn.Ping(pingCtx)
}

func (c *nhooyrConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *nhooyrConn) Write(ctx context.Context, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, WriteWait)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}
