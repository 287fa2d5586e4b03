// Package transport defines the narrow connection seam the supervisor
// package depends on, plus a nhooyr.io/websocket-backed implementation of
// it. Tests substitute an in-memory fake instead of dialing a real socket.
package transport

import (
	"context"
	"time"
)

// Conn is a single bidirectional text-frame connection. Implementations
// need not be safe for concurrent Write calls from multiple goroutines;
// the supervisor serializes writes with a mutex.
type Conn interface {
	// Close closes the connection.
	Close() error
	// Ping sends a protocol-level ping and waits for the peer's pong.
	Ping(ctx context.Context) error
	// Read blocks until a single text frame is available.
	Read(ctx context.Context) ([]byte, error)
	// Write sends a single text frame.
	Write(ctx context.Context, data []byte) error
}

// Default timeouts for the nhooyr-backed implementation. Exposed as vars,
// matching the teacher's pattern of overridable package-level timeouts
// rather than baked-in constants, so tests can shrink them.
var (
	WriteWait  = 5 * time.Second
	PongWait   = 5 * time.Second
	DialWait   = 3 * time.Second
	PingPeriod = 10 * time.Second
)
