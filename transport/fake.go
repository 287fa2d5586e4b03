package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Fake's methods once Close has been called.
var ErrClosed = errors.New("transport: connection closed")

// ErrPingDisabled lets tests simulate a dead peer that never answers pings.
var ErrPingDisabled = errors.New("transport: ping disabled")

// ErrWriteDisabled lets tests simulate a write failure (e.g. a half-open
// socket) without tearing down the read side, isolating the routing loop's
// send-error path from its recv-failure path.
var ErrWriteDisabled = errors.New("transport: write disabled")

// Fake is an in-memory Conn used by supervisor tests in place of a real
// socket, grounded on the teacher's own mockConn test double.
type Fake struct {
	PingCh  chan struct{}
	ReadCh  chan []byte
	WriteCh chan []byte

	closeCh  chan struct{}
	closeOne sync.Once

	mu            sync.Mutex
	pingDisabled  bool
	writeDisabled bool
}

var _ Conn = (*Fake)(nil)

// NewFake returns a ready-to-use Fake with buffered channels.
func NewFake() *Fake {
	return &Fake{
		PingCh:  make(chan struct{}, 16),
		ReadCh:  make(chan []byte, 16),
		WriteCh: make(chan []byte, 16),
		closeCh: make(chan struct{}),
	}
}

// DisablePing makes subsequent Ping calls fail, simulating an unresponsive
// peer for liveness-timeout tests.
func (f *Fake) DisablePing(disabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingDisabled = disabled
}

// DisableWrite makes subsequent Write calls fail with ErrWriteDisabled
// without affecting Read, simulating a connection whose write side has
// died while reads keep working (or simply haven't noticed yet).
func (f *Fake) DisableWrite(disabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeDisabled = disabled
}

// Push injects data as if it had been read off the wire.
func (f *Fake) Push(data []byte) {
	f.ReadCh <- data
}

func (f *Fake) Close() error {
	f.closeOne.Do(func() { close(f.closeCh) })
	return nil
}

func (f *Fake) Ping(ctx context.Context) error {
	f.mu.Lock()
	disabled := f.pingDisabled
	f.mu.Unlock()
	if disabled {
		return ErrPingDisabled
	}
	select {
	case <-f.closeCh:
		return ErrClosed
	default:
	}
	select {
	case f.PingCh <- struct{}{}:
	default:
	}
	return nil
}

func (f *Fake) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data := <-f.ReadCh:
		return data, nil
	case <-f.closeCh:
		return nil, ErrClosed
	}
}

func (f *Fake) Write(ctx context.Context, data []byte) error {
	select {
	case <-f.closeCh:
		return ErrClosed
	default:
	}
	f.mu.Lock()
	disabled := f.writeDisabled
	f.mu.Unlock()
	if disabled {
		return ErrWriteDisabled
	}
	select {
	case f.WriteCh <- data:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
