// Package ctxtime provides the context-aware reconnect backoff sleep used
// by the Connection Supervisor between reconnect attempts.
package ctxtime

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff sleeps for a duration drawn uniformly from [min, max), or until
// ctx is cancelled, whichever comes first. Used between reconnect attempts
// so that many clients reconnecting at once don't all retry in lockstep.
func Backoff(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d = min + time.Duration(rand.Int64N(int64(max-min)))
	}

	if ctx == nil || d <= 0 {
		time.Sleep(d)
		return nil
	}

	t := time.NewTimer(d)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-t.C:
	}
	return nil
}
