package supervisor

import "fmt"

// ConfigError is fatal at construction time: a required field of Config is
// missing or internally inconsistent.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("supervisor: config: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("supervisor: config: %s is required", e.Field)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ProtocolError means the wire format was violated, or the greeting/auth
// exchange had an unexpected shape. It is never recovered: it propagates
// out of Connect and out of the routing loop, ending the session.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("supervisor: protocol error: %s", e.Reason)
}

// AuthError means the server rejected the authentication envelope.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("supervisor: auth error: %s", e.Reason)
}

// ConnectivityError is a transport-level failure surfaced to Send/Request
// callers. It is recoverable iff Config.AutoReconnect is true, in which
// case the routing loop's disconnected handler takes over.
type ConnectivityError struct {
	Reason string
	Err    error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("supervisor: connectivity error: %s", e.Reason)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// TimeoutError means a Request call did not observe a matching response
// within its bound. The correlator entry is left in place per the spec's
// relaxed cleanup policy for timeouts (benign if a late response arrives
// for a token nobody is waiting on any longer).
type TimeoutError struct {
	CorrelationHint string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("supervisor: request timed out waiting for response (%s)", e.CorrelationHint)
}

// ErrAlreadyRunning is returned by Run if it is called more than once on
// the same Supervisor, enforcing invariant I2 (exactly one routing loop
// per instance).
var ErrAlreadyRunning = &ConfigError{Field: "Run", Err: fmt.Errorf("routing loop already started")}
