package supervisor

import (
	"context"
	"net/url"
	"time"

	"github.com/heliotrope-markets/xstream/signing"
	"github.com/heliotrope-markets/xstream/transport"
	"github.com/heliotrope-markets/xstream/xlog"
)

// Dialer opens a transport.Conn to u. Production code uses
// transport.DialNhooyr; tests substitute a fake dialer returning a
// transport.Fake, the same seam the teacher exposes as connCreator.
type Dialer func(ctx context.Context, u url.URL) (transport.Conn, error)

// Config is the Supervisor's construction-time configuration: the spec's
// "authentication required, URI, timeouts, behavior" bundle (§3).
type Config struct {
	// URI is the WebSocket endpoint to dial.
	URI string
	// AuthRequired gates the auth envelope exchange during Connect.
	AuthRequired bool
	// Envelope yields a fresh authentication envelope on demand. Required
	// when AuthRequired is true. The Supervisor never holds API
	// credentials itself, only this closure (§1).
	Envelope signing.EnvelopeFunc

	// AutoReconnect controls whether the routing loop's disconnected
	// handler attempts to reconnect or returns "stop" immediately.
	AutoReconnect bool
	// ReplaySubscriptions controls whether SendSubscribe/RequestSubscribe
	// registries are replayed after a successful reconnect.
	ReplaySubscriptions bool

	// ConnectTimeout bounds dialing the channel. Default 5s.
	ConnectTimeout time.Duration
	// SendTimeout bounds a single transport write. Default 5s.
	SendTimeout time.Duration
	// RecvTimeout bounds how long Request waits for its matching response.
	// Default 5s.
	RecvTimeout time.Duration
	// ProtocolTimeout bounds the greeting and auth-response reads during
	// Connect. Default 3s.
	ProtocolTimeout time.Duration
	// LivenessWindow is the maximum time the routing loop waits for any
	// inbound frame before treating the connection as dead. Default 18s.
	LivenessWindow time.Duration
	// HeartbeatEvery documents the server's expected ping cadence; the
	// Supervisor doesn't schedule anything off it directly (it reacts to
	// inbound pings), but it's surfaced for callers that want to alarm on
	// drift. Default 15s.
	HeartbeatEvery time.Duration

	// ReconnectBackoffMin/Max bound the uniform reconnect backoff sleep.
	// Defaults 100ms/3100ms, matching the spec's uniform(0.1, 3.1)s.
	ReconnectBackoffMin time.Duration
	ReconnectBackoffMax time.Duration

	// Name distinguishes correlation ids when multiple Supervisors share
	// a process (correlator.Config.Name).
	Name string

	// Dial opens the transport connection. Defaults to
	// transport.DialNhooyr; tests override this to dial a transport.Fake
	// instead of a real socket.
	Dial Dialer

	// Logger receives structured progress/error logs. Defaults to
	// xlog.Nop.
	Logger xlog.Logger
}

// withDefaults returns a copy of cfg with every zero-valued timeout (and
// Logger/Dial) filled from the spec's documented defaults (§3).
func (cfg Config) withDefaults() Config {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.RecvTimeout == 0 {
		cfg.RecvTimeout = 5 * time.Second
	}
	if cfg.ProtocolTimeout == 0 {
		cfg.ProtocolTimeout = 3 * time.Second
	}
	if cfg.LivenessWindow == 0 {
		cfg.LivenessWindow = 18 * time.Second
	}
	if cfg.HeartbeatEvery == 0 {
		cfg.HeartbeatEvery = 15 * time.Second
	}
	if cfg.ReconnectBackoffMin == 0 {
		cfg.ReconnectBackoffMin = 100 * time.Millisecond
	}
	if cfg.ReconnectBackoffMax == 0 {
		cfg.ReconnectBackoffMax = 3100 * time.Millisecond
	}
	if cfg.Dial == nil {
		cfg.Dial = func(ctx context.Context, u url.URL) (transport.Conn, error) {
			return transport.DialNhooyr(ctx, u)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = xlog.Nop
	}
	return cfg
}

func (cfg Config) validate() error {
	if cfg.URI == "" {
		return &ConfigError{Field: "URI"}
	}
	if _, err := url.Parse(cfg.URI); err != nil {
		return &ConfigError{Field: "URI", Err: err}
	}
	if cfg.AuthRequired && cfg.Envelope == nil {
		return &ConfigError{Field: "Envelope"}
	}
	return nil
}
