// Package xconfig loads Supervisor and REST configuration from the
// environment, optionally seeded from a .env file, matching the teacher's
// os.Getenv-with-defaults style but centralizing it instead of scattering
// it through functional options.
package xconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ConfigError is fatal at construction: a required field is missing or
// cannot be parsed.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xconfig: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("xconfig: %s is required", e.Field)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config holds everything the Supervisor and signing packages need to
// establish and authenticate a session.
type Config struct {
	URI    string
	Key    string
	Secret string

	AuthRequired        bool
	AutoReconnect       bool
	ReplaySubscriptions bool

	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	RecvTimeout    time.Duration
	ProtocolWait   time.Duration
	LivenessWindow time.Duration
	HeartbeatEvery time.Duration

	ReconnectBackoffMin time.Duration
	ReconnectBackoffMax time.Duration
}

// Default returns the spec's documented default timeouts with no URI or
// credentials set; callers fill those in via Load or explicitly.
func Default() Config {
	return Config{
		AuthRequired:        true,
		AutoReconnect:       true,
		ReplaySubscriptions: true,
		ConnectTimeout:      5 * time.Second,
		SendTimeout:         5 * time.Second,
		RecvTimeout:         5 * time.Second,
		ProtocolWait:        3 * time.Second,
		LivenessWindow:      18 * time.Second,
		HeartbeatEvery:      15 * time.Second,
		ReconnectBackoffMin: 100 * time.Millisecond,
		ReconnectBackoffMax: 3100 * time.Millisecond,
	}
}

// Load loads a .env file if present (silently ignored if absent, matching
// godotenv's documented behavior for optional local development use), then
// populates Config from environment variables layered over Default.
// XSTREAM_URI, XSTREAM_KEY, and XSTREAM_SECRET are required when
// AuthRequired is left at its default of true.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	cfg.URI = os.Getenv("XSTREAM_URI")
	cfg.Key = os.Getenv("XSTREAM_KEY")
	cfg.Secret = os.Getenv("XSTREAM_SECRET")

	if v := os.Getenv("XSTREAM_AUTH_REQUIRED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, &ConfigError{Field: "XSTREAM_AUTH_REQUIRED", Err: err}
		}
		cfg.AuthRequired = b
	}
	if v := os.Getenv("XSTREAM_AUTO_RECONNECT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, &ConfigError{Field: "XSTREAM_AUTO_RECONNECT", Err: err}
		}
		cfg.AutoReconnect = b
	}
	if v := os.Getenv("XSTREAM_REPLAY_SUBSCRIPTIONS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, &ConfigError{Field: "XSTREAM_REPLAY_SUBSCRIPTIONS", Err: err}
		}
		cfg.ReplaySubscriptions = b
	}

	if cfg.URI == "" {
		return Config{}, &ConfigError{Field: "XSTREAM_URI"}
	}
	if cfg.AuthRequired && (cfg.Key == "" || cfg.Secret == "") {
		return Config{}, &ConfigError{Field: "XSTREAM_KEY/XSTREAM_SECRET"}
	}

	return cfg, nil
}
