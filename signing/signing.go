// Package signing produces the HMAC-SHA256 authentication envelope the
// Connection Supervisor transmits after the server's greeting, and the
// REST helper's request signature. Both reduce to the same primitive
// (crypto/hmac over crypto/sha256, lowercase hex) with different payload
// layouts, so one Signer serves both.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrMissingCredentials is a ConfigError-equivalent: fatal at construction,
// not recoverable by retrying.
var ErrMissingCredentials = errors.New("signing: key and secret are required")

// Envelope is the authentication message the Supervisor sends over the
// WebSocket after the server's connected greeting.
type Envelope struct {
	Key              string `json:"key"`
	TimestampSeconds int64  `json:"timestamp_seconds"`
	Signature        string `json:"signature"`
}

// Signer holds the long-lived API key/secret pair and produces fresh
// envelopes and REST signatures on demand. The Supervisor consumes it only
// through the narrow closure in NewEnvelopeFunc, never holding the secret
// itself.
type Signer struct {
	key    string
	secret string
}

// New builds a Signer. Both key and secret are required; this is the one
// configuration failure the signing package itself can detect.
func New(key, secret string) (*Signer, error) {
	if key == "" || secret == "" {
		return nil, ErrMissingCredentials
	}
	return &Signer{key: key, secret: secret}, nil
}

// Sign computes the WS auth envelope for the given Unix-seconds timestamp.
// Signature = HMAC-SHA256(secret, str(ts_s) + key), lowercase hex.
func (s *Signer) Sign(timestampSeconds int64) Envelope {
	payload := strconv.FormatInt(timestampSeconds, 10) + s.key
	return Envelope{
		Key:              s.key,
		TimestampSeconds: timestampSeconds,
		Signature:        sign(s.secret, payload),
	}
}

// SignNow is Sign using the current wall-clock time.
func (s *Signer) SignNow() Envelope {
	return s.Sign(time.Now().Unix())
}

// EnvelopeFunc is the closure shape the Supervisor expects: yields a fresh
// envelope on each call so the timestamp is always current.
type EnvelopeFunc func() Envelope

// NewEnvelopeFunc returns an EnvelopeFunc bound to s, the narrow contract
// the core consumes instead of holding the Signer itself.
func (s *Signer) NewEnvelopeFunc() EnvelopeFunc {
	return func() Envelope { return s.SignNow() }
}

// Key returns the API key half of the credential pair, safe to send
// alongside a signature (unlike the secret, which Signer never exposes).
func (s *Signer) Key() string {
	return s.key
}

// RESTSignature computes the REST helper's signature for the given
// millisecond timestamp and user id. Payload = str(ts_ms) + user_id + key,
// using the same HMAC-SHA256-lowercase-hex primitive as the WS envelope;
// an implementer must not mix up seconds and milliseconds between the two
// wire contracts.
func (s *Signer) RESTSignature(timestampMillis int64, userID string) string {
	payload := strconv.FormatInt(timestampMillis, 10) + userID + s.key
	return sign(s.secret, payload)
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// String renders the envelope's signature redacted, safe for logging.
func (e Envelope) String() string {
	return fmt.Sprintf("Envelope{Key: %s, TimestampSeconds: %d, Signature: <redacted>}", e.Key, e.TimestampSeconds)
}
