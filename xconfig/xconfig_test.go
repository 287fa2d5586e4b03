package xconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"XSTREAM_URI", "XSTREAM_KEY", "XSTREAM_SECRET",
		"XSTREAM_AUTH_REQUIRED", "XSTREAM_AUTO_RECONNECT", "XSTREAM_REPLAY_SUBSCRIPTIONS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadRequiresURI(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "XSTREAM_URI", cfgErr.Field)
}

func TestLoadRequiresCredentialsWhenAuthRequired(t *testing.T) {
	clearEnv(t)
	t.Setenv("XSTREAM_URI", "wss://example.com/ws")

	_, err := Load()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadSucceedsWithAuthDisabled(t *testing.T) {
	clearEnv(t)
	t.Setenv("XSTREAM_URI", "wss://example.com/ws")
	t.Setenv("XSTREAM_AUTH_REQUIRED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.AuthRequired)
	assert.Equal(t, "wss://example.com/ws", cfg.URI)
}

func TestDefaultTimeouts(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 5e9, float64(cfg.ConnectTimeout))
	assert.Equal(t, 18e9, float64(cfg.LivenessWindow))
}

func TestLoadRejectsMalformedBool(t *testing.T) {
	clearEnv(t)
	t.Setenv("XSTREAM_URI", "wss://example.com/ws")
	t.Setenv("XSTREAM_AUTH_REQUIRED", "not-a-bool")

	_, err := Load()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "XSTREAM_AUTH_REQUIRED", cfgErr.Field)
}
