package signing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignDeterministic(t *testing.T) {
	s, err := New("1WZbtMTbMbo2NsW12vOz9IuPM", "1IuUeW4IEWatK87zBTENHj1T17s")
	require.NoError(t, err)

	env := s.Sign(1448034533)
	assert.Equal(t, "7d581adb01ad22f1ed38e1159a7f08ac5d83906ae1a42fe17e7d977786fe9694", env.Signature)
	assert.Equal(t, "1WZbtMTbMbo2NsW12vOz9IuPM", env.Key)
	assert.EqualValues(t, 1448034533, env.TimestampSeconds)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New("", "secret")
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = New("key", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestEnvelopeFuncYieldsFreshTimestamp(t *testing.T) {
	s, err := New("key", "secret")
	require.NoError(t, err)

	f := s.NewEnvelopeFunc()
	env := f()
	assert.Equal(t, "key", env.Key)
	assert.NotEmpty(t, env.Signature)
}

func TestEnvelopeStringRedactsSignature(t *testing.T) {
	s, err := New("key", "secret")
	require.NoError(t, err)
	env := s.Sign(1)
	assert.NotContains(t, env.String(), env.Signature)
}
