package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareWildcard(t *testing.T) {
	p := Message{"e": "trade", "oid": nil}
	target := Message{"e": "trade", "oid": "123"}

	ord, err := Compare(p, target)
	require.NoError(t, err)
	assert.Equal(t, Less, ord)

	less, err := EqualOrLess(p, target)
	require.NoError(t, err)
	assert.True(t, less)

	exact, err := EqualExact(p, target)
	require.NoError(t, err)
	assert.False(t, exact)
}

func TestCompareExact(t *testing.T) {
	p := Message{"e": "ping"}
	target := Message{"e": "ping"}

	ord, err := Compare(p, target)
	require.NoError(t, err)
	assert.Equal(t, Equal, ord)

	exact, err := EqualExact(p, target)
	require.NoError(t, err)
	assert.True(t, exact)
}

func TestCompareMismatchedField(t *testing.T) {
	p := Message{"e": "trade"}
	target := Message{"e": "ping"}

	ord, err := Compare(p, target)
	require.NoError(t, err)
	assert.Equal(t, Incomparable, ord)
}

func TestCompareMissingField(t *testing.T) {
	// p carries a field target doesn't have: target's keys are a subset of
	// p's, so target is the more general side (Greater), not Incomparable —
	// extra keys on the pattern side are exactly what equal_or_greater
	// allows.
	p := Message{"e": "trade", "side": "buy"}
	target := Message{"e": "trade"}

	ord, err := Compare(p, target)
	require.NoError(t, err)
	assert.Equal(t, Greater, ord)
}

func TestCompareExtraKeyOnTargetIsLess(t *testing.T) {
	// The router's core lenient-match scenario: a pattern with fewer keys
	// than the message it's matched against is still Less (a valid
	// generalization), not Incomparable.
	p := Message{"e": "connected"}
	target := Message{"e": "connected", "extra": "x"}

	ord, err := Compare(p, target)
	require.NoError(t, err)
	assert.Equal(t, Less, ord)

	less, err := EqualOrLess(p, target)
	require.NoError(t, err)
	assert.True(t, less)
}

func TestCompareNested(t *testing.T) {
	p := Message{"e": "order", "data": Message{"price": nil, "side": "buy"}}
	target := Message{"e": "order", "data": Message{"price": 10.5, "side": "buy"}}

	ord, err := Compare(p, target)
	require.NoError(t, err)
	assert.Equal(t, Less, ord)
}

func TestCompareSlice(t *testing.T) {
	p := Message{"tags": []any{"a", nil}}
	target := Message{"tags": []any{"a", "b"}}

	ord, err := Compare(p, target)
	require.NoError(t, err)
	assert.Equal(t, Less, ord)
}

func TestCompareGreater(t *testing.T) {
	p := Message{"e": "trade", "oid": "123"}
	target := Message{"e": "trade", "oid": nil}

	ord, err := Compare(p, target)
	require.NoError(t, err)
	assert.Equal(t, Greater, ord)

	greater, err := EqualOrGreater(p, target)
	require.NoError(t, err)
	assert.True(t, greater)
}

func TestCompareRecursionLimit(t *testing.T) {
	var deep any = "leaf"
	for i := 0; i < maxDepth+5; i++ {
		deep = map[string]any{"n": deep}
	}
	p := deep.(map[string]any)
	target := deep.(map[string]any)

	_, err := compareValue(p, target, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecursionLimit)
}

func TestGetSetPath(t *testing.T) {
	m := Message{}
	require.NoError(t, m.Set("data/oid", "abc"))

	v, ok := m.Get("data/oid")
	require.True(t, ok)
	assert.Equal(t, "abc", v)

	s, ok := m.GetString("data/oid")
	require.True(t, ok)
	assert.Equal(t, "abc", s)

	_, ok = m.Get("data/missing")
	assert.False(t, ok)
}

func TestCloneIsDeep(t *testing.T) {
	m := Message{"data": Message{"oid": "abc"}}
	c := m.Clone()
	c["data"].(Message)["oid"] = "xyz"

	orig, _ := m.GetString("data/oid")
	assert.Equal(t, "abc", orig)
}
