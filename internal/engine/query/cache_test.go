package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"validatetest/internal/engine/grammar"
)

func TestCacheHitAndMiss(t *testing.T) {
	c := NewCache(time.Minute, time.Minute)
	lang := grammar.ValidateTest()

	q1, hit, err := c.Compile(lang, `(structure_name) @name`)
	require.NoError(t, err)
	assert.False(t, hit)

	q2, hit, err := c.Compile(lang, `(structure_name) @name`)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, q1, q2)

	_, hit, err = c.Compile(grammar.Pipeline(), `(identifier) @name`)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, c.Len())

	c.Flush()
	assert.Equal(t, 0, c.Len())
}

func TestCacheDoesNotKeepErrors(t *testing.T) {
	c := NewCache(time.Minute, time.Minute)
	_, _, err := c.Compile(grammar.ValidateTest(), `(bogus)`)
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCacheKeySeparatesLanguages(t *testing.T) {
	a := cacheKey(grammar.ValidateTest(), "(x)")
	b := cacheKey(grammar.Pipeline(), "(x)")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, cacheKey(grammar.ValidateTest(), "(x)"))
	assert.NotEqual(t, a, cacheKey(nil, "(x)"))
}
