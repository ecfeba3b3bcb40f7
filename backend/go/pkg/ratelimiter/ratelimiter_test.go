package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time {
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.t = f.t.Add(d)
}

func TestTokenBucketRefills(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	tb := newTokenBucketWithClock(1, 2, clk.now)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	clk.advance(time.Second)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestFixedWindowResets(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	fw := newFixedWindowWithClock(2, time.Minute, clk.now)

	assert.True(t, fw.Allow())
	assert.True(t, fw.Allow())
	assert.False(t, fw.Allow())

	clk.advance(time.Minute)
	assert.True(t, fw.Allow())
}

func TestKeyedIsolatesCallers(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	k := NewKeyed(func() RateLimiter { return newFixedWindowWithClock(1, time.Minute, clk.now) }, time.Minute)
	k.now = clk.now

	assert.True(t, k.Allow("alice"))
	assert.False(t, k.Allow("alice"))
	assert.True(t, k.Allow("bob"))
	assert.Equal(t, 2, k.Len())

	clk.advance(2 * time.Minute)
	assert.True(t, k.Allow("bob"))
	assert.Equal(t, 1, k.Prune())
	assert.Equal(t, 1, k.Len())
}

func TestNewFactory(t *testing.T) {
	f, err := NewFactory("fixedWindow", 0, 0, 1, time.Minute)
	require.NoError(t, err)
	l := f()
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	_, err = NewFactory("leakyBucket", 0, 0, 0, 0)
	assert.Error(t, err)
}
