package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestAllow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(1, 2, WithClock(clock.Now))

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "keys have separate buckets")

	clock.Advance(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestSweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(10, 10, WithClock(clock.Now))

	l.Allow("old")
	clock.Advance(5 * time.Minute)
	l.Allow("new")
	clock.Advance(6 * time.Minute)

	assert.Equal(t, 1, l.Sweep(10*time.Minute))
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 0, l.Sweep(10*time.Minute))
}
