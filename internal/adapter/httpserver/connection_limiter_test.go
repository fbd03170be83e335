package httpserver

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestConnectionLimits_GlobalCap(t *testing.T) {
	limits := NewConnectionLimits(2, 10, 100, 100, clockwork.NewFakeClock())

	ok, _ := limits.Acquire("10.0.0.1")
	assert.True(t, ok)
	ok, _ = limits.Acquire("10.0.0.2")
	assert.True(t, ok)

	ok, reason := limits.Acquire("10.0.0.3")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonGlobal, reason)
	assert.Equal(t, int64(2), limits.Current())

	limits.Release("10.0.0.1")
	ok, _ = limits.Acquire("10.0.0.3")
	assert.True(t, ok)
}

func TestConnectionLimits_PerIPCap(t *testing.T) {
	limits := NewConnectionLimits(100, 2, 100, 100, clockwork.NewFakeClock())

	for n := 0; n < 2; n++ {
		ok, _ := limits.Acquire("10.0.0.1")
		assert.True(t, ok)
	}

	ok, reason := limits.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)
	assert.Equal(t, int64(2), limits.Current(), "a refused per-IP slot must not leak a global slot")

	ok, _ = limits.Acquire("10.0.0.2")
	assert.True(t, ok)
}

func TestConnectionLimits_ConnectRate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limits := NewConnectionLimits(100, 100, 1, 2, clock)

	for n := 0; n < 2; n++ {
		ok, _ := limits.Acquire("10.0.0.1")
		assert.True(t, ok)
	}
	ok, reason := limits.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonRate, reason)

	clock.Advance(time.Second)
	ok, _ = limits.Acquire("10.0.0.1")
	assert.True(t, ok)
}

func TestConnectionLimits_ReleaseUnknownIPIsNoop(t *testing.T) {
	limits := NewConnectionLimits(10, 10, 100, 100, clockwork.NewFakeClock())

	limits.Release("10.0.0.9")

	assert.Equal(t, int64(0), limits.Current())
}

func TestConnectionLimits_SweepsIdleLimiters(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limits := NewConnectionLimits(10, 10, 100, 100, clock)

	limits.Acquire("10.0.0.1")
	limits.Release("10.0.0.1")

	clock.Advance(rateLimiterIdleAfter + rateLimiterSweepInterval)
	limits.Acquire("10.0.0.2")

	limits.mu.Lock()
	defer limits.mu.Unlock()
	assert.NotContains(t, limits.limiters, "10.0.0.1")
	assert.Contains(t, limits.limiters, "10.0.0.2")
}
