package rate_limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, config Config) *Limiter {
	t.Helper()
	l := New("test", config, nil)
	t.Cleanup(l.Close)
	return l
}

func TestLimiter_AllowPerKey(t *testing.T) {
	l := newLimiter(t, Config{RequestsPerSecond: 1, Burst: 2, CleanupInterval: time.Minute})

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	m := l.Metrics("a")
	assert.Equal(t, int64(2), m.Allowed)
	assert.Equal(t, int64(1), m.Denied)
	assert.Equal(t, 2, l.Len())
}

func TestLimiter_Refill(t *testing.T) {
	l := newLimiter(t, Config{RequestsPerSecond: 10, Burst: 1, CleanupInterval: time.Minute})
	now := time.Now()
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))

	now = now.Add(150 * time.Millisecond)
	assert.True(t, l.Allow("a"))
}

func TestLimiter_WaitTimesOut(t *testing.T) {
	l := newLimiter(t, Config{RequestsPerSecond: 0.01, Burst: 1, WaitTimeout: 20 * time.Millisecond, CleanupInterval: time.Minute})

	require.NoError(t, l.Wait(context.Background(), "a"))
	err := l.Wait(context.Background(), "a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimitExceeded))
}

func TestLimiter_SweepDropsIdleKeys(t *testing.T) {
	l := newLimiter(t, Config{RequestsPerSecond: 5, KeyExpiry: time.Minute, CleanupInterval: time.Hour})
	now := time.Now()
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(2 * time.Minute)
	l.Allow("fresh")

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, float64(5), l.Metrics("old").Tokens)
}
