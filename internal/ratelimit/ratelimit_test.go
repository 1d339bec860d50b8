package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiter_Wait(t *testing.T) {
	t.Run("delays between consecutive actions", func(t *testing.T) {
		limiter := NewSimpleRateLimiter(50*time.Millisecond, 50*time.Millisecond)

		require.NoError(t, limiter.Wait(context.Background()))

		start := time.Now()
		require.NoError(t, limiter.Wait(context.Background()))
		elapsed := time.Since(start)

		assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		limiter := NewSimpleRateLimiter(10*time.Second, 10*time.Second)
		require.NoError(t, limiter.Wait(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := limiter.Wait(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestSimpleRateLimiter_CalculateDelay(t *testing.T) {
	t.Run("equal bounds return min", func(t *testing.T) {
		limiter := NewSimpleRateLimiter(2*time.Second, 2*time.Second)
		assert.Equal(t, 2*time.Second, limiter.calculateDelay())
	})

	t.Run("jitter stays within bounds", func(t *testing.T) {
		limiter := NewSimpleRateLimiter(1*time.Second, 3*time.Second)
		for i := 0; i < 100; i++ {
			d := limiter.calculateDelay()
			assert.GreaterOrEqual(t, d, 1*time.Second)
			assert.Less(t, d, 3*time.Second)
		}
	})

	t.Run("SetDelay replaces bounds", func(t *testing.T) {
		limiter := NewSimpleRateLimiter(1*time.Second, 3*time.Second)
		limiter.SetDelay(5*time.Second, 5*time.Second)
		assert.Equal(t, 5*time.Second, limiter.calculateDelay())
	})
}
