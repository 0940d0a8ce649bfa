package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourcast/tourcast/internal/types"
)

func TestBackoff_Delay(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second)

	// Delays grow exponentially and carry up to 10% jitter.
	for attempt, base := range map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
	} {
		d := b.Delay(attempt)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+base/10)
	}

	// Capped at max (plus jitter).
	d := b.Delay(10)
	assert.LessOrEqual(t, d, time.Second+100*time.Millisecond)
}

func TestBackoff_WaitRespectsContext(t *testing.T) {
	b := NewBackoff(time.Minute, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := b.Wait(ctx, 5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithRetry(t *testing.T) {
	b := NewBackoff(time.Millisecond, 2*time.Millisecond)
	ctx := context.Background()

	t.Run("transient retried until success", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, b, 3, func(context.Context) error {
			calls++
			if calls < 3 {
				return &types.TransientExternalError{Provider: "places", Err: assert.AnError}
			}
			return nil
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent returns immediately", func(t *testing.T) {
		calls := 0
		perm := &types.PermanentExternalError{Provider: "tts", Reason: "bad voice"}
		err := withRetry(ctx, b, 3, func(context.Context) error {
			calls++
			return perm
		}, nil)
		assert.Equal(t, 1, calls)
		assert.True(t, types.IsPermanent(err))
	})

	t.Run("exhaustion returns last transient error", func(t *testing.T) {
		calls := 0
		retries := 0
		err := withRetry(ctx, b, 3, func(context.Context) error {
			calls++
			return &types.TransientExternalError{Provider: "places", Err: assert.AnError}
		}, func(int, error) { retries++ })
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, retries)
		assert.True(t, types.IsTransient(err))
	})
}
