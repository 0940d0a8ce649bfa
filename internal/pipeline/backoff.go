package pipeline

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/tourcast/tourcast/internal/types"
)

// Backoff computes exponential retry delays with jitter, capped at a
// maximum. Attempt numbering starts at 1.
type Backoff struct {
	base time.Duration
	max  time.Duration
}

func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return &Backoff{base: base, max: max}
}

// Delay returns base * 2^(attempt-1) capped at max, plus 10% jitter so
// concurrent retries spread out.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(b.base) * math.Pow(2, float64(attempt-1)))
	if delay > b.max {
		delay = b.max
	}
	jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
	return delay + jitter
}

// Wait sleeps for the attempt's delay or returns early when the context is
// cancelled.
func (b *Backoff) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.Delay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withRetry runs op up to maxAttempts times, backing off between attempts.
// Only transient failures are retried; permanent failures and context
// cancellation return immediately. onRetry, when set, observes every retry.
func withRetry(ctx context.Context, b *Backoff, maxAttempts int, op func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = op(ctx)
		if err == nil || !types.IsTransient(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if werr := b.Wait(ctx, attempt); werr != nil {
			return werr
		}
	}
	return err
}
