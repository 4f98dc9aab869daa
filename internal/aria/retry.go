package aria

import (
	"context"
	"math"
	"time"
)

// retryPolicy retries a call with exponential backoff. Only errors accepted
// by the retryable predicate are retried; everything else surfaces on the
// first attempt.
type retryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// defaultRetryPolicy mirrors the upstream session retry strategy of the
// original deployment: three retries, doubling delay.
func defaultRetryPolicy() retryPolicy {
	return retryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// do runs fn until it succeeds, returns a non-retryable error, or the
// attempt budget is exhausted. Backoff sleeps respect context cancellation.
func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(math.Pow(2, float64(attempt-2))) * p.BaseDelay
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}
