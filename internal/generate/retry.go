package generate

import (
	"context"
	"time"
)

// retryOutputFactor is the harsher output-token allowance applied on a
// budget retry.
const retryOutputFactor = 0.7

// RetryPolicy decouples what counts as retryable from how retry is
// executed. MaxAttempts counts total attempts, including the first.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	IsRetryable func(err error) bool
}

// DefaultRetryPolicy retries exactly once, immediately, on a detected
// budget overflow.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		IsRetryable: IsBudgetError,
	}
}

// wait sleeps for the policy's backoff duration, honoring cancellation.
func (p RetryPolicy) wait(ctx context.Context, attempt int) error {
	if p.Backoff == nil {
		return nil
	}
	d := p.Backoff(attempt)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
