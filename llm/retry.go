package llm

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy configures retry behavior with exponential backoff.
type RetryPolicy struct {
	MaxRetries int           // total retry attempts (not counting the initial call)
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // ceiling on the delay between retries
	Multiplier float64       // exponential backoff factor
	Jitter     bool          // randomize delays to avoid thundering herds
	OnRetry    func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the default retry policy: two retries with
// exponential backoff between 1s and 60s, jittered.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Delay calculates the delay for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}
	if p.Jitter {
		// +/- 50% jitter.
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}

// Retry executes fn under the policy, retrying only errors IsRetryable
// accepts. RateLimitError Retry-After hints override the computed delay; a
// hint beyond MaxDelay fails immediately rather than waiting.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !IsRetryable(err) {
			return zero, err
		}

		delay := policy.Delay(attempt)
		if rl, ok := err.(*RateLimitError); ok && rl.RetryAfter != nil {
			hinted := time.Duration(*rl.RetryAfter * float64(time.Second))
			if hinted > policy.MaxDelay {
				return zero, err
			}
			delay = hinted
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, &AbortError{SDKError: SDKError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-time.After(delay):
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
	}

	return zero, err
}
