package llm

import (
	"context"
	"time"
)

// retryDelays is the exponential-backoff schedule:
// initial delay 2s, doubling each attempt, 3 retries after the original call
// (4 attempts total).
var retryDelays = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

var maxAttempts = 1 + len(retryDelays)

// doWithRetry calls attempt(attemptNum) — attemptNum is 1-based — until it
// succeeds, returns a non-retryable error, or the schedule is exhausted.
// attempt must classify its own failures via BackendError; doWithRetry only
// inspects Retryable(). observer, if non-nil, is invoked before each sleep.
func doWithRetry(ctx context.Context, observer RetryObserver, attempt func(n int) (*ChatResponse, error)) (*ChatResponse, error) {
	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		resp, err := attempt(n)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		be, ok := err.(*BackendError)
		if !ok || !be.Retryable() || n == maxAttempts {
			return nil, err
		}

		delay := retryDelays[n-1]
		if observer != nil {
			observer(RetryState{
				Attempt:       n,
				MaxAttempts:   maxAttempts,
				NextDelay:     delay.String(),
				TriggerStatus: be.StatusCode,
			})
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}
