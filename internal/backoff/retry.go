package backoff

import (
	"context"
)

// Result reports how a retry loop ended.
type Result[T any] struct {
	Value    T
	Attempts int
}

// Retry runs fn up to maxAttempts times. It stops early when fn succeeds or
// when retryable reports false for the returned error; a nil retryable means
// every error is retried. The last error is returned unchanged so callers can
// inspect it.
func Retry[T any](
	ctx context.Context,
	policy Policy,
	maxAttempts int,
	retryable func(error) bool,
	fn func(attempt int) (T, error),
) (Result[T], error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var res Result[T]
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return res, lastErr
			}
			return res, err
		}
		v, err := fn(attempt)
		if err == nil {
			res.Value = v
			return res, nil
		}
		lastErr = err
		if retryable != nil && !retryable(err) {
			return res, err
		}
		if attempt == maxAttempts {
			break
		}
		if err := Sleep(ctx, policy.Delay(attempt)); err != nil {
			return res, lastErr
		}
	}
	return res, lastErr
}
