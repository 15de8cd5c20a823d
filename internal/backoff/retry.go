package backoff

import (
	"context"
	"errors"
	"time"
)

// ErrMaxAttemptsExhausted is returned when all retry attempts have been exhausted.
var ErrMaxAttemptsExhausted = errors.New("max retry attempts exhausted")

// Retryable reports whether err is worth another attempt.
type Retryable func(err error) bool

// Result holds the outcome of Retry.
type Result[T any] struct {
	Value    T
	Attempts int
	// LastError is the last error returned by fn, if any.
	LastError error
}

// Retry calls fn up to maxAttempts times, sleeping between attempts
// according to policy. Errors rejected by retryable are returned at once.
// A nil retryable retries every error. When attempts run out, the returned
// error wraps both ErrMaxAttemptsExhausted and the last error.
func Retry[T any](
	ctx context.Context,
	policy Policy,
	maxAttempts int,
	retryable Retryable,
	fn func(ctx context.Context, attempt int) (T, error),
) (Result[T], error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var result Result[T]

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt
		if err := ctx.Err(); err != nil {
			return result, err
		}

		value, err := fn(ctx, attempt)
		if err == nil {
			result.Value = value
			result.LastError = nil
			return result, nil
		}
		result.LastError = err

		if retryable != nil && !retryable(err) {
			return result, err
		}
		if attempt == maxAttempts {
			break
		}
		if err := Sleep(ctx, policy.Delay(attempt)); err != nil {
			return result, err
		}
	}

	if maxAttempts == 1 {
		return result, result.LastError
	}
	return result, errors.Join(ErrMaxAttemptsExhausted, result.LastError)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
