package fault

import (
	"context"
	"time"
)

// Retry runs fn up to 1+maxRetries times, sleeping base*2^attempt between
// attempts. Only failures whose kind is recoverable are retried;
// non-recoverable kinds and unclassified errors fail on the first attempt.
// The final error propagates unchanged.
func Retry(ctx context.Context, maxRetries int, base time.Duration, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !Retryable(err) {
			return err
		}
		delay := base << uint(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// RetryValue is Retry for functions returning a value.
func RetryValue[T any](ctx context.Context, maxRetries int, base time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Retry(ctx, maxRetries, base, func(ctx context.Context) error {
		var ferr error
		out, ferr = fn(ctx)
		return ferr
	})
	return out, err
}
