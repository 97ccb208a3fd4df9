package middleware

import (
	"context"
	"time"
)

// Retry re-invokes next with exponential backoff while isRetryable(err)
// reports true, up to maxRetries additional attempts, generalizing the
// teacher's RetryMiddleware (which matched on substrings of the error
// text; this version takes a predicate instead, since the client and
// server wrap fundamentally different error types). Used by the client's
// outgoing-send pipeline to retry a transient transport write failure
// without the caller having to know the connection was momentarily down.
func Retry[T, R any](maxRetries int, baseDelay time.Duration, isRetryable func(error) bool) Middleware[T, R] {
	return func(next HandlerFunc[T, R]) HandlerFunc[T, R] {
		return func(ctx context.Context, in T) (R, error) {
			result, err := next(ctx, in)
			for attempt := 0; err != nil && attempt < maxRetries && isRetryable(err); attempt++ {
				select {
				case <-time.After(baseDelay * (1 << attempt)):
				case <-ctx.Done():
					return result, err
				}
				result, err = next(ctx, in)
			}
			return result, err
		}
	}
}
