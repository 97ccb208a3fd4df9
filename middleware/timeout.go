package middleware

import (
	"context"
	"time"

	"jaysonic/rpcerr"
)

// Timeout bounds how long next may run, generalizing the teacher's
// TimeOutMiddleware. On expiry it returns the catalogue's Request Timeout
// error rather than the teacher's ad hoc "request timed out" string, so a
// timeout occurring inside the dispatch pipeline (as opposed to the
// client's correlation-table timer) still surfaces the canonical code.
func Timeout[T, R any](timeout time.Duration) Middleware[T, R] {
	return func(next HandlerFunc[T, R]) HandlerFunc[T, R] {
		return func(ctx context.Context, in T) (R, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type outcome struct {
				result R
				err    error
			}
			done := make(chan outcome, 1)
			go func() {
				result, err := next(ctx, in)
				done <- outcome{result, err}
			}()

			select {
			case o := <-done:
				return o.result, o.err
			case <-ctx.Done():
				var zero R
				return zero, rpcerr.New(rpcerr.RequestTimeout)
			}
		}
	}
}
