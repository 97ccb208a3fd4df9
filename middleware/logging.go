package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Logging wraps next with start/duration/error logging at debug level,
// generalizing the teacher's LoggingMiddleware. label extracts a short
// human-readable tag for the input (a method name on the server side, a
// "write(N bytes)" tag on the client side) so log lines stay useful without
// each middleware needing to know the concrete input type.
func Logging[T, R any](logger *zerolog.Logger, label func(T) string) Middleware[T, R] {
	return func(next HandlerFunc[T, R]) HandlerFunc[T, R] {
		return func(ctx context.Context, in T) (R, error) {
			start := time.Now()
			result, err := next(ctx, in)
			evt := logger.Debug().Str("op", label(in)).Dur("duration", time.Since(start))
			if err != nil {
				evt = logger.Warn().Str("op", label(in)).Dur("duration", time.Since(start)).Err(err)
			}
			evt.Msg("dispatch")
			return result, err
		}
	}
}
