package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"jaysonic/rpcerr"
)

// RateLimit throttles dispatch to r requests/sec with the given burst,
// generalizing the teacher's token-bucket RateLimitMiddleware. Used by the
// server to bound inbound method dispatch per instance (spec §6.2's
// optional Server.RateLimit); a rejected request comes back as an Internal
// Error with a "rate limit exceeded" message, mirroring the teacher's
// wording.
func RateLimit[T, R any](r float64, burst int) Middleware[T, R] {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc[T, R]) HandlerFunc[T, R] {
		return func(ctx context.Context, in T) (R, error) {
			if !limiter.Allow() {
				var zero R
				return zero, rpcerr.Newf(rpcerr.InternalError, "rate limit exceeded")
			}
			return next(ctx, in)
		}
	}
}
