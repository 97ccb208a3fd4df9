// Package middleware provides the generic onion-chain dispatch wrapper
// shared by the server's handler pipeline and the client's outgoing-send
// pipeline, generalizing the teacher's middleware.Chain (which wrapped a
// single HandlerFunc(ctx, *message.RPCMessage) *message.RPCMessage) to any
// input/output pair via generics, since the client wraps "write bytes to a
// transport" and the server wraps "invoke a registered method" — different
// shapes that both still want logging/timeout/rate-limit/retry around them.
package middleware

import "context"

// HandlerFunc is one link in a dispatch pipeline: given an input, produce a
// result or an error.
type HandlerFunc[T, R any] func(ctx context.Context, in T) (R, error)

// Middleware wraps a HandlerFunc to produce another of the same shape.
type Middleware[T, R any] func(next HandlerFunc[T, R]) HandlerFunc[T, R]

// Chain composes middlewares into one, applied in the order given:
// Chain(A, B, C)(handler) == A(B(C(handler))), so execution order is
// A-before, B-before, C-before, handler, C-after, B-after, A-after.
func Chain[T, R any](mws ...Middleware[T, R]) Middleware[T, R] {
	return func(next HandlerFunc[T, R]) HandlerFunc[T, R] {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
