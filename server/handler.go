package server

import (
	"encoding/json"

	"jaysonic/future"
)

// Handler is a registered method's implementation. It receives the raw
// params value from the request and returns either:
//   - an immediate value (any JSON-marshalable Go value) and a nil error,
//   - a nil value and a non-nil error (a handler failure — use
//     rpcerr.InvalidParamsSignal, or errors.Is against it via
//     rpcerr.IsInvalidParams, to request an InvalidParams response instead
//     of InternalError), or
//   - a *future.Future[json.RawMessage] value and a nil error, for a
//     deferred result that completes later.
//
// Server.invoke in dispatch.go reduces both shapes to the same
// json.RawMessage result (marshaling an immediate value, waiting on a
// Deferred), so the rest of dispatch handles them identically.
type Handler func(params json.RawMessage) (any, error)

// Deferred is the type a Handler returns when its result isn't ready yet.
type Deferred = *future.Future[json.RawMessage]
