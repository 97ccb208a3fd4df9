// Package codec encodes JSON-RPC message values to wire bytes and decodes
// wire frames back into a tagged union of message kinds (message.Message).
//
// Encoding always produces canonical JSON via encoding/json — the generic
// JSON marshaling library itself is an external collaborator (spec §1); this
// package only owns the JSON-RPC specific shaping: which fields appear, in
// which shape, for which configured protocol version.
package codec

import (
	"encoding/json"

	"jaysonic/message"
)

// Codec encodes/decodes messages for one configured JSON-RPC version.
// A Codec has no mutable state and is safe for concurrent use.
type Codec struct {
	version string
}

// New creates a Codec for the given protocol version. An empty version
// defaults to "2.0".
func New(version string) *Codec {
	if version == "" {
		version = message.Version
	}
	return &Codec{version: version}
}

// Version reports the protocol version this codec was configured with.
func (c *Codec) Version() string {
	return c.version
}

// EncodeRequest encodes a request (id != nil) or notification (id == nil).
func (c *Codec) EncodeRequest(method string, params json.RawMessage, id *int64) ([]byte, error) {
	if id == nil {
		return json.Marshal(&message.Notification{
			Version: c.version,
			Method:  method,
			Params:  params,
		})
	}
	return json.Marshal(&message.Request{
		Version: c.version,
		Method:  method,
		Params:  params,
		ID:      *id,
	})
}

// EncodeResponse encodes a successful result. Under "2.0" this is the
// canonical {jsonrpc,result,id} shape; any other configured version uses
// the legacy {result,error:null,id} shape with no jsonrpc field.
func (c *Codec) EncodeResponse(result json.RawMessage, id int64) ([]byte, error) {
	if c.version == message.Version {
		return json.Marshal(&message.Response{
			Version: c.version,
			Result:  result,
			ID:      id,
		})
	}
	return json.Marshal(legacyResponse{
		Result: result,
		Error:  nil,
		ID:     id,
	})
}

// EncodeErrorResponse encodes a failed call's error object. id is nil when
// the server never determined which request the error belongs to (a parse
// error before any id could be read).
func (c *Codec) EncodeErrorResponse(rpcErr *message.Error, id *int64) ([]byte, error) {
	if c.version == message.Version {
		return json.Marshal(&message.ErrorResponse{
			Version: c.version,
			Error:   rpcErr,
			ID:      id,
		})
	}
	var legacyID int64
	if id != nil {
		legacyID = *id
	}
	return json.Marshal(legacyResponse{
		Result: nil,
		Error:  rpcErr,
		ID:     legacyID,
	})
}

// EncodeBatch assembles pre-encoded element frames into a JSON array.
// Each element must already be a complete JSON value (a request,
// notification, response, or error-response frame produced by the methods
// above).
func EncodeBatch(elements [][]byte) ([]byte, error) {
	raw := make([]json.RawMessage, len(elements))
	for i, e := range elements {
		raw[i] = json.RawMessage(e)
	}
	return json.Marshal(raw)
}

// legacyResponse is the pre-2.0 response shape: no "jsonrpc" field, and
// "error" is always present (null on success) rather than omitted.
type legacyResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *message.Error  `json:"error"`
	ID     int64           `json:"id"`
}

func (c *Codec) mismatchedVersion(v string) bool {
	return v != "" && v != c.version
}
