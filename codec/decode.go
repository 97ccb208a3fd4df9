package codec

import (
	"encoding/json"

	"jaysonic/message"
)

// genericMessage is the permissive shape decoding probes first, wide enough
// to hold any of the four single-message variants plus enough of a batch
// element to tell them apart per the classification rules in spec §4.2.
type genericMessage struct {
	Version *string         `json:"jsonrpc"`
	Method  *json.RawMessage `json:"method"`
	Params  *json.RawMessage `json:"params"`
	ID      *json.RawMessage `json:"id"`
	Result  *json.RawMessage `json:"result"`
	Error   *json.RawMessage `json:"error"`
}

// Decode parses one frame and classifies it into a tagged message.Message,
// following the rules of spec §4.2 in order:
//
//  1. empty array -> invalid request
//  2. array -> batch, recurse on elements
//  3. not an object -> invalid request
//  4. method not a string -> invalid request
//  5. id absent -> notification
//  6. method absent and (result or error) present -> response/error response
//  7. jsonrpc set and mismatched -> invalid request
//  8. params present and not array/object -> invalid params
func (c *Codec) Decode(frame []byte) (message.Message, error) {
	trimmed := trimSpace(frame)
	if len(trimmed) == 0 {
		return message.Message{Kind: message.KindInvalid}, invalidRequest()
	}

	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return message.Message{}, parseError()
		}
		if len(raws) == 0 {
			return message.Message{Kind: message.KindInvalid}, invalidRequest()
		}
		elems := make([]message.Message, 0, len(raws))
		for _, raw := range raws {
			elem, err := c.Decode(raw)
			if err != nil {
				elem = message.Message{Kind: message.KindInvalid, Err: err}
			}
			elems = append(elems, elem)
		}
		return message.Message{Kind: message.KindBatch, Batch: elems}, nil
	}

	if !json.Valid(trimmed) {
		return message.Message{}, parseError()
	}
	if trimmed[0] != '{' {
		return message.Message{Kind: message.KindInvalid}, invalidRequest()
	}
	var gm genericMessage
	if err := json.Unmarshal(trimmed, &gm); err != nil {
		return message.Message{}, parseError()
	}

	isRequestShaped := gm.Method != nil
	if isRequestShaped {
		var methodStr string
		if err := json.Unmarshal(*gm.Method, &methodStr); err != nil {
			return message.Message{Kind: message.KindInvalid}, invalidRequest()
		}

		if gm.ID == nil {
			return message.Message{
				Kind: message.KindNotification,
				Notification: &message.Notification{
					Version: deref(gm.Version, c.version),
					Method:  methodStr,
					Params:  derefRaw(gm.Params),
				},
			}, nil
		}

		if gm.Version != nil && c.mismatchedVersion(*gm.Version) {
			return message.Message{Kind: message.KindInvalid}, invalidRequest()
		}
		if gm.Params != nil && !isArrayOrObject(*gm.Params) {
			return message.Message{Kind: message.KindInvalid}, invalidParams()
		}

		var id int64
		if err := json.Unmarshal(*gm.ID, &id); err != nil {
			return message.Message{Kind: message.KindInvalid}, invalidRequest()
		}
		return message.Message{
			Kind: message.KindRequest,
			Request: &message.Request{
				Version: deref(gm.Version, c.version),
				Method:  methodStr,
				Params:  derefRaw(gm.Params),
				ID:      id,
			},
		}, nil
	}

	if gm.Result != nil || gm.Error != nil {
		if gm.Version != nil && c.mismatchedVersion(*gm.Version) {
			return message.Message{Kind: message.KindInvalid}, invalidRequest()
		}

		var idPtr *int64
		if gm.ID != nil {
			var id int64
			if err := json.Unmarshal(*gm.ID, &id); err == nil {
				idPtr = &id
			}
		}

		if gm.Error != nil {
			var rpcErr message.Error
			if err := json.Unmarshal(*gm.Error, &rpcErr); err != nil {
				return message.Message{Kind: message.KindInvalid}, invalidRequest()
			}
			return message.Message{
				Kind: message.KindErrorResponse,
				ErrorResponse: &message.ErrorResponse{
					Version: deref(gm.Version, c.version),
					Error:   &rpcErr,
					ID:      idPtr,
				},
			}, nil
		}

		var id int64
		if idPtr != nil {
			id = *idPtr
		}
		return message.Message{
			Kind: message.KindResponse,
			Response: &message.Response{
				Version: deref(gm.Version, c.version),
				Result:  derefRaw(gm.Result),
				ID:      id,
			},
		}, nil
	}

	return message.Message{Kind: message.KindInvalid}, invalidRequest()
}

func isArrayOrObject(raw json.RawMessage) bool {
	t := trimSpace(raw)
	return len(t) > 0 && (t[0] == '[' || t[0] == '{')
}

func trimSpace(b []byte) []byte {
	i, j := 0, len(b)
	for i < j && isSpace(b[i]) {
		i++
	}
	for j > i && isSpace(b[j-1]) {
		j--
	}
	return b[i:j]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func derefRaw(r *json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return *r
}
