package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"jaysonic/codec"
	"jaysonic/message"
	"jaysonic/rpcerr"
)

// dispatchFrame runs the full decode → validate → dispatch → encode pipeline
// on one raw frame (spec §4.6). hasResponse is false only for a lone
// notification or an all-notification batch — stream/WS callers send
// nothing back in that case, and the HTTP adapter replies 204.
func (s *Server) dispatchFrame(raw []byte) (response []byte, hasResponse bool) {
	msg, err := s.codec.Decode(raw)
	if err != nil {
		return s.encodeError(err, nil), true
	}
	return s.processMessage(msg)
}

func (s *Server) processMessage(msg message.Message) (response []byte, hasResponse bool) {
	switch msg.Kind {
	case message.KindInvalid:
		return s.encodeError(msg.Err, nil), true
	case message.KindNotification:
		s.emitNotify(msg.Notification.Method, msg.Notification.Params)
		return nil, false
	case message.KindRequest:
		return s.dispatchRequest(msg.Request), true
	case message.KindBatch:
		return s.dispatchBatch(msg.Batch)
	default:
		// A Response/ErrorResponse shape arriving as an inbound request is
		// malformed from the server's point of view.
		return s.encodeError(rpcerr.New(rpcerr.InvalidRequest), nil), true
	}
}

func (s *Server) dispatchBatch(elems []message.Message) ([]byte, bool) {
	if len(elems) == 0 {
		return s.encodeError(rpcerr.New(rpcerr.InvalidRequest), nil), true
	}

	responses := make([][]byte, 0, len(elems))
	for _, elem := range elems {
		resp, has := s.processMessage(elem)
		if has {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		return nil, false
	}
	out, err := codec.EncodeBatch(responses)
	if err != nil {
		return s.encodeError(rpcerr.Newf(rpcerr.InternalError, "%s", err.Error()), nil), true
	}
	return out, true
}

func (s *Server) dispatchRequest(req *message.Request) []byte {
	handler, ok := s.lookup(req.Method)
	if !ok {
		return s.encodeError(rpcerr.New(rpcerr.MethodNotFound), &req.ID)
	}

	result, err := s.chain(context.Background(), dispatchInput{method: req.Method, handler: handler, params: req.Params})
	if err != nil {
		return s.encodeError(classifyHandlerError(err), &req.ID)
	}

	b, err := s.codec.EncodeResponse(result, req.ID)
	if err != nil {
		return s.encodeError(rpcerr.Newf(rpcerr.InternalError, "%s", err.Error()), &req.ID)
	}
	return b
}

// invoke calls the handler, recovering a panic as an Internal Error, then
// lifts either shape a Handler may return — an immediate value or a
// Deferred — into the same json.RawMessage result, per the design note
// that dispatch should have one shape to work with regardless of timing.
func (s *Server) invoke(h Handler, params json.RawMessage) (json.RawMessage, error) {
	result, err := callHandler(h, params)
	if err != nil {
		return nil, err
	}
	if fut, ok := result.(Deferred); ok {
		return fut.Wait()
	}
	return json.Marshal(result)
}

func callHandler(h Handler, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(params)
}

func classifyHandlerError(err error) error {
	if rpcerr.IsInvalidParams(err) {
		return rpcerr.New(rpcerr.InvalidParams)
	}
	var rErr *rpcerr.Error
	if errors.As(err, &rErr) {
		return rErr
	}
	return rpcerr.Newf(rpcerr.InternalError, "%s", err.Error())
}

func (s *Server) encodeError(err error, id *int64) []byte {
	var rErr *rpcerr.Error
	if !errors.As(err, &rErr) {
		rErr = rpcerr.Newf(rpcerr.InternalError, "%s", err.Error())
	}
	msgErr := &message.Error{Code: int(rErr.Code), Message: rErr.Msg}
	if rErr.Data != nil {
		if data, merr := json.Marshal(rErr.Data); merr == nil {
			msgErr.Data = data
		}
	}
	b, _ := s.codec.EncodeErrorResponse(msgErr, id)
	return b
}
