package server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"

	"jaysonic/message"
	"jaysonic/rpcerr"
)

// ListenHTTP starts an HTTP server at addr, dispatching every request body
// posted to path. It blocks until Close stops the listener.
func (s *Server) ListenHTTP(addr, path string) error {
	if err := s.transitionToStarting(); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handleHTTP)

	listener, err := s.listen("tcp", addr)
	if err != nil {
		s.transitionToStopped()
		return err
	}
	s.listener = listener
	s.transitionToListening()

	httpSrv := &http.Server{Handler: mux}
	err = httpSrv.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// handleHTTP implements the HTTP disambiguation from the design notes
// (spec §9): a single body segment is decoded as either one message or a
// batch (the codec tells them apart by the leading '[' ), while two or more
// delimiter-separated segments are treated as a delimited multi-request
// whose responses are joined by the same delimiter in the reply body.
func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(rpcerr.ParseError.HTTPStatus())
		return
	}

	segments := splitSegments(body, s.cfg.Delimiter)
	if len(segments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if len(segments) == 1 {
		resp, hasResp := s.dispatchFrame(segments[0])
		if !hasResp {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.statusFor(resp))
		w.Write(resp)
		return
	}

	parts := make([][]byte, 0, len(segments))
	for _, seg := range segments {
		resp, hasResp := s.dispatchFrame(seg)
		if hasResp {
			parts = append(parts, resp)
		}
	}
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(bytes.Join(parts, []byte(s.cfg.Delimiter)))
}

func splitSegments(body []byte, delim string) [][]byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	raw := bytes.Split(trimmed, []byte(delim))
	segments := make([][]byte, 0, len(raw))
	for _, seg := range raw {
		seg = bytes.TrimSpace(seg)
		if len(seg) > 0 {
			segments = append(segments, seg)
		}
	}
	return segments
}

// statusFor maps a response frame to its HTTP status: 200 for a clean
// success, or the error-catalogue mapping (spec §4.3) for the first error
// found, whether it's a lone ErrorResponse or one inside a batch.
func (s *Server) statusFor(resp []byte) int {
	msg, err := s.codec.Decode(resp)
	if err != nil {
		return rpcerr.InternalError.HTTPStatus()
	}
	switch msg.Kind {
	case message.KindErrorResponse:
		return rpcerr.Code(msg.ErrorResponse.Error.Code).HTTPStatus()
	case message.KindBatch:
		for _, elem := range msg.Batch {
			if elem.Kind == message.KindErrorResponse {
				return rpcerr.Code(elem.ErrorResponse.Error.Code).HTTPStatus()
			}
		}
	}
	return http.StatusOK
}
