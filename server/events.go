package server

import "encoding/json"

// OnNotify registers cb to run whenever any client sends a notification
// (a request with no id). Callbacks run in registration order (spec §5).
func (s *Server) OnNotify(cb func(method string, params json.RawMessage)) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	s.onNotifyCbs = append(s.onNotifyCbs, cb)
}

// ClientConnected registers cb to run whenever a stream or WebSocket client
// connects. HTTP never fires this event — it has no persistent connection.
func (s *Server) ClientConnected(cb func(id uint64)) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	s.clientConnectedCbs = append(s.clientConnectedCbs, cb)
}

// ClientDisconnected registers cb to run whenever a stream or WebSocket
// client disconnects.
func (s *Server) ClientDisconnected(cb func(id uint64)) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	s.clientDisconnectedCbs = append(s.clientDisconnectedCbs, cb)
}

// OnError registers cb to run when a per-client broadcast write fails. One
// client's write failure never blocks or fails the broadcast to the others.
func (s *Server) OnError(cb func(error)) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	s.errorCbs = append(s.errorCbs, cb)
}

func (s *Server) emitNotify(method string, params json.RawMessage) {
	s.eventsMu.Lock()
	cbs := append([]func(string, json.RawMessage){}, s.onNotifyCbs...)
	s.eventsMu.Unlock()
	for _, cb := range cbs {
		cb(method, params)
	}
}

func (s *Server) emitError(err error) {
	s.eventsMu.Lock()
	cbs := append([]func(error){}, s.errorCbs...)
	s.eventsMu.Unlock()
	for _, cb := range cbs {
		cb(err)
	}
}

// Notify broadcasts a server-initiated notification to every currently
// attached stream/WS client (spec §4.6 "server-push notify"). HTTP clients
// have no persistent connection to push to. A write failure on one client
// is reported via OnError and does not stop the broadcast to the rest.
func (s *Server) Notify(method string, params json.RawMessage) error {
	frame, err := s.codec.EncodeRequest(method, params, nil)
	if err != nil {
		return err
	}
	frame = append(frame, []byte(s.cfg.Delimiter)...)

	s.clientsMu.Lock()
	targets := make([]clientConn, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.clientsMu.Unlock()

	for _, c := range targets {
		if werr := c.writeFrame(frame); werr != nil {
			s.emitError(werr)
		}
	}
	return nil
}
