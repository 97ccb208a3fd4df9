package server

import (
	"net"
	"sync"

	"jaysonic/framing"
	"jaysonic/transport"
)

// streamClient adapts a net.Conn to clientConn: writes are serialized by a
// per-connection mutex shared with the dispatch goroutines that answer
// requests on it, matching the teacher's handleConn/writeMu pairing.
type streamClient struct {
	conn    net.Conn
	writeMu sync.Mutex
}

func (c *streamClient) writeFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(frame)
	return err
}

func (c *streamClient) close() error {
	return c.conn.Close()
}

// ListenStream binds a TCP listener at addr and serves JSON-RPC over
// delimiter-framed connections until Close is called. It blocks the calling
// goroutine; call it in its own goroutine to run it in the background.
func (s *Server) ListenStream(network, addr string) error {
	if err := s.transitionToStarting(); err != nil {
		return err
	}

	listener, err := s.listen(network, addr)
	if err != nil {
		s.transitionToStopped()
		return err
	}
	s.listener = listener
	s.transitionToListening()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if listenState(s.state.Load()) == stateStopping || listenState(s.state.Load()) == stateStopped {
				return nil
			}
			return err
		}
		go s.handleStreamConn(conn)
	}
}

// handleStreamConn runs the per-connection read loop: one goroutine reads
// frames sequentially (frame boundaries require a single reader), and
// dispatches each frame to its own goroutine so a slow handler never blocks
// the rest of the connection's requests, matching the teacher's
// handleConn/go handleRequest split.
func (s *Server) handleStreamConn(conn net.Conn) {
	client := &streamClient{conn: conn}
	id := s.addClient(client)
	defer func() {
		conn.Close()
		s.removeClient(id)
	}()

	buf := framing.New(s.cfg.Delimiter)
	var wg sync.WaitGroup
	transport.PumpFrames(conn, buf, func(frame string) {
		wg.Add(1)
		go func(raw []byte) {
			defer wg.Done()
			resp, hasResp := s.dispatchFrame(raw)
			if !hasResp {
				return
			}
			resp = append(resp, []byte(s.cfg.Delimiter)...)
			if err := client.writeFrame(resp); err != nil {
				s.emitError(err)
			}
		}([]byte(frame))
	})
	wg.Wait()
}
