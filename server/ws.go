package server

import (
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"jaysonic/framing"
)

// wsClient adapts a gorilla/websocket connection to clientConn. Writes are
// serialized the same way streamClient's are — one mutex per connection,
// shared between the read loop's reply and any concurrent broadcast Notify.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) writeFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsClient) close() error {
	return c.conn.Close()
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ListenWS starts an HTTP server at addr upgrading every request on path to
// a WebSocket, blocking until Close stops the listener. Each WS text
// message is one delimiter-terminated frame (spec §6.1) — the delimiter is
// preserved on the wire even though WS already frames messages, so decoding
// stays symmetric with the stream transport.
func (s *Server) ListenWS(addr, path string) error {
	if err := s.transitionToStarting(); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handleWS)

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

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.emitError(err)
		return
	}

	client := &wsClient{conn: conn}
	id := s.addClient(client)
	defer func() {
		conn.Close()
		s.removeClient(id)
	}()

	buf := framing.New(s.cfg.Delimiter)
	var wg sync.WaitGroup
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		buf.Push(msg)
		for _, frame := range buf.Extract() {
			wg.Add(1)
			go func(raw []byte) {
				defer wg.Done()
				resp, hasResp := s.dispatchFrame(raw)
				if !hasResp {
					return
				}
				resp = append(resp, []byte(s.cfg.Delimiter)...)
				if werr := client.writeFrame(resp); werr != nil {
					s.emitError(werr)
				}
			}([]byte(frame))
		}
	}
	wg.Wait()
}
