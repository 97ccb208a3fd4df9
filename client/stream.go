package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"jaysonic/codec"
	"jaysonic/framing"
	"jaysonic/future"
	"jaysonic/message"
	"jaysonic/transport"
)

// Connect dials the configured transport (spec §4.5 state machine:
// Idle--connect-->Connecting--open-->Open) and starts the per-connection
// read loop. Stream and WS both go through here; HTTP has no connection to
// open, so for HTTP Connect only marks the client Open.
func (c *Client) Connect() error {
	if c.kind == KindHTTP {
		c.state.Store(int32(StateOpen))
		return nil
	}

	c.state.Store(int32(StateConnecting))

	if err := c.dial(); err != nil {
		c.state.Store(int32(StateIdle))
		return err
	}

	c.remainingRetries.Store(int32(c.cfg.Retries))
	c.state.Store(int32(StateOpen))
	go c.runLoop()
	return nil
}

// dial resolves an address (directly, or via registry+balancer in
// discovery mode) and opens the underlying connection for c.kind.
func (c *Client) dial() error {
	addr, err := c.resolveAddr()
	if err != nil {
		return err
	}

	switch c.kind {
	case KindWS:
		dialer := websocket.Dialer{
			EnableCompression: c.cfg.PerMessageDeflate,
			Proxy:             websocket.DefaultDialer.Proxy,
			HandshakeTimeout:  websocket.DefaultDialer.HandshakeTimeout,
		}
		wsConn, _, err := dialer.Dial(addr, nil)
		if err != nil {
			return err
		}
		c.connMu.Lock()
		c.wsConn = wsConn
		c.connMu.Unlock()
	default:
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return err
		}
		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()
	}
	return nil
}

func (c *Client) resolveAddr() (string, error) {
	if c.registry == nil || c.balancer == nil {
		if c.cfg.Host != "" {
			return fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port), nil
		}
		return c.cfg.URL, nil
	}
	instances, err := c.registry.Discover(c.cfg.ServiceName)
	if err != nil {
		return "", err
	}
	instance, err := c.balancer.Pick(instances)
	if err != nil {
		return "", err
	}
	return instance.Addr, nil
}

// runLoop blocks reading frames off the active connection until it errors,
// then hands off to reconnection unless the client was closed deliberately.
func (c *Client) runLoop() {
	var err error
	if c.kind == KindWS {
		err = c.wsReadLoop()
	} else {
		err = c.streamReadLoop()
	}

	if c.isClosed() {
		return
	}
	c.emitServerDisconnected(err)
	c.beginRetrying(err)
}

// streamReadLoop is the generalized form of the teacher's
// ClientTransport.recvLoop: pump frames off a framing.Buffer instead of
// fixed binary headers, dispatching each to handleIncomingFrame.
func (c *Client) streamReadLoop() error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	buf := framing.New(c.cfg.Delimiter)
	return transport.PumpFrames(conn, buf, func(frame string) {
		c.handleIncomingFrame([]byte(frame))
	})
}

// beginRetrying implements Open--remote close-->Retrying--timer-->Connecting
// and Retrying--exhausted-->Closed (spec §4.5). In-flight calls are not
// replayed (design notes §9) — they settle via their own deadlines.
func (c *Client) beginRetrying(cause error) {
	c.state.Store(int32(StateRetrying))

	for c.remainingRetries.Add(-1) >= 0 {
		if c.isClosed() {
			return
		}
		time.Sleep(c.cfg.ReconnectDelay())
		if c.isClosed() {
			return
		}

		c.state.Store(int32(StateConnecting))
		c.logger.Info().Int32("retries_left", c.remainingRetries.Load()).Msg("reconnect attempt")
		if err := c.dial(); err != nil {
			c.state.Store(int32(StateRetrying))
			continue
		}
		c.state.Store(int32(StateOpen))
		c.runLoop()
		return
	}

	c.logger.Info().Err(cause).Msg("reconnect retries exhausted, client closed")
	c.state.Store(int32(StateClosed))
	c.table.CloseAll(cause)
}

// writeFrame sends one encoded frame through the write middleware chain
// (retry-on-transient-failure, then logging) down to rawWriteFrame.
func (c *Client) writeFrame(frame []byte) error {
	_, err := c.writeChain(context.Background(), frame)
	return err
}

// rawWriteFrame writes one encoded frame to whichever persistent connection
// is active — stream or WS — serialized by writeMu so concurrent Send/
// Notify/Batch calls never interleave their bytes on the wire.
func (c *Client) rawWriteFrame(frame []byte) error {
	c.connMu.Lock()
	conn := c.conn
	wsConn := c.wsConn
	c.connMu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	switch {
	case wsConn != nil:
		return wsConn.WriteMessage(websocket.TextMessage, frame)
	case conn != nil:
		_, err := conn.Write(frame)
		return err
	default:
		return ErrClosed
	}
}

// Send issues a request and returns a future that settles with the raw
// encoded Response/ErrorResponse bytes once the reply (or timeout) arrives.
// HTTP (spec §4.5 "stateless: each call opens a fresh request") opens its
// own connection per call rather than going through the correlation table.
func (c *Client) Send(method string, params json.RawMessage) (*future.Future[[]byte], error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if c.kind == KindHTTP {
		return c.httpSend(method, params)
	}
	id := c.allocID()
	frame, err := c.codec.EncodeRequest(method, params, &id)
	if err != nil {
		return nil, err
	}
	frame = append(frame, []byte(c.cfg.Delimiter)...)

	fut := c.table.Register(id, c.cfg.Timeout())
	if err := c.writeFrame(frame); err != nil {
		c.table.Reject(id, err)
	}
	return fut, nil
}

// Notify builds and writes a notification. For stream/WS it settles as
// soon as the write completes (spec §4.5).
func (c *Client) Notify(method string, params json.RawMessage) *future.Future[struct{}] {
	if c.isClosed() {
		return future.Done(struct{}{}, ErrClosed)
	}
	if c.kind == KindHTTP {
		return c.httpNotify(method, params)
	}
	frame, err := c.codec.EncodeRequest(method, params, nil)
	if err != nil {
		return future.Done(struct{}{}, err)
	}
	frame = append(frame, []byte(c.cfg.Delimiter)...)
	return future.Done(struct{}{}, c.writeFrame(frame))
}

// Batch sends a pre-built set of frames (each produced by Message) as one
// JSON array and returns a future that settles with the full response
// array once every non-notification id in it has a reply, or on timeout.
func (c *Client) Batch(frames [][]byte) (*future.Future[[]byte], error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if c.kind == KindHTTP {
		return c.httpBatch(frames)
	}

	elements := make([][]byte, 0, len(frames))
	var ids []int64
	for _, frame := range frames {
		trimmed := trimDelimiter(frame, c.cfg.Delimiter)
		elements = append(elements, trimmed)

		msg, err := c.codec.Decode(trimmed)
		if err != nil {
			continue
		}
		if msg.Kind == message.KindRequest {
			ids = append(ids, msg.Request.ID)
		}
	}

	out, err := codec.EncodeBatch(elements)
	if err != nil {
		return nil, err
	}

	fut, err := c.table.RegisterBatch(ids, c.cfg.Timeout())
	if err != nil {
		return nil, err
	}

	out = append(out, []byte(c.cfg.Delimiter)...)
	if err := c.writeFrame(out); err != nil {
		c.table.RejectBatch(ids, err)
	}
	return fut, nil
}

func trimDelimiter(frame []byte, delim string) []byte {
	d := []byte(delim)
	if len(frame) >= len(d) && string(frame[len(frame)-len(d):]) == delim {
		return frame[:len(frame)-len(d)]
	}
	return frame
}
