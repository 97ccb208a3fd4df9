package client

import (
	"jaysonic/framing"
)

// wsReadLoop mirrors streamReadLoop but reads WS text messages instead of
// stream bytes — each message is already one frame (spec §6.1), though it
// still passes through a framing.Buffer in case a peer packs more than one
// delimiter-terminated frame into a single WS message.
func (c *Client) wsReadLoop() error {
	c.connMu.Lock()
	wsConn := c.wsConn
	c.connMu.Unlock()

	buf := framing.New(c.cfg.Delimiter)
	for {
		_, msg, err := wsConn.ReadMessage()
		if err != nil {
			return err
		}
		buf.Push(msg)
		for _, frame := range buf.Extract() {
			c.handleIncomingFrame([]byte(frame))
		}
	}
}
