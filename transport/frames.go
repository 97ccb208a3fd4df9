// Package transport holds the small pieces shared across wire transports
// that aren't themselves protocol logic: pumping a stream reader through a
// framing.Buffer. All JSON-RPC semantics — validation, dispatch,
// correlation, dialing, and address resolution — live in client/ and
// server/; this package only moves bytes.
package transport

import (
	"io"

	"jaysonic/framing"
)

// PumpFrames reads from r in a loop, feeding each chunk to buf and invoking
// onFrame for every complete frame extracted, until r.Read returns an
// error (including io.EOF on an orderly close). It blocks its caller's
// goroutine for the lifetime of the connection, exactly like the teacher's
// ClientTransport.recvLoop and Server.handleConn read loops — reads on one
// connection must stay sequential to parse frame boundaries correctly.
func PumpFrames(r io.Reader, buf *framing.Buffer, onFrame func(frame string)) error {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Push(chunk[:n])
			for _, frame := range buf.Extract() {
				onFrame(frame)
			}
		}
		if err != nil {
			return err
		}
	}
}
