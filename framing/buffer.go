// Package framing turns a byte stream into discrete JSON-RPC frames.
//
// A single network read may contain zero, one, a fraction of, or many
// logical messages; Buffer accumulates bytes across reads and yields only
// the complete ones, holding back any trailing partial frame for the next
// Push. Callers are trusted to emit the delimiter only at message
// boundaries — it must never appear inside a JSON value a peer sends.
package framing

import "bytes"

// DefaultDelimiter is the newline byte used when a transport doesn't
// configure one explicitly.
const DefaultDelimiter = "\n"

// Buffer accumulates bytes from a stream and splits them into frames on a
// configured delimiter. It is not safe for concurrent use; each stream
// connection owns its own Buffer.
type Buffer struct {
	delim []byte
	buf   []byte
}

// New creates a Buffer that splits on delim. An empty delim falls back to
// DefaultDelimiter.
func New(delim string) *Buffer {
	if delim == "" {
		delim = DefaultDelimiter
	}
	return &Buffer{delim: []byte(delim)}
}

// Push appends a chunk of newly read bytes to the buffer. When the buffer
// holds no partial frame, leading whitespace on the incoming chunk is
// trimmed first, tolerating stray inter-message padding some peers insert
// between frames; a chunk that continues a partial frame is appended as is,
// so a delimiter at the start of a read is never lost.
func (b *Buffer) Push(chunk []byte) {
	if len(b.buf) == 0 {
		chunk = bytes.TrimLeft(chunk, " \t\r\n")
	}
	b.buf = append(b.buf, chunk...)
}

// Extract returns every complete frame currently in the buffer, in order,
// and retains any trailing partial frame (the bytes after the last
// delimiter) for a future Push+Extract. Empty frames — two delimiters back
// to back, or a leading delimiter — are discarded rather than returned.
func (b *Buffer) Extract() []string {
	var frames []string
	for {
		idx := bytes.Index(b.buf, b.delim)
		if idx < 0 {
			break
		}
		frame := b.buf[:idx]
		b.buf = b.buf[idx+len(b.delim):]
		if len(frame) > 0 {
			frames = append(frames, string(frame))
		}
	}
	return frames
}

// Pending returns the bytes currently held back as an incomplete trailing
// frame. Mostly useful for tests asserting the no-bytes-lost invariant.
func (b *Buffer) Pending() []byte {
	return b.buf
}
