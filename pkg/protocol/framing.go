package protocol

import (
	"bytes"
	"strings"
)

// Framer reassembles a byte stream into complete frames. Bytes are
// accumulated until a terminator is seen; the terminator and any trailing
// whitespace are stripped from the emitted frame. A Framer must only be
// used by a single goroutine, and each connection instance gets its own.
type Framer struct {
	buf []byte
}

// Feed appends data to the inbound buffer and returns every complete,
// non-empty frame it now contains, in wire order. Frames split across
// reads, multiple frames in one read, and reads with no terminator at all
// are handled uniformly: whatever follows the last terminator stays
// buffered for the next call.
func (f *Framer) Feed(data []byte) []string {
	f.buf = append(f.buf, data...)

	var frames []string
	for {
		i := bytes.IndexByte(f.buf, Delimiter)
		if i < 0 {
			return frames
		}
		line := strings.TrimRight(string(f.buf[:i]), " \t\r\n")
		f.buf = f.buf[i+1:]
		if line != "" {
			frames = append(frames, line)
		}
	}
}

// Pending returns the number of buffered bytes not yet part of a complete
// frame.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Reset discards any buffered partial frame. An unterminated tail left at
// connection close is dropped, never emitted.
func (f *Framer) Reset() {
	f.buf = nil
}
