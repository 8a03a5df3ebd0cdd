// Package transport abstracts the byte stream between the client and the
// relay. The session manager uses these interfaces exclusively so that
// tests can inject pipes and the TCP/WebSocket implementations stay
// interchangeable.
package transport

import (
	"context"
	"net"
)

// Conn is a bidirectional byte stream to the relay. Implementations carry
// no framing of their own; frame reassembly happens above this layer.
type Conn interface {
	// Read reads available bytes into buf.
	Read(buf []byte) (int, error)

	// Write sends data to the relay.
	Write(data []byte) (int, error)

	// Close closes the connection. Safe to call more than once.
	Close() error

	// RemoteAddr returns the relay address for logging.
	RemoteAddr() net.Addr
}

// Dialer establishes a Conn to a relay address. Dial honors context
// cancellation and deadlines.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}
