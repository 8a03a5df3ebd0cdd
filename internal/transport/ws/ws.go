// Package ws provides a WebSocket transport to the relay using gobwas/ws.
// Each Write becomes one binary WebSocket message; Read presents received
// messages as a continuous byte stream so the layers above see the same
// newline-framed text as over plain TCP.
package ws

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/crisismesh/meshchat/internal/transport"
)

// Dialer dials WebSocket connections.
type Dialer struct{}

// Dial connects to the relay at addr. A bare host:port is turned into a
// ws:// URL.
func (Dialer) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	url := addr
	if !strings.Contains(url, "://") {
		url = "ws://" + url
	}

	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	c := &Conn{conn: conn, rw: conn}
	if br != nil {
		// Handshake left buffered bytes; reads must drain them first.
		c.rw = struct {
			io.Reader
			io.Writer
		}{br, conn}
	}
	return c, nil
}

// Conn wraps a WebSocket connection as a transport.Conn.
type Conn struct {
	conn          net.Conn
	rw            io.ReadWriter
	readBuffer    []byte
	readBufferPos int
	mu            sync.Mutex
}

// Read returns bytes from the current WebSocket message, reading the next
// one when the buffer is drained. Message remainders that do not fit buf
// are kept for subsequent calls.
func (c *Conn) Read(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.readBufferPos < len(c.readBuffer) {
		n := copy(buf, c.readBuffer[c.readBufferPos:])
		c.readBufferPos += n
		if c.readBufferPos >= len(c.readBuffer) {
			c.readBuffer = nil
			c.readBufferPos = 0
		}
		return n, nil
	}

	data, err := wsutil.ReadServerBinary(c.rw)
	if err != nil {
		return 0, err
	}

	n := copy(buf, data)
	if n < len(data) {
		c.readBuffer = data[n:]
		c.readBufferPos = 0
	}
	return n, nil
}

// Write sends data as one binary message.
func (c *Conn) Write(data []byte) (int, error) {
	if err := wsutil.WriteClientBinary(c.conn, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Close sends a close frame and closes the underlying connection.
func (c *Conn) Close() error {
	_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, nil)
	return c.conn.Close()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
